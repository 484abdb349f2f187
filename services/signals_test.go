package services

import "testing"

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	var forbidden, fatal int
	offForbidden := bus.Subscribe(SignalForbidden, func(Signal) { forbidden++ })
	offFatal := bus.Subscribe(SignalFatal, func(Signal) { fatal++ })
	defer offFatal()

	bus.Publish(Signal{Kind: SignalForbidden, Message: "no"})
	bus.Publish(Signal{Kind: SignalUnauthorized})
	if forbidden != 1 || fatal != 0 {
		t.Fatalf("forbidden=%d fatal=%d", forbidden, fatal)
	}

	offForbidden()
	offForbidden()
	bus.Publish(Signal{Kind: SignalForbidden})
	if forbidden != 1 {
		t.Errorf("handler ran after unsubscribe")
	}
}

func TestBusHandlerMayUnsubscribeItself(t *testing.T) {
	bus := NewBus()
	calls := 0
	var off func()
	off = bus.Subscribe(SignalFatal, func(Signal) {
		calls++
		off()
	})

	bus.Publish(Signal{Kind: SignalFatal})
	bus.Publish(Signal{Kind: SignalFatal})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(Signal{Kind: SignalFatal})
}

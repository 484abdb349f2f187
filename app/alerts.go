package app

import (
	"sync"
	"time"
)

// DefaultAlertTTL is how long a transient alert stays visible.
const DefaultAlertTTL = 5 * time.Second

// AlertKind selects how an alert is shown.
type AlertKind string

const (
	AlertError   AlertKind = "error"
	AlertSuccess AlertKind = "success"
)

// Alert is one transient message.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Alerts shows at most one transient alert. A new alert replaces the current
// one and restarts the expiry.
type Alerts struct {
	ttl   time.Duration
	now   func() time.Time
	after func(time.Duration, func()) *time.Timer

	mu      sync.Mutex
	current *Alert
	gen     uint64
	timer   *time.Timer
	nextID  int
	subs    map[int]func(*Alert)
}

// NewAlerts creates an empty alert slot. A non-positive ttl selects
// DefaultAlertTTL.
func NewAlerts(ttl time.Duration) *Alerts {
	if ttl <= 0 {
		ttl = DefaultAlertTTL
	}
	return &Alerts{
		ttl:   ttl,
		now:   time.Now,
		after: time.AfterFunc,
		subs:  make(map[int]func(*Alert)),
	}
}

// Show displays message until the ttl elapses or Dismiss is called.
func (a *Alerts) Show(kind AlertKind, message string) {
	a.mu.Lock()
	a.gen++
	gen := a.gen
	alert := &Alert{Kind: kind, Message: message, ExpiresAt: a.now().Add(a.ttl)}
	a.current = alert
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = a.after(a.ttl, func() { a.expire(gen) })
	a.mu.Unlock()

	a.publish(alert)
}

// Current returns the visible alert, if any.
func (a *Alerts) Current() (Alert, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || !a.now().Before(a.current.ExpiresAt) {
		return Alert{}, false
	}
	return *a.current, true
}

// Dismiss hides the current alert early.
func (a *Alerts) Dismiss() {
	a.mu.Lock()
	a.gen++
	had := a.current != nil
	a.current = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	if had {
		a.publish(nil)
	}
}

func (a *Alerts) expire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.current = nil
	a.timer = nil
	a.mu.Unlock()

	a.publish(nil)
}

// Subscribe registers fn for every change; fn receives nil when the alert
// goes away.
func (a *Alerts) Subscribe(fn func(*Alert)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
	}
}

func (a *Alerts) publish(alert *Alert) {
	a.mu.Lock()
	fns := make([]func(*Alert), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		var cp *Alert
		if alert != nil {
			c := *alert
			cp = &c
		}
		fn(cp)
	}
}

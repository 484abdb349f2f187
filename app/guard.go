package app

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/CrowderSoup/taskcollab/services"
)

// FaultError is returned by Guard when fn panicked.
type FaultError struct {
	Value any
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("unexpected failure: %v", e.Value)
}

// Guard runs fn behind the fault barrier of the signed-in view. A panic in fn
// is recovered, logged and published as SignalFatal, and the user is sent
// back to the default route. The session is left alone.
func (a *App) Guard(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fault := &FaultError{Value: r}
		slog.Error("recovered from fault", "err", r, "stack", string(debug.Stack()))
		if a.bus != nil {
			a.bus.Publish(services.Signal{Kind: services.SignalFatal, Message: fault.Error(), Err: fault})
		}
		a.Nav.Navigate(RouteHome)
		err = fault
	}()
	return fn()
}

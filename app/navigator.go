package app

import "sync"

const (
	RouteHome     = "/"
	RouteLogin    = "/login"
	RouteRegister = "/register"
)

// Navigator holds the current route of the presentation layer.
type Navigator struct {
	mu     sync.Mutex
	route  string
	nextID int
	subs   map[int]func(route string)
}

// NewNavigator starts at RouteHome.
func NewNavigator() *Navigator {
	return &Navigator{route: RouteHome, subs: make(map[int]func(string))}
}

// Route returns the current route.
func (n *Navigator) Route() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

// Navigate moves to route and tells subscribers. Navigating to the current
// route is a no-op.
func (n *Navigator) Navigate(route string) {
	n.mu.Lock()
	if n.route == route {
		n.mu.Unlock()
		return
	}
	n.route = route
	fns := make([]func(string), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(route)
	}
}

// Subscribe registers fn for every route change and returns the func that
// removes it.
func (n *Navigator) Subscribe(fn func(route string)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

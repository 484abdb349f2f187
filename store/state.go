// Package store holds the client-side domain stores. Each store owns its
// collection exclusively and hands out copies.
package store

import (
	"errors"
	"sync"
)

// ErrSuperseded is returned by a fetch whose result arrived after a newer
// fetch had been issued. The result is discarded.
var ErrSuperseded = errors.New("superseded by a newer request")

// requestState tracks the lifecycle flags shared by every store. It relies on
// the owning store's lock.
type requestState struct {
	inflight int
	err      string
}

func (r *requestState) begin() {
	r.inflight++
	r.err = ""
}

func (r *requestState) end(err error) {
	if r.inflight > 0 {
		r.inflight--
	}
	if err != nil {
		r.err = err.Error()
	}
}

// notifier fans change notices out to subscribers after each transition.
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func()
}

// Subscribe registers fn to run after every state change and returns the
// func that removes it.
func (n *notifier) Subscribe(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func())
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) changed() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

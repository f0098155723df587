package web

import (
	"context"
	"sync"

	"github.com/SalahAli20/ADCAI/internal/events"
	"github.com/SalahAli20/ADCAI/internal/exam"
)

const (
	// keptSessions is how many sessions' event histories are retained for
	// late websocket joins.
	keptSessions = 4

	// clientBuffer bounds the queue of a client following every session.
	clientBuffer = 64
)

// hub fans the bus stream out to websocket clients and keeps each recent
// session's history.
//
// A client following one session reads that history through a cursor, so it
// sees every event exactly once however late it joins or however slowly it
// reads. A client following all sessions gets a bounded queue and is dropped
// when it falls behind.
type hub struct {
	mu      sync.Mutex
	history map[string][]events.Event
	order   []string
	clients map[*client]struct{}
}

type client struct {
	session string

	// ch carries events to a client following all sessions.
	ch chan events.Event

	// wake is signalled when session's history grows; next is the index of
	// the first history event not yet handed out.
	wake chan struct{}
	next int

	closed bool
}

func newHub() *hub {
	return &hub{
		history: make(map[string][]events.Event),
		clients: make(map[*client]struct{}),
	}
}

// run consumes evs until it is closed or ctx is done.
func (h *hub) run(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-evs:
			if !ok {
				h.closeAll()
				return
			}
			h.dispatch(ev)
		}
	}
}

func (h *hub) dispatch(ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.history[ev.Session]; !ok {
		h.order = append(h.order, ev.Session)
		if len(h.order) > keptSessions {
			delete(h.history, h.order[0])
			h.order = h.order[1:]
		}
	}
	h.history[ev.Session] = append(h.history[ev.Session], ev)

	for c := range h.clients {
		switch c.session {
		case "":
			select {
			case c.ch <- ev:
			default:
				// No history spans all sessions, so a lagging firehose
				// client cannot catch up.
				h.dropLocked(c)
			}
		case ev.Session:
			select {
			case c.wake <- struct{}{}:
			default:
			}
		}
	}
}

// join registers a client for session ("" for all sessions). A session
// client starts at the beginning of the session's history.
func (h *hub) join(session string) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &client{session: session}
	if session == "" {
		c.ch = make(chan events.Event, clientBuffer)
	} else {
		c.wake = make(chan struct{}, 1)
	}
	h.clients[c] = struct{}{}
	return c
}

// pending returns the session events c has not seen yet and advances its
// cursor. ok is false once c was dropped or its history was evicted.
func (h *hub) pending(c *client) (evs []events.Event, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return nil, false
	}
	hist := h.history[c.session]
	if c.next > len(hist) {
		return nil, false
	}
	evs = append(evs, hist[c.next:]...)
	c.next = len(hist)
	return evs, true
}

// leave unregisters c. It reports whether c was the last client following
// a session that has not finished yet.
func (h *hub) leave(c *client) (orphaned bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		// Dropped by the hub, not by the client going away.
		return false
	}
	h.dropLocked(c)
	if c.session == "" || h.finishedLocked(c.session) {
		return false
	}
	for o := range h.clients {
		if o.session == c.session {
			return false
		}
	}
	return true
}

func (h *hub) finishedLocked(session string) bool {
	hist := h.history[session]
	return len(hist) > 0 && hist[len(hist)-1].Kind == exam.NoticeDone
}

func (h *hub) dropLocked(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	delete(h.clients, c)
	if c.ch != nil {
		close(c.ch)
	}
	if c.wake != nil {
		close(c.wake)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// Package bridge turns one-shot script evaluations inside the embedded
// surface into awaitable request/response round trips.
package bridge

import (
	"crypto/rand"
	"sync"

	"github.com/ekvall/kartklickare/logger"
)

const idLength = 32

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Outcome is the result of one bridge request: either a decoded JSON
// payload or the failure message reported by the in-page script.
type Outcome struct {
	Payload map[string]any
	Err     string
}

// Pool correlates request ids with their pending waiters. Each waiter is
// resolved at most once; late or duplicate resolutions are dropped.
type Pool struct {
	mu      sync.Mutex
	pending map[string]chan Outcome
}

func NewPool() *Pool {
	return &Pool{
		pending: make(map[string]chan Outcome),
	}
}

// Register allocates a fresh request id and a waiter the caller can
// block on until Resolve delivers an outcome for that id.
func (p *Pool) Register() (string, <-chan Outcome) {
	id := newRequestID()
	waiter := make(chan Outcome, 1)

	p.mu.Lock()
	p.pending[id] = waiter
	p.mu.Unlock()

	return id, waiter
}

// Resolve delivers outcome to the waiter registered under id and removes
// the entry. Removal and delivery happen in the same critical section, so
// a second resolution for the same id finds nothing and is a no-op.
// Returns whether a waiter was resolved.
func (p *Pool) Resolve(id string, outcome Outcome) bool {
	p.mu.Lock()
	waiter, ok := p.pending[id]
	if !ok {
		p.mu.Unlock()
		logger.Warn("no pending bridge request for callback", "id", id)
		return false
	}
	delete(p.pending, id)
	p.mu.Unlock()

	// The waiter channel is buffered, so delivery never blocks. If the
	// caller already gave up the outcome is simply dropped.
	select {
	case waiter <- outcome:
		return true
	default:
		return false
	}
}

// Abandon removes a pending entry whose caller stopped waiting.
func (p *Pool) Abandon(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// PendingCount reports the number of unresolved requests.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// newRequestID returns a random alphanumeric token long enough that
// collisions between in-flight requests are negligible.
func newRequestID() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		panic("bridge: crypto/rand unavailable: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}

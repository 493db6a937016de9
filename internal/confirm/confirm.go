// Package confirm correlates yes/no button presses with the command that is
// waiting on them.
package confirm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Outcome int

const (
	TimedOut Outcome = iota
	Confirmed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	default:
		return "timed_out"
	}
}

type Choice string

const (
	Yes Choice = "yes"
	No  Choice = "no"
)

const customIDPrefix = "confirm:"

var (
	ErrUnknownToken = errors.New("confirmation expired or already answered")
	ErrNotRequester = errors.New("only the requester can answer this confirmation")
)

// Registry holds the open confirmations. The first press from the requester
// wins and removes the token, so every later press sees ErrUnknownToken.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*Pending
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]*Pending), now: time.Now}
}

type Pending struct {
	registry  *Registry
	token     string
	requester string
	deadline  time.Time
	result    chan Outcome
}

// Open registers a confirmation for requesterID. The deadline starts now.
func (r *Registry) Open(requesterID string, timeout time.Duration) *Pending {
	p := &Pending{
		registry:  r,
		token:     uuid.NewString(),
		requester: requesterID,
		deadline:  r.now().Add(timeout),
		result:    make(chan Outcome, 1),
	}
	r.mu.Lock()
	r.pending[p.token] = p
	r.mu.Unlock()
	return p
}

func (p *Pending) Token() string { return p.token }

func (p *Pending) CustomID(choice Choice) string {
	return CustomID(p.token, choice)
}

// Wait blocks until the requester answers, the deadline passes or ctx is
// done. Anything but an answer yields TimedOut.
func (p *Pending) Wait(ctx context.Context) Outcome {
	timer := time.NewTimer(time.Until(p.deadline))
	defer timer.Stop()

	select {
	case outcome := <-p.result:
		return outcome
	case <-timer.C:
	case <-ctx.Done():
	}

	if p.registry.remove(p.token) {
		return TimedOut
	}
	// Resolve removed the token first; its outcome is already buffered.
	return <-p.result
}

// Resolve answers the confirmation behind token on behalf of userID.
func (r *Registry) Resolve(token, userID string, choice Choice) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[token]
	if !ok {
		return TimedOut, ErrUnknownToken
	}
	if p.requester != userID {
		return TimedOut, ErrNotRequester
	}
	delete(r.pending, token)

	outcome := Cancelled
	if choice == Yes {
		outcome = Confirmed
	}
	p.result <- outcome
	return outcome, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) remove(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[token]; !ok {
		return false
	}
	delete(r.pending, token)
	return true
}

func CustomID(token string, choice Choice) string {
	return customIDPrefix + token + ":" + string(choice)
}

func IsCustomID(id string) bool {
	return strings.HasPrefix(id, customIDPrefix)
}

func ParseCustomID(id string) (token string, choice Choice, ok bool) {
	rest, found := strings.CutPrefix(id, customIDPrefix)
	if !found {
		return "", "", false
	}
	token, raw, found := strings.Cut(rest, ":")
	if !found || token == "" {
		return "", "", false
	}
	switch Choice(raw) {
	case Yes, No:
		return token, Choice(raw), true
	}
	return "", "", false
}

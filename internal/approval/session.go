package approval

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/workbench/internal/gateway"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
)

// State is the lifecycle stage of a review session.
type State string

const (
	StateReviewing State = "reviewing"
	StateConfirmed State = "confirmed"
	StateApplied   State = "applied"
	StateFailed    State = "failed"
)

var (
	// ErrUnknownPatch is returned for a key that is not in the session's set.
	ErrUnknownPatch = eris.New("approval: unknown patch")
	// ErrEmptySelection is returned by Confirm when nothing is approved.
	ErrEmptySelection = eris.New("approval: no patches approved")
	// ErrInvalidState is returned for an operation the current state forbids.
	ErrInvalidState = eris.New("approval: invalid state")
)

// Option configures a Session.
type Option func(*Session)

// WithValidator sets the validator Confirm runs over the approved subset.
func WithValidator(v Validator) Option {
	return func(s *Session) { s.validator = v }
}

// WithClock overrides the clock used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one reviewer's pass over a patch set. Decisions start at
// DefaultDecision and change only through SetDecision.
type Session struct {
	mu        sync.Mutex
	set       *patch.Set
	overrides map[patch.Key]bool
	state     State
	validator Validator
	now       func() time.Time
	request   *model.ApplyRequest
	lastError string
}

// NewSession starts a session in the reviewing state.
func NewSession(set *patch.Set, opts ...Option) *Session {
	if set == nil {
		set = patch.New(nil)
	}
	s := &Session{
		set:       set,
		overrides: make(map[patch.Key]bool),
		state:     StateReviewing,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set returns the patch set under review.
func (s *Session) Set() *patch.Set {
	return s.set
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the stderr of the last failed apply.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Request returns the most recently confirmed apply request, if any.
func (s *Session) Request() *model.ApplyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// SetDecision records an explicit decision for key. Setting the same value
// twice is a no-op.
func (s *Session) SetDecision(key patch.Key, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing && s.state != StateFailed {
		return eris.Wrapf(ErrInvalidState, "cannot change decisions while %s", s.state)
	}
	if _, ok := s.set.Lookup(key); !ok {
		return eris.Wrapf(ErrUnknownPatch, "%s", key)
	}
	s.overrides[key] = approved
	return nil
}

// SetAll applies the same decision to every patch in the set.
func (s *Session) SetAll(approved bool) error {
	for _, k := range s.set.Keys() {
		if err := s.SetDecision(k, approved); err != nil {
			return err
		}
	}
	return nil
}

// ResetDecisions drops every explicit decision.
func (s *Session) ResetDecisions() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing && s.state != StateFailed {
		return eris.Wrapf(ErrInvalidState, "cannot reset decisions while %s", s.state)
	}
	s.overrides = make(map[patch.Key]bool)
	return nil
}

// Decision returns the effective decision for key. Unknown keys are not
// approved.
func (s *Session) Decision(key patch.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.set.Lookup(key)
	if !ok {
		return false
	}
	return decide(e, s.overrides)
}

// Overrides returns a copy of the explicit decisions.
func (s *Session) Overrides() map[patch.Key]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[patch.Key]bool, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

// ApprovedSubset returns the approved patches in draft order.
func (s *Session) ApprovedSubset() []model.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ApprovedSubset(s.set, s.overrides)
}

// Tally counts the set under the current decisions.
func (s *Session) Tally() Tally {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Count(s.set, s.overrides)
}

// Confirm freezes the approved subset into an apply request. It fails with
// ErrEmptySelection when nothing is approved and with *ValidationError when
// the validator rejects a patch; in both cases the state is unchanged.
func (s *Session) Confirm(ctx context.Context) (*model.ApplyRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing && s.state != StateFailed {
		return nil, eris.Wrapf(ErrInvalidState, "cannot confirm while %s", s.state)
	}

	entries := approvedEntries(s.set, s.overrides)
	if len(entries) == 0 {
		return nil, ErrEmptySelection
	}

	if s.validator != nil {
		problems, err := s.validator.Validate(ctx, entries)
		if err != nil {
			return nil, eris.Wrap(err, "approval: validate")
		}
		if len(problems) > 0 {
			return nil, &ValidationError{Problems: problems}
		}
	}

	patches := make([]model.Patch, len(entries))
	for i, e := range entries {
		patches[i] = e.Patch
	}
	s.request = &model.ApplyRequest{
		Account:     s.set.Account,
		DraftPath:   s.set.DraftPath,
		Patches:     patches,
		RequestedAt: s.now().UTC(),
	}
	s.state = StateConfirmed
	return s.request, nil
}

// RecordResult closes a confirmed session with the apply outcome. A failed
// apply keeps its stderr and requires a new Confirm before another attempt.
func (s *Session) RecordResult(res gateway.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfirmed {
		return eris.Wrapf(ErrInvalidState, "cannot record a result while %s", s.state)
	}
	if res.Success {
		s.state = StateApplied
		s.lastError = ""
		return nil
	}
	s.state = StateFailed
	s.lastError = res.Stderr
	return nil
}

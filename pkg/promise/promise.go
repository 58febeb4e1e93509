// Package promise provides a single-resolution future used to hand results
// from worker goroutines back to the main loop.
//
// A [Resolver] settles exactly once, with either a value or an error. The
// paired [Promise] accepts continuations through [Promise.OnCompletion].
// Continuations registered before settlement run, in registration order,
// on the goroutine that settles the resolver. Continuations registered after
// settlement run immediately on the registering goroutine.
//
// Settling an already settled resolver is a no-op. [Resolver.Resolve] and
// [Resolver.Reject] report whether the call settled the resolver so callers
// that care can detect a lost race.
//
// There is no built-in timeout; compose one externally if needed.
package promise

import (
	"sync"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// ErrRejected is the error delivered to failure continuations when
// [Resolver.Reject] is called with a nil error.
var ErrRejected = sserr.Internal("promise rejected without a reason")

type state int

const (
	pending state = iota
	resolved
	rejected
)

type continuation[T any] struct {
	onSuccess func(T)
	onFailure func(error)
}

type shared[T any] struct {
	mu        sync.Mutex
	state     state
	value     T
	err       error
	callbacks []continuation[T]
}

// Resolver is the write side of a [Promise].
type Resolver[T any] struct {
	s *shared[T]
}

// Promise is the read side of a [Resolver].
type Promise[T any] struct {
	s *shared[T]
}

// NewResolver creates an unsettled resolver.
func NewResolver[T any]() *Resolver[T] {
	return &Resolver[T]{s: &shared[T]{}}
}

// Promise returns the promise observing r. Every call returns a view of the
// same underlying state.
func (r *Resolver[T]) Promise() *Promise[T] {
	return &Promise[T]{s: r.s}
}

// Resolve settles r with value. It returns false if r was already settled.
func (r *Resolver[T]) Resolve(value T) bool {
	s := r.s
	s.mu.Lock()
	if s.state != pending {
		s.mu.Unlock()
		return false
	}
	s.state = resolved
	s.value = value
	callbacks := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	for _, c := range callbacks {
		if c.onSuccess != nil {
			c.onSuccess(value)
		}
	}
	return true
}

// Reject settles r with err. A nil err is replaced by [ErrRejected]. It
// returns false if r was already settled.
func (r *Resolver[T]) Reject(err error) bool {
	if err == nil {
		err = ErrRejected
	}
	s := r.s
	s.mu.Lock()
	if s.state != pending {
		s.mu.Unlock()
		return false
	}
	s.state = rejected
	s.err = err
	callbacks := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	for _, c := range callbacks {
		if c.onFailure != nil {
			c.onFailure(err)
		}
	}
	return true
}

// Settled reports whether the resolver has been resolved or rejected.
func (r *Resolver[T]) Settled() bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.state != pending
}

// OnCompletion registers continuations. Either may be nil.
func (p *Promise[T]) OnCompletion(onSuccess func(T), onFailure func(error)) {
	s := p.s
	s.mu.Lock()
	switch s.state {
	case pending:
		s.callbacks = append(s.callbacks, continuation[T]{onSuccess: onSuccess, onFailure: onFailure})
		s.mu.Unlock()
	case resolved:
		value := s.value
		s.mu.Unlock()
		if onSuccess != nil {
			onSuccess(value)
		}
	default:
		err := s.err
		s.mu.Unlock()
		if onFailure != nil {
			onFailure(err)
		}
	}
}

// Done reports whether the promise has settled.
func (p *Promise[T]) Done() bool {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.state != pending
}

// Result returns the settled value or error. Before settlement it returns
// the zero value and a nil error; check [Promise.Done] first.
func (p *Promise[T]) Result() (T, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == resolved {
		return s.value, nil
	}
	var zero T
	return zero, s.err
}

// Resolved returns a promise already settled with value.
func Resolved[T any](value T) *Promise[T] {
	r := NewResolver[T]()
	r.Resolve(value)
	return r.Promise()
}

// Rejected returns a promise already settled with err.
func Rejected[T any](err error) *Promise[T] {
	r := NewResolver[T]()
	r.Reject(err)
	return r.Promise()
}

// Package cancel provides the pipeline-wide cooperative cancellation
// signal described in spec §5: a broadcast, one-shot latch that every
// suspension point in the core selects against. It is backed by a
// context.Context/CancelFunc pair so it composes naturally with every
// context-taking call (container driver I/O, timers), while giving call
// sites a name — "the cancellation signal" — instead of a bare context.
package cancel

import "context"

// Token is a process-wide cancellation signal. Once fired it never
// resets. The zero value is not usable; construct with New.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a fresh, un-fired Token.
func New() *Token {
	ctx, cancel := context.WithCancel(context.Background())
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel fires the token. Safe to call more than once or concurrently;
// only the first call has an effect.
func (t *Token) Cancel() {
	t.cancel()
}

// Done returns a channel that closes when the token fires.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// IsCancelled reports whether the token has fired.
func (t *Token) IsCancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Context returns a context that is cancelled when the token fires. Useful
// for composing with context.WithTimeout to merge a deadline and the
// broadcast cancellation signal into one context.
func (t *Token) Context() context.Context {
	return t.ctx
}

package tasks

import (
	"context"
)

// Token is a task's cancellation token. Cancel may be called any number of
// times; only the first cause is kept.
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewToken creates a token derived from parent.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Context returns the context handed to the handler.
func (t *Token) Context() context.Context { return t.ctx }

// Cancel fires the token with the given cause.
func (t *Token) Cancel(cause error) { t.cancel(cause) }

// Cancelled reports whether the token has fired.
func (t *Token) Cancelled() bool { return t.ctx.Err() != nil }

// Cause returns why the token fired, or nil.
func (t *Token) Cause() error { return context.Cause(t.ctx) }

// OnCancel registers fn to run once when the token fires. The returned stop
// function unregisters it.
func (t *Token) OnCancel(fn func()) (stop func() bool) {
	return context.AfterFunc(t.ctx, fn)
}

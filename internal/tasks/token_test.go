package tasks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestToken_FirstCauseWins(t *testing.T) {
	tok := NewToken(context.Background())
	if tok.Cancelled() {
		t.Fatal("new token already cancelled")
	}

	tok.Cancel(ErrTimeout)
	tok.Cancel(ErrCancelled)

	if !tok.Cancelled() {
		t.Fatal("expected token to be cancelled")
	}
	if !errors.Is(tok.Cause(), ErrTimeout) {
		t.Errorf("Cause = %v, want ErrTimeout", tok.Cause())
	}
	if !errors.Is(tok.Context().Err(), context.Canceled) {
		t.Errorf("ctx.Err = %v, want context.Canceled", tok.Context().Err())
	}
}

func TestToken_OnCancel(t *testing.T) {
	tok := NewToken(context.Background())
	fired := make(chan struct{})
	tok.OnCancel(func() { close(fired) })

	tok.Cancel(ErrCancelled)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("OnCancel callback not invoked")
	}
}

func TestToken_OnCancelStop(t *testing.T) {
	tok := NewToken(context.Background())
	called := make(chan struct{}, 1)
	stop := tok.OnCancel(func() { called <- struct{}{} })

	if !stop() {
		t.Fatal("stop should report the callback was unregistered")
	}
	tok.Cancel(ErrCancelled)

	select {
	case <-called:
		t.Fatal("callback ran after stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestToken_InheritsParentValues(t *testing.T) {
	type key struct{}
	parent := context.WithValue(context.Background(), key{}, "v")
	tok := NewToken(parent)
	if tok.Context().Value(key{}) != "v" {
		t.Error("token context lost parent value")
	}
}

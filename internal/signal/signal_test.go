package signal

import (
	"context"
	"testing"
	"time"
)

func TestNotifyContextFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := NotifyContext(parent)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with its parent")
	}
}

func TestNotifyContextStop(t *testing.T) {
	ctx, stop := NotifyContext(context.Background())
	stop()
	if ctx.Err() == nil {
		t.Fatal("expected stop to cancel the context")
	}
}

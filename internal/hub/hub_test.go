package hub

import (
	"context"
	"testing"

	"collabboard/internal/router"
	"collabboard/internal/session"
	"collabboard/pkg/types"
)

func newTestHub() *Hub {
	return NewHub(router.NewRouter(session.NewRegistry()))
}

func TestHub_StartStopLifecycle(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("second Start should fail, got %v", err)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := h.Stop(); err != ErrHubNotRunning {
		t.Errorf("second Stop should fail, got %v", err)
	}
}

func TestHub_RejectsWorkWhenNotRunning(t *testing.T) {
	h := newTestHub()

	if err := h.Join(nil, &types.Board{}); err != ErrHubNotRunning {
		t.Errorf("Join on a stopped hub should fail, got %v", err)
	}
	if err := h.Leave(nil); err != ErrHubNotRunning {
		t.Errorf("Leave on a stopped hub should fail, got %v", err)
	}
	if err := h.Submit(nil, &types.Event{Type: types.EventDrawAction}); err != ErrHubNotRunning {
		t.Errorf("Submit on a stopped hub should fail, got %v", err)
	}
}

func TestHub_StopsOnContextCancel(t *testing.T) {
	h := newTestHub()

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()

	// The run loop exits on cancellation; Stop still transitions the
	// running flag cleanly.
	if err := h.Stop(); err != nil {
		t.Errorf("Stop after context cancel failed: %v", err)
	}
}

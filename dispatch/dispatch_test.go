package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thozza/timelapser/camera"
	"github.com/thozza/timelapser/datastore"
)

// fakeStore is a scriptable datastore for coordinator tests.
type fakeStore struct {
	name  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeStore) Name() string { return f.name }

func (f *fakeStore) Store(ctx context.Context, pic *camera.Picture) error {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.err
}

func testPicture() *camera.Picture {
	return &camera.Picture{
		Data:     []byte("jpegdata"),
		TakenAt:  time.Now(),
		CameraSN: "CAM-0001",
		Filename: "shot.jpg",
	}
}

func outcomeFor(t *testing.T, outcomes []Outcome, store string) Outcome {
	t.Helper()
	for _, o := range outcomes {
		if o.Store == store {
			return o
		}
	}
	t.Fatalf("no outcome for store %q in %+v", store, outcomes)
	return Outcome{}
}

func TestDispatch_AllSucceed(t *testing.T) {
	coord := NewCoordinator(nil)
	a := &fakeStore{name: "a"}
	b := &fakeStore{name: "b"}

	outcomes := coord.Dispatch(t.Context(), testPicture(), []datastore.Datastore{a, b})

	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if !Satisfied(outcomes) {
		t.Error("Satisfied = false, want true")
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Errorf("store calls = %d/%d, want 1/1", a.calls.Load(), b.calls.Load())
	}
}

func TestDispatch_PartialFailure(t *testing.T) {
	coord := NewCoordinator(nil)
	ok := &fakeStore{name: "ok"}
	bad := &fakeStore{name: "bad", err: errors.New("disk full")}

	outcomes := coord.Dispatch(t.Context(), testPicture(), []datastore.Datastore{ok, bad})

	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if !outcomeFor(t, outcomes, "ok").OK() {
		t.Error("ok store should have succeeded")
	}
	if outcomeFor(t, outcomes, "bad").OK() {
		t.Error("bad store should have failed")
	}
	if !Satisfied(outcomes) {
		t.Error("Satisfied = false, want true for partial success")
	}
}

func TestDispatch_AllFail(t *testing.T) {
	coord := NewCoordinator(nil)
	outcomes := coord.Dispatch(t.Context(), testPicture(), []datastore.Datastore{
		&fakeStore{name: "a", err: errors.New("timeout")},
		&fakeStore{name: "b", err: errors.New("permission denied")},
	})

	if Satisfied(outcomes) {
		t.Error("Satisfied = true, want false when every backend failed")
	}
}

func TestDispatch_NoStores(t *testing.T) {
	coord := NewCoordinator(nil)
	outcomes := coord.Dispatch(t.Context(), testPicture(), nil)

	if outcomes == nil || len(outcomes) != 0 {
		t.Fatalf("outcomes = %#v, want empty non-nil slice", outcomes)
	}
	// no backends configured counts as a satisfied dispatch
	if !Satisfied(outcomes) {
		t.Error("Satisfied = false, want true for empty store set")
	}
}

func TestDispatch_SlowStoreDoesNotBlockOthers(t *testing.T) {
	coord := NewCoordinator(nil)
	slow := &fakeStore{name: "slow", delay: 300 * time.Millisecond}
	fast := &fakeStore{name: "fast"}

	start := time.Now()
	outcomes := coord.Dispatch(t.Context(), testPicture(), []datastore.Datastore{
		slow, fast, &fakeStore{name: "fast2", delay: 50 * time.Millisecond},
	})
	elapsed := time.Since(start)

	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	// writes run concurrently, so total time tracks the slowest store, not the sum
	if elapsed > 2*slow.delay {
		t.Errorf("dispatch took %v, want close to %v", elapsed, slow.delay)
	}
}

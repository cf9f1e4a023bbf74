// Package dispatch fans one captured picture out to every configured
// datastore and aggregates the per-backend outcomes.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/thozza/timelapser/camera"
	"github.com/thozza/timelapser/datastore"
)

// Outcome is the result of writing one picture to one backend.
type Outcome struct {
	Store string
	Err   error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Satisfied reports whether the retention policy may treat the dispatch as
// delivered: at least one backend succeeded, or none were configured.
func Satisfied(outcomes []Outcome) bool {
	if len(outcomes) == 0 {
		return true
	}
	for _, o := range outcomes {
		if o.OK() {
			return true
		}
	}
	return false
}

type Coordinator struct {
	log *slog.Logger
}

func NewCoordinator(log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{log: log.With("svc", "dispatch")}
}

// Dispatch writes the picture to every store concurrently and blocks until
// all of them finished or timed out. One backend's failure never blocks or
// fails another; the result always covers every store.
func (c *Coordinator) Dispatch(ctx context.Context, pic *camera.Picture, stores []datastore.Datastore) []Outcome {
	if len(stores) == 0 {
		c.log.Debug("No datastores configured, nothing to dispatch", "filename", pic.Filename)
		return []Outcome{}
	}

	results := make(chan Outcome, len(stores))
	for _, store := range stores {
		go func(store datastore.Datastore) {
			err := store.Store(ctx, pic)
			if err != nil {
				c.log.Error("Datastore write failed", "store", store.Name(), "filename", pic.Filename, "err", err)
			} else {
				c.log.Debug("Datastore write done", "store", store.Name(), "filename", pic.Filename)
			}
			results <- Outcome{Store: store.Name(), Err: err}
		}(store)
	}

	outcomes := make([]Outcome, 0, len(stores))
	for range stores {
		outcomes = append(outcomes, <-results)
	}
	return outcomes
}

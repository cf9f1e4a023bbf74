// Package datastore persists captured pictures into configured backends.
package datastore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thozza/timelapser/camera"
	"github.com/thozza/timelapser/config"
)

// Datastore is one persistence target for captured pictures. Implementations
// are safe for concurrent use; a failed Store is final for that dispatch
// cycle, there is no retry inside the backend.
type Datastore interface {
	Name() string
	Store(ctx context.Context, pic *camera.Picture) error
}

// FromSpecs builds the closed set of backends for one timelapse entry. An
// empty spec list yields an empty (non-nil) slice, meaning no persistence.
func FromSpecs(log *slog.Logger, specs []config.DatastoreSpec) ([]Datastore, error) {
	stores := make([]Datastore, 0, len(specs))
	for i, spec := range specs {
		switch spec.Type {
		case config.DatastoreFilesystem:
			stores = append(stores, NewFilesystem(log, spec.StorePath))
		case config.DatastoreRemote:
			stores = append(stores, NewRemote(log, spec))
		default:
			return nil, fmt.Errorf("datastore[%d]: unknown type %q", i, spec.Type)
		}
	}
	return stores, nil
}

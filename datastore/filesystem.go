package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/thozza/timelapser/camera"
)

// Filesystem writes pictures into a local directory. Local failures
// (missing permissions, full disk) are not transient, so there is no retry.
type Filesystem struct {
	log       *slog.Logger
	storePath string
}

func NewFilesystem(log *slog.Logger, storePath string) *Filesystem {
	if log == nil {
		log = slog.Default()
	}
	return &Filesystem{
		log:       log.With("svc", "datastore", "store", "filesystem"),
		storePath: storePath,
	}
}

func (s *Filesystem) Name() string {
	return fmt.Sprintf("filesystem(%s)", s.storePath)
}

func (s *Filesystem) Store(ctx context.Context, pic *camera.Picture) error {
	if err := os.MkdirAll(s.storePath, 0o755); err != nil {
		return fmt.Errorf("fail to create store dir: %w", err)
	}

	target := filepath.Join(s.storePath, pic.Filename)
	if err := os.WriteFile(target, pic.Data, 0o644); err != nil {
		return fmt.Errorf("fail to write picture: %w", err)
	}

	s.log.Debug("Stored picture", "path", target, "bytes", len(pic.Data))
	return nil
}

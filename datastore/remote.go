package datastore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/thozza/timelapser/camera"
	"github.com/thozza/timelapser/config"
)

// Remote uploads pictures to an HTTP object store endpoint with bearer token
// auth. One attempt per dispatch cycle, bounded by the configured timeout; a
// failed upload is surfaced in the dispatch outcome and the next scheduled
// capture is the next attempt.
type Remote struct {
	log *slog.Logger

	storePath string
	authToken string
	client    *http.Client
}

func NewRemote(log *slog.Logger, spec config.DatastoreSpec) *Remote {
	if log == nil {
		log = slog.Default()
	}
	return &Remote{
		log:       log.With("svc", "datastore", "store", "remote"),
		storePath: strings.TrimRight(spec.StorePath, "/"),
		authToken: spec.AuthToken,
		client:    &http.Client{Timeout: spec.Timeout()},
	}
}

func (s *Remote) Name() string {
	return fmt.Sprintf("remote(%s)", s.storePath)
}

func (s *Remote) Store(ctx context.Context, pic *camera.Picture) error {
	url := s.storePath + "/" + pic.Filename

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(pic.Data))
	if err != nil {
		return fmt.Errorf("fail to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.authToken)
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fail to upload picture: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.log.Debug("Upload rejected", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("upload response status code %d", resp.StatusCode)
	}

	s.log.Debug("Uploaded picture", "url", url, "bytes", len(pic.Data))
	return nil
}

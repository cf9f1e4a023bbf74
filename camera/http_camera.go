package camera

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/icholy/digest"

	"github.com/thozza/timelapser/config"
)

// httpCamera pulls snapshots from an IP camera's still endpoint. Most such
// endpoints negotiate digest auth. The device retains nothing, so Ref is
// always empty and DeletePicture is a no-op.
type httpCamera struct {
	log *slog.Logger

	serial string
	url    string
	client *http.Client

	mu sync.Mutex
}

func NewHTTPCamera(log *slog.Logger, spec config.CameraSpec) Camera {
	if log == nil {
		log = slog.Default()
	}

	client := &http.Client{Timeout: 30 * time.Second}
	if spec.Username != "" {
		client.Transport = &digest.Transport{
			Username: spec.Username,
			Password: spec.Password,
		}
	}

	return &httpCamera{
		log:    log.With("svc", "camera", "serial", spec.Serial),
		serial: spec.Serial,
		url:    spec.URL,
		client: client,
	}
}

func (c *httpCamera) SerialNumber() string {
	return c.serial
}

func (c *httpCamera) TakePicture(ctx context.Context) (*Picture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot response status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fail to read snapshot body: %w", err)
	}

	takenAt := time.Now()
	return &Picture{
		Data:     data,
		TakenAt:  takenAt,
		CameraSN: c.serial,
		Filename: newFilename(takenAt),
	}, nil
}

func (c *httpCamera) DeletePicture(ctx context.Context, ref string) error {
	return nil
}

package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/thozza/timelapser/config"
)

// Detector finds tethered cameras with gphoto2 auto-detection. Devices are
// cached by port so a camera that stays plugged in is initialized once; a
// different model appearing on a known port evicts the stale entry.
type Detector struct {
	log *slog.Logger

	mu    sync.Mutex
	cache map[string]*detectedCamera
}

type detectedCamera struct {
	name string
	cam  Camera
}

func NewDetector(log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		log:   log.With("svc", "detector"),
		cache: make(map[string]*detectedCamera),
	}
}

// Detect returns the currently attached cameras. A busy device is skipped
// with a warning, never treated as fatal.
func (d *Detector) Detect(ctx context.Context) ([]Camera, error) {
	output, err := exec.CommandContext(ctx, GphotoBinary, "--auto-detect").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("fail to run %s --auto-detect: %w", GphotoBinary, err)
	}
	return d.reconcile(parseAutoDetect(string(output))), nil
}

// reconcile updates the cache against a fresh detection pass. Evicted
// devices (vanished or replaced on their port) are closed so their
// download directories do not pile up across camera churn.
func (d *Detector) reconcile(found []detection) []Camera {
	d.mu.Lock()
	defer d.mu.Unlock()

	var cameras []Camera
	seen := make(map[string]bool)
	for _, det := range found {
		seen[det.port] = true

		cached, ok := d.cache[det.port]
		if ok && cached.name != det.name {
			// a different device took over this port
			d.evict(det.port)
			cached = nil
		}

		if cached == nil {
			cam, err := NewGphotoCamera(d.log, det.name, det.port)
			if err != nil {
				if errors.Is(err, ErrCameraBusy) {
					d.log.Warn("Not using busy device", "name", det.name, "port", det.port)
					continue
				}
				d.log.Warn("fail to initialize device", "name", det.name, "port", det.port, "err", err)
				continue
			}
			cached = &detectedCamera{name: det.name, cam: cam}
			d.cache[det.port] = cached
		}

		cameras = append(cameras, cached.cam)
	}

	// forget devices that are gone
	for port := range d.cache {
		if !seen[port] {
			d.evict(port)
		}
	}

	return cameras
}

// evict drops one cache entry and tears the device down if it supports it.
// Callers hold d.mu.
func (d *Detector) evict(port string) {
	cached, ok := d.cache[port]
	if !ok {
		return
	}
	delete(d.cache, port)

	if closer, ok := cached.cam.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			d.log.Warn("fail to close evicted camera", "port", port, "err", err)
		}
	}
}

type detection struct {
	name string
	port string
}

// parseAutoDetect reads the "Model ... Port" table gphoto2 prints.
func parseAutoDetect(output string) []detection {
	var found []detection
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Model") || strings.HasPrefix(line, "---") {
			continue
		}
		idx := strings.LastIndexFunc(line, func(r rune) bool { return r == ' ' || r == '\t' })
		if idx < 0 {
			continue
		}
		port := strings.TrimSpace(line[idx+1:])
		name := strings.TrimSpace(line[:idx])
		if !strings.Contains(port, ":") || name == "" {
			continue
		}
		found = append(found, detection{name: name, port: port})
	}
	return found
}

// FromSpecs builds the statically configured cameras. gphoto2 entries are
// initialized directly on their configured port, bypassing auto-detection.
func FromSpecs(log *slog.Logger, specs []config.CameraSpec) ([]Camera, error) {
	cameras := make([]Camera, 0, len(specs))
	for _, spec := range specs {
		switch spec.Type {
		case "gphoto2":
			cam, err := NewGphotoCamera(log, spec.Serial, spec.Port)
			if err != nil {
				return nil, fmt.Errorf("camera on port %s: %w", spec.Port, err)
			}
			cameras = append(cameras, cam)
		case "http":
			cameras = append(cameras, NewHTTPCamera(log, spec))
		case "v4l2":
			cam, err := NewUSBCamera(log, spec)
			if err != nil {
				return nil, fmt.Errorf("camera on device %s: %w", spec.Device, err)
			}
			cameras = append(cameras, cam)
		default:
			return nil, fmt.Errorf("unknown camera type %q", spec.Type)
		}
	}
	return cameras, nil
}

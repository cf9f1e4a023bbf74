package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

const GphotoBinary = "gphoto2"

var (
	serialNumberRe = regexp.MustCompile(`Serial Number: (.*)`)
	cameraFileRe   = regexp.MustCompile(`New file is in location (\S+) on the camera`)
)

// gphotoCamera drives a tethered camera through the gphoto2 CLI. A capture
// leaves the frame on the memory card and downloads a copy, so pictures can
// be kept or deleted after dispatch.
type gphotoCamera struct {
	log *slog.Logger

	name   string
	port   string
	serial string
	tmpDir string

	// gphoto2 allows one operation per device at a time
	mu sync.Mutex
}

// NewGphotoCamera initializes the device on the given port and reads its
// serial number from the camera summary.
func NewGphotoCamera(log *slog.Logger, name, port string) (Camera, error) {
	if log == nil {
		log = slog.Default()
	}

	tmpDir, err := os.MkdirTemp("", "timelapser")
	if err != nil {
		return nil, fmt.Errorf("fail to create tmp dir: %w", err)
	}

	cam := &gphotoCamera{
		log:    log.With("svc", "camera", "port", port),
		name:   name,
		port:   port,
		tmpDir: tmpDir,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	summary, err := cam.run(ctx, "--summary")
	if err != nil {
		return nil, fmt.Errorf("fail to read camera summary: %w", err)
	}
	cam.serial = serialFromSummary(summary)
	if cam.serial == "" {
		cam.log.Warn("no serial number in camera summary, using port as identity")
		cam.serial = port
	}

	cam.log.Info("Initialized camera", "name", name, "serial", cam.serial)
	return cam, nil
}

func (c *gphotoCamera) SerialNumber() string {
	return c.serial
}

// Close removes the download directory. Called when the device vanishes or
// is replaced on its port.
func (c *gphotoCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(c.tmpDir)
}

func (c *gphotoCamera) TakePicture(ctx context.Context) (*Picture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	takenAt := time.Now()
	local := filepath.Join(c.tmpDir, newFilename(takenAt))

	output, err := c.run(ctx,
		"--capture-image-and-download",
		"--keep",
		"--filename", local,
	)
	if err != nil {
		return nil, fmt.Errorf("fail to capture: %w", err)
	}
	defer os.Remove(local)

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("fail to read downloaded shot: %w", err)
	}

	ref := cameraFileFromOutput(output)
	pic := &Picture{
		Data:     data,
		TakenAt:  takenAt,
		CameraSN: c.serial,
		Filename: filepath.Base(local),
		Ref:      ref,
	}
	if ref != "" {
		pic.Filename = path.Base(ref)
	}
	return pic, nil
}

func (c *gphotoCamera) DeletePicture(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	folder, name := path.Split(ref)
	_, err := c.run(ctx, "--folder", path.Clean(folder), "--delete-file", name)
	if err != nil {
		return fmt.Errorf("fail to delete %s from camera: %w", ref, err)
	}
	return nil
}

func (c *gphotoCamera) run(ctx context.Context, args ...string) (string, error) {
	args = append([]string{"--port", c.port, "--quiet"}, args...)
	c.log.Debug("gphoto2 args", "args", args)

	cmd := exec.CommandContext(ctx, GphotoBinary, args...)
	output, err := cmd.CombinedOutput()
	c.log.Debug("gphoto2 output", "output", string(output))
	if err != nil {
		if strings.Contains(string(output), "Could not claim the USB device") {
			return "", ErrCameraBusy
		}
		return "", fmt.Errorf("fail to run %s: %w", GphotoBinary, err)
	}
	return string(output), nil
}

func serialFromSummary(summary string) string {
	match := serialNumberRe.FindStringSubmatch(summary)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func cameraFileFromOutput(output string) string {
	match := cameraFileRe.FindStringSubmatch(output)
	if match == nil {
		return ""
	}
	return match[1]
}

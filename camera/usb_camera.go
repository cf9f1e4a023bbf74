package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/thozza/timelapser/config"
)

const (
	V4L2_PIX_FMT_PJPG = 0x47504A50
	V4L2_PIX_FMT_YUYV = 0x56595559
)

var supportedFormats = map[webcam.PixelFormat]bool{
	V4L2_PIX_FMT_PJPG: false,
	V4L2_PIX_FMT_YUYV: true,
}

// usbCamera captures from a V4L2 webcam. The device streams continuously; a
// background goroutine keeps the latest raw frame and TakePicture encodes it
// on demand. Nothing is retained on the device.
type usbCamera struct {
	log *slog.Logger

	serial      string
	cam         *webcam.Webcam
	imageWidth  int
	imageHeight int

	mu    sync.RWMutex
	frame []byte
}

func NewUSBCamera(log *slog.Logger, spec config.CameraSpec) (Camera, error) {
	if log == nil {
		log = slog.Default()
	}

	cam, err := webcam.Open(spec.Device)
	if err != nil {
		return nil, fmt.Errorf("fail to open camera: %w", err)
	}

	formatDesc := cam.GetSupportedFormats()
	log.Debug("Supported formats", "formats", formatDesc)

	var format webcam.PixelFormat
	for f, desc := range formatDesc {
		if supportedFormats[f] {
			log.Debug("Picked format", "format", desc)
			format = f
			break
		}
	}
	if format == 0 {
		return nil, fmt.Errorf("found no supported formats on %s", spec.Device)
	}

	sizes := frameSizes(cam.GetSupportedFrameSizes(format))
	sort.Sort(sizes)
	size := sizes[len(sizes)-1]

	f, w, h, err := cam.SetImageFormat(format, size.MaxWidth, size.MaxHeight)
	if err != nil {
		return nil, fmt.Errorf("fail to set image format: %w", err)
	}
	log.Info("Set image format", "format", f, "width", w, "height", h)

	if err := cam.StartStreaming(); err != nil {
		return nil, fmt.Errorf("fail to start streaming: %w", err)
	}

	svc := &usbCamera{
		log:         log.With("svc", "camera", "serial", spec.Serial),
		serial:      spec.Serial,
		cam:         cam,
		imageWidth:  int(w),
		imageHeight: int(h),
	}

	go svc.pumpFrames()

	return svc, nil
}

func (c *usbCamera) SerialNumber() string {
	return c.serial
}

func (c *usbCamera) TakePicture(ctx context.Context) (*Picture, error) {
	c.mu.RLock()
	frame := c.frame
	c.mu.RUnlock()

	if frame == nil {
		return nil, errors.New("frame not yet available")
	}

	data, err := c.encodeToJPEG(frame)
	if err != nil {
		return nil, err
	}

	takenAt := time.Now()
	return &Picture{
		Data:     data,
		TakenAt:  takenAt,
		CameraSN: c.serial,
		Filename: newFilename(takenAt),
	}, nil
}

func (c *usbCamera) DeletePicture(ctx context.Context, ref string) error {
	return nil
}

func (c *usbCamera) pumpFrames() {
	for {
		err := c.cam.WaitForFrame(5)
		if err != nil {
			c.log.Warn("fail to wait for frame", "err", err)
			continue
		}

		frame, err := c.cam.ReadFrame()
		if err != nil {
			c.log.Warn("fail to read frame", "err", err)
			continue
		}

		c.mu.Lock()
		c.frame = frame
		c.mu.Unlock()
	}
}

func (c *usbCamera) encodeToJPEG(frame []byte) ([]byte, error) {
	yuyv := image.NewYCbCr(image.Rect(0, 0, c.imageWidth, c.imageHeight), image.YCbCrSubsampleRatio422)
	for i := range yuyv.Cb {
		ii := i * 4
		yuyv.Y[i*2] = frame[ii]
		yuyv.Y[i*2+1] = frame[ii+2]
		yuyv.Cb[i] = frame[ii+1]
		yuyv.Cr[i] = frame[ii+3]
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, yuyv, nil); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

type frameSizes []webcam.FrameSize

func (slice frameSizes) Len() int {
	return len(slice)
}

func (slice frameSizes) Less(i, j int) bool {
	return slice[i].MaxWidth*slice[i].MaxHeight < slice[j].MaxWidth*slice[j].MaxHeight
}

func (slice frameSizes) Swap(i, j int) {
	slice[i], slice[j] = slice[j], slice[i]
}

package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrCameraBusy means the device is claimed by something else right now.
// Schedulers treat it as a skipped cycle.
var ErrCameraBusy = errors.New("camera device is busy")

// Picture is one captured frame. It lives only for the dispatch cycle that
// produced it.
type Picture struct {
	Data     []byte
	TakenAt  time.Time
	CameraSN string
	Filename string
	// Ref is the on-device file reference. Empty when the device retains
	// nothing, in which case there is nothing to delete after dispatch.
	Ref string
}

// Camera abstracts one physical device. Implementations serialize
// concurrent captures on the same device internally, so several schedulers
// may share one Camera.
type Camera interface {
	SerialNumber() string
	TakePicture(ctx context.Context) (*Picture, error)
	DeletePicture(ctx context.Context, ref string) error
}

// newFilename names a frame whose device supplies no name of its own.
// The timestamp prefix keeps directory listings in capture order.
func newFilename(takenAt time.Time) string {
	return fmt.Sprintf("%s-%s.jpg", takenAt.Format("20060102-150405"), ulid.Make())
}

// Package scheduler runs one independent capture loop per (camera,
// configuration) pair and supervises the set of loops.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thozza/timelapser/camera"
	"github.com/thozza/timelapser/config"
	"github.com/thozza/timelapser/datastore"
	"github.com/thozza/timelapser/dispatch"
)

type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateCapturing
	StateDispatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateCapturing:
		return "capturing"
	case StateDispatching:
		return "dispatching"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CycleRecord summarizes one completed capture-and-dispatch cycle.
type CycleRecord struct {
	CameraSN  string
	Filename  string
	TakenAt   time.Time
	Succeeded int
	Failed    int
	Deleted   bool
}

// Recorder receives completed cycle records, e.g. the capture journal.
type Recorder interface {
	Record(rec CycleRecord)
}

// Scheduler drives captures for one camera under one configuration. Cycles
// are strictly sequential; the inter-cycle wait is measured from the end of
// the previous cycle, so a slow dispatch never overlaps the next capture.
type Scheduler struct {
	log      *slog.Logger
	cfg      config.TimelapseConfig
	cam      camera.Camera
	stores   []datastore.Datastore
	coord    *dispatch.Coordinator
	recorder Recorder

	now func() time.Time

	state     atomic.Int32
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New wires a scheduler; recorder may be nil. The scheduler stays Idle until
// Start is called.
func New(log *slog.Logger, cfg config.TimelapseConfig, cam camera.Camera, stores []datastore.Datastore, coord *dispatch.Coordinator, recorder Recorder) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		log:      log.With("svc", "scheduler", "serial", cam.SerialNumber()),
		cfg:      cfg,
		cam:      cam,
		stores:   stores,
		coord:    coord,
		recorder: recorder,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Start launches the capture loop. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Stop requests cooperative shutdown and blocks until the loop exits. An
// in-flight capture or dispatch always completes first; the stop takes
// effect at the next waiting boundary. Stopping a scheduler that was never
// started moves it straight to Stopped; a later Start is then a no-op.
func (s *Scheduler) Stop() {
	s.startOnce.Do(func() {
		// claimed the start slot: the loop never ran and never will
		s.setState(StateStopped)
		close(s.done)
	})
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Scheduler) run() {
	defer func() {
		s.setState(StateStopped)
		close(s.done)
	}()

	s.log.Info("Scheduler started", "config", s.cfg.String())

	for {
		s.setState(StateWaiting)
		timer := time.NewTimer(s.cfg.Frequency)
		select {
		case <-s.stop:
			timer.Stop()
			s.log.Info("Scheduler stopped")
			return
		case <-timer.C:
		}

		now := s.now()
		if !s.cfg.PermitsAt(now) {
			s.log.Debug("Outside capture window", "now", now)
			continue
		}

		s.cycle(now)
	}
}

// cycle runs one capture-to-persisted-or-failed round. It deliberately uses
// a background context: once a cycle started, a stop request waits for it.
func (s *Scheduler) cycle(now time.Time) {
	ctx := context.Background()

	s.setState(StateCapturing)
	pic, err := s.cam.TakePicture(ctx)
	if err != nil {
		if errors.Is(err, camera.ErrCameraBusy) {
			s.log.Warn("Camera busy, skipping cycle")
		} else {
			s.log.Warn("Capture failed, skipping cycle", "err", err)
		}
		return
	}

	s.setState(StateDispatching)
	outcomes := s.coord.Dispatch(ctx, pic, s.stores)

	rec := CycleRecord{
		CameraSN: pic.CameraSN,
		Filename: pic.Filename,
		TakenAt:  pic.TakenAt,
	}
	for _, o := range outcomes {
		if o.OK() {
			rec.Succeeded++
		} else {
			rec.Failed++
		}
	}

	if !s.cfg.KeepOnCamera && dispatch.Satisfied(outcomes) && pic.Ref != "" {
		if err := s.cam.DeletePicture(ctx, pic.Ref); err != nil {
			s.log.Warn("fail to delete picture from camera", "ref", pic.Ref, "err", err)
		} else {
			rec.Deleted = true
		}
	}

	if s.recorder != nil {
		s.recorder.Record(rec)
	}

	s.log.Info("Cycle complete",
		"filename", pic.Filename,
		"succeeded", rec.Succeeded,
		"failed", rec.Failed,
		"deleted", rec.Deleted,
		"took", time.Since(now).String())
}

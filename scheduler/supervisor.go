package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/thozza/timelapser/camera"
	"github.com/thozza/timelapser/config"
	"github.com/thozza/timelapser/datastore"
	"github.com/thozza/timelapser/dispatch"
)

// ErrNoConfigurations is the only fatal startup condition: nothing to run.
var ErrNoConfigurations = errors.New("no timelapse configurations")

// Supervisor owns the camera-to-config mapping. It starts one scheduler per
// (camera, matching config) pair and handles dynamic attach/detach without
// touching unrelated schedulers.
type Supervisor struct {
	log      *slog.Logger
	configs  []config.TimelapseConfig
	coord    *dispatch.Coordinator
	recorder Recorder

	mu         sync.Mutex
	cameras    map[string]camera.Camera
	schedulers map[string][]*Scheduler
}

func NewSupervisor(log *slog.Logger, configs []config.TimelapseConfig, recorder Recorder) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(configs) == 0 {
		return nil, ErrNoConfigurations
	}

	return &Supervisor{
		log:        log.With("svc", "supervisor"),
		configs:    configs,
		coord:      dispatch.NewCoordinator(log),
		recorder:   recorder,
		cameras:    make(map[string]camera.Camera),
		schedulers: make(map[string][]*Scheduler),
	}, nil
}

// matching returns the configs that apply to the given serial number. An
// entry with no camera_sn matches every camera.
func (s *Supervisor) matching(serial string) []config.TimelapseConfig {
	var matched []config.TimelapseConfig
	for _, cfg := range s.configs {
		if cfg.CameraSN == "" || cfg.CameraSN == serial {
			matched = append(matched, cfg)
		}
	}
	return matched
}

// Attach registers a camera and starts schedulers for every matching config.
// Attaching an already known serial is a no-op.
func (s *Supervisor) Attach(cam camera.Camera) error {
	serial := cam.SerialNumber()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cameras[serial]; ok {
		return nil
	}

	// build every pair before starting any, so a bad spec on a later
	// config leaves nothing running behind
	var scheds []*Scheduler
	for _, cfg := range s.matching(serial) {
		stores, err := datastore.FromSpecs(s.log, cfg.Datastores)
		if err != nil {
			return fmt.Errorf("camera %s: %w", serial, err)
		}
		scheds = append(scheds, New(s.log, cfg, cam, stores, s.coord, s.recorder))
	}
	for _, sched := range scheds {
		sched.Start()
	}

	if len(scheds) == 0 {
		s.log.Info("No configuration matches camera, leaving it idle", "serial", serial)
	}

	s.cameras[serial] = cam
	s.schedulers[serial] = scheds
	s.log.Info("Camera attached", "serial", serial, "schedulers", len(scheds))
	return nil
}

// Detach stops and removes all schedulers of one camera. Stopping waits for
// in-flight cycles, so it happens outside the lock.
func (s *Supervisor) Detach(serial string) {
	s.mu.Lock()
	scheds, ok := s.schedulers[serial]
	delete(s.schedulers, serial)
	delete(s.cameras, serial)
	s.mu.Unlock()

	if !ok {
		return
	}
	for _, sched := range scheds {
		sched.Stop()
	}
	s.log.Info("Camera detached", "serial", serial, "schedulers", len(scheds))
}

// Sync reconciles the supervisor with a freshly discovered camera set:
// new serials are attached, vanished serials detached.
func (s *Supervisor) Sync(cams []camera.Camera) {
	current := make(map[string]bool, len(cams))
	for _, cam := range cams {
		current[cam.SerialNumber()] = true
		if err := s.Attach(cam); err != nil {
			s.log.Error("fail to attach camera", "serial", cam.SerialNumber(), "err", err)
		}
	}

	s.mu.Lock()
	var gone []string
	for serial := range s.cameras {
		if !current[serial] {
			gone = append(gone, serial)
		}
	}
	s.mu.Unlock()

	for _, serial := range gone {
		s.Detach(serial)
	}
}

// UnmatchedConfigs lists entries whose serial number filter matches no
// attached camera. Inert, not an error; callers log a warning.
func (s *Supervisor) UnmatchedConfigs() []config.TimelapseConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	var unmatched []config.TimelapseConfig
	for _, cfg := range s.configs {
		if cfg.CameraSN == "" {
			continue
		}
		if _, ok := s.cameras[cfg.CameraSN]; !ok {
			unmatched = append(unmatched, cfg)
		}
	}
	return unmatched
}

// SchedulerCount reports the number of running schedulers.
func (s *Supervisor) SchedulerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, scheds := range s.schedulers {
		count += len(scheds)
	}
	return count
}

// StopAll shuts every scheduler down, waiting for in-flight cycles.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	var all []*Scheduler
	for serial, scheds := range s.schedulers {
		all = append(all, scheds...)
		delete(s.schedulers, serial)
		delete(s.cameras, serial)
	}
	s.mu.Unlock()

	for _, sched := range all {
		sched.Stop()
	}
	s.log.Info("All schedulers stopped", "count", len(all))
}

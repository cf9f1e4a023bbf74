package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ConfigFileName = "timelapser.yaml"

// DefaultFrequency is the capture cadence used when an entry gives none.
const DefaultFrequency = 10 * time.Second

// DefaultRemoteTimeout bounds a single remote upload attempt.
const DefaultRemoteTimeout = 120 * time.Second

type DatastoreType string

const (
	DatastoreFilesystem DatastoreType = "filesystem"
	DatastoreRemote     DatastoreType = "remote"
)

// TimeOfDay is a wall-clock time without a date, used for capture windows.
type TimeOfDay struct {
	Hour   int `yaml:"hour"`
	Minute int `yaml:"minute"`
	Second int `yaml:"second"`
}

func (t TimeOfDay) Seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("hour must be in 0..23, got %d", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("minute must be in 0..59, got %d", t.Minute)
	}
	if t.Second < 0 || t.Second > 59 {
		return fmt.Errorf("second must be in 0..59, got %d", t.Second)
	}
	return nil
}

// DatastoreSpec selects and configures one persistence backend.
type DatastoreSpec struct {
	Type           DatastoreType `yaml:"type"`
	StorePath      string        `yaml:"store_path"`
	AuthToken      string        `yaml:"auth_token"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
}

// Timeout returns the upload deadline for a remote datastore.
func (s DatastoreSpec) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return DefaultRemoteTimeout
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func (s DatastoreSpec) validate() error {
	if s.Type == "" {
		return fmt.Errorf("datastore must have a 'type' defined")
	}
	if s.Type != DatastoreFilesystem && s.Type != DatastoreRemote {
		return fmt.Errorf("datastore 'type' must be one of [%s %s], got %q",
			DatastoreFilesystem, DatastoreRemote, s.Type)
	}
	if s.StorePath == "" {
		return fmt.Errorf("datastore must have a 'store_path' defined")
	}
	if s.Type == DatastoreRemote && s.AuthToken == "" {
		return fmt.Errorf("datastore type 'remote' must have an 'auth_token' defined")
	}
	return nil
}

// CameraSpec statically configures one camera device. When the cameras
// section is absent, devices are auto-detected instead.
type CameraSpec struct {
	Type     string `yaml:"type"` // gphoto2 | http | v4l2
	Serial   string `yaml:"serial"`
	Port     string `yaml:"port"`     // gphoto2 port, e.g. "usb:002,041"
	URL      string `yaml:"url"`      // http snapshot endpoint
	Username string `yaml:"username"` // http digest auth
	Password string `yaml:"password"`
	Device   string `yaml:"device"` // v4l2 device node, e.g. /dev/video0
}

func (s CameraSpec) validate() error {
	switch s.Type {
	case "gphoto2":
		if s.Port == "" {
			return fmt.Errorf("camera type 'gphoto2' must have a 'port' defined")
		}
	case "http":
		if s.URL == "" {
			return fmt.Errorf("camera type 'http' must have a 'url' defined")
		}
		if s.Serial == "" {
			return fmt.Errorf("camera type 'http' must have a 'serial' defined")
		}
	case "v4l2":
		if s.Device == "" {
			return fmt.Errorf("camera type 'v4l2' must have a 'device' defined")
		}
		if s.Serial == "" {
			return fmt.Errorf("camera type 'v4l2' must have a 'serial' defined")
		}
	case "":
		return fmt.Errorf("camera must have a 'type' defined")
	default:
		return fmt.Errorf("unknown camera type %q", s.Type)
	}
	return nil
}

// TimelapseConfig is one immutable timelapse entry. A camera matching
// several entries runs one scheduler per entry.
type TimelapseConfig struct {
	WeekDays     []time.Weekday
	SinceTOD     TimeOfDay
	TillTOD      TimeOfDay
	Frequency    time.Duration
	KeepOnCamera bool
	CameraSN     string // empty = applies to every camera
	Datastores   []DatastoreSpec
}

func (c TimelapseConfig) String() string {
	days := make([]string, 0, len(c.WeekDays))
	for _, d := range c.WeekDays {
		days = append(days, d.String()[:3])
	}
	return fmt.Sprintf("<TimelapseConfig week_days=%v since=%s till=%s frequency=%s keep_on_camera=%t camera_sn=%q datastores=%d>",
		days, c.SinceTOD, c.TillTOD, c.Frequency, c.KeepOnCamera, c.CameraSN, len(c.Datastores))
}

// Default returns an entry with every option at its documented default:
// all week days, 00:00:00-23:59:59, 10s cadence, pictures kept on camera,
// one filesystem datastore under the user's home.
func Default() TimelapseConfig {
	return TimelapseConfig{
		WeekDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
			time.Friday, time.Saturday, time.Sunday,
		},
		SinceTOD:     TimeOfDay{0, 0, 0},
		TillTOD:      TimeOfDay{23, 59, 59},
		Frequency:    DefaultFrequency,
		KeepOnCamera: true,
		Datastores: []DatastoreSpec{
			{Type: DatastoreFilesystem, StorePath: defaultStorePath()},
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "timelapser_store")
	}
	return filepath.Join(home, "timelapser_store")
}

// File is a fully parsed configuration document.
type File struct {
	Timelapses  []TimelapseConfig
	Cameras     []CameraSpec
	JournalPath string
}

// DefaultFile is the configuration used when no file exists at all.
func DefaultFile() *File {
	return &File{Timelapses: []TimelapseConfig{Default()}}
}

type rawFile struct {
	Timelapses  []rawTimelapse `yaml:"timelapse_configuration"`
	Cameras     []CameraSpec   `yaml:"cameras"`
	JournalPath string         `yaml:"journal_path"`
}

type rawTimelapse struct {
	WeekDays     []string   `yaml:"week_days"`
	SinceTOD     *TimeOfDay `yaml:"since_tod"`
	TillTOD      *TimeOfDay `yaml:"till_tod"`
	Frequency    *int       `yaml:"frequency"`
	KeepOnCamera *bool      `yaml:"keep_on_camera"`
	CameraSN     string     `yaml:"camera_sn"`
	// Node so that an absent key, a single mapping and an explicit
	// (possibly empty) list can be told apart.
	Datastore yaml.Node `yaml:"datastore"`
}

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// Load reads and validates a configuration document.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	file := &File{
		Cameras:     raw.Cameras,
		JournalPath: raw.JournalPath,
	}

	for i, spec := range raw.Cameras {
		if err := spec.validate(); err != nil {
			return nil, fmt.Errorf("cameras[%d]: %w", i, err)
		}
	}

	for i, entry := range raw.Timelapses {
		cfg, err := entry.resolve()
		if err != nil {
			return nil, fmt.Errorf("timelapse_configuration[%d]: %w", i, err)
		}
		file.Timelapses = append(file.Timelapses, cfg)
	}

	return file, nil
}

// resolve applies defaults and validates a single entry.
func (r rawTimelapse) resolve() (TimelapseConfig, error) {
	cfg := Default()
	cfg.CameraSN = r.CameraSN

	if r.WeekDays != nil {
		days := make([]time.Weekday, 0, len(r.WeekDays))
		for _, name := range r.WeekDays {
			day, ok := weekdayNames[strings.ToLower(name)]
			if !ok {
				return cfg, fmt.Errorf("unknown week day %q", name)
			}
			days = append(days, day)
		}
		cfg.WeekDays = days
	}

	if r.SinceTOD != nil {
		if err := r.SinceTOD.validate(); err != nil {
			return cfg, fmt.Errorf("since_tod: %w", err)
		}
		cfg.SinceTOD = *r.SinceTOD
	}
	if r.TillTOD != nil {
		if err := r.TillTOD.validate(); err != nil {
			return cfg, fmt.Errorf("till_tod: %w", err)
		}
		cfg.TillTOD = *r.TillTOD
	}

	if r.Frequency != nil {
		if *r.Frequency <= 0 {
			return cfg, fmt.Errorf("frequency must be > 0, got %d", *r.Frequency)
		}
		cfg.Frequency = time.Duration(*r.Frequency) * time.Second
	}

	if r.KeepOnCamera != nil {
		cfg.KeepOnCamera = *r.KeepOnCamera
	}

	specs, err := resolveDatastores(r.Datastore)
	if err != nil {
		return cfg, err
	}
	if specs != nil {
		cfg.Datastores = specs
	}

	return cfg, nil
}

// resolveDatastores returns nil when the key is absent (keep the default),
// an empty slice for an explicit empty list (no persistence), and accepts a
// single datastore given as a plain mapping.
func resolveDatastores(node yaml.Node) ([]DatastoreSpec, error) {
	var specs []DatastoreSpec

	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.MappingNode:
		var spec DatastoreSpec
		if err := node.Decode(&spec); err != nil {
			return nil, fmt.Errorf("datastore: %w", err)
		}
		specs = []DatastoreSpec{spec}
	case yaml.SequenceNode:
		if err := node.Decode(&specs); err != nil {
			return nil, fmt.Errorf("datastore: %w", err)
		}
		if specs == nil {
			// explicit empty list: no persistence, distinct from absent
			specs = []DatastoreSpec{}
		}
	default:
		return nil, fmt.Errorf("datastore must be a mapping or a list")
	}

	for i, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, fmt.Errorf("datastore[%d]: %w", i, err)
		}
	}
	return specs, nil
}

// FindConfigFile looks for timelapser.yaml in the working directory, the
// user's home and /etc, in that order. Empty string means none was found.
func FindConfigFile() string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ConfigFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ConfigFileName))
	}
	paths = append(paths, filepath.Join("/etc", ConfigFileName))

	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thozza/timelapser/camera"
	"github.com/thozza/timelapser/config"
	"github.com/thozza/timelapser/journal"
	"github.com/thozza/timelapser/scheduler"
)

var loglevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "timelapser",
	Short: "Periodically trigger picture capture on cameras and store the results",
	Run: func(cmd *cobra.Command, args []string) {
		if err := entrypoint(); err != nil {
			slog.Error("entrypoint error", "err", err)
			os.Exit(1)
		}
	},
}

var listCamerasCmd = &cobra.Command{
	Use:   "list-cameras",
	Short: "List available cameras on the system",
	Run: func(cmd *cobra.Command, args []string) {
		if err := listCameras(); err != nil {
			slog.Error("list-cameras error", "err", err)
			os.Exit(1)
		}
	},
}

var checkConfCmd = &cobra.Command{
	Use:   "check-conf [CONFIG]",
	Short: "Check validity of the given (or preferred) configuration",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := viper.GetString("config")
		if len(args) > 0 {
			path = args[0]
		}
		if err := checkConf(path); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration check failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func initConfig() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("detect_interval", 30*time.Second)
}

func newLogger() *slog.Logger {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: loglevel,
	}))

	if viper.GetBool("verbose") {
		loglevel.Set(slog.LevelDebug)
	} else {
		setLogLevel(viper.GetString("loglevel"))
	}
	return log
}

func entrypoint() error {
	log := newLogger()

	file, err := loadConfigFile(log)
	if err != nil {
		return err
	}
	log.Info("Starting timelapser", "configs", len(file.Timelapses), "loglevel", viper.GetString("loglevel"))

	var recorder scheduler.Recorder
	if file.JournalPath != "" {
		j, err := journal.Open(log, file.JournalPath)
		if err != nil {
			return fmt.Errorf("fail to open journal: %w", err)
		}
		defer j.Close()
		recorder = j
		log.Info("Capture journal enabled", "path", file.JournalPath)
	}

	sup, err := scheduler.NewSupervisor(log, file.Timelapses, recorder)
	if err != nil {
		return fmt.Errorf("fail to create supervisor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(file.Cameras) > 0 {
		cams, err := camera.FromSpecs(log, file.Cameras)
		if err != nil {
			return fmt.Errorf("fail to initialize cameras: %w", err)
		}
		sup.Sync(cams)
		warnUnmatched(log, sup)
		<-ctx.Done()
	} else {
		pollCameras(ctx, log, sup)
	}

	log.Info("Shutting down")
	sup.StopAll()
	return nil
}

// pollCameras keeps the supervisor in sync with auto-detected devices until
// the context is cancelled.
func pollCameras(ctx context.Context, log *slog.Logger, sup *scheduler.Supervisor) {
	detector := camera.NewDetector(log)
	interval := viper.GetDuration("detect_interval")

	for {
		cams, err := detector.Detect(ctx)
		if err != nil {
			log.Warn("Camera detection failed", "err", err)
		} else {
			sup.Sync(cams)
			warnUnmatched(log, sup)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func warnUnmatched(log *slog.Logger, sup *scheduler.Supervisor) {
	for _, cfg := range sup.UnmatchedConfigs() {
		log.Warn("Configured serial number matches no discovered camera", "serial", cfg.CameraSN)
	}
}

func loadConfigFile(log *slog.Logger) (*config.File, error) {
	path := viper.GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		log.Info("No configuration file found, using default values")
		return config.DefaultFile(), nil
	}

	log.Debug("Using configuration file", "path", path)
	file, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("fail to load config %s: %w", path, err)
	}
	return file, nil
}

func listCameras() error {
	log := newLogger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cams, err := camera.NewDetector(log).Detect(ctx)
	if err != nil {
		return err
	}
	if len(cams) == 0 {
		fmt.Println("No cameras found")
		return nil
	}
	for _, cam := range cams {
		fmt.Println(cam.SerialNumber())
	}
	return nil
}

func checkConf(path string) error {
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return fmt.Errorf("no configuration file found")
	}

	file, err := config.Load(path)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration %s is valid: %d timelapse entries, %d cameras\n",
		path, len(file.Timelapses), len(file.Cameras))
	return nil
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		loglevel.Set(slog.LevelDebug)
	case "info":
		loglevel.Set(slog.LevelInfo)
	case "warn":
		loglevel.Set(slog.LevelWarn)
	case "error":
		loglevel.Set(slog.LevelError)
	default:
		slog.Warn("setLogLevel", "msg", fmt.Sprintf("unknown log level %s, using INFO instead", level))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Use more verbose output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration YAML file to use")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(listCamerasCmd, checkConfCmd)
}

func main() {
	rootCmd.Execute()
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/v4l2cam/cmd"
	"github.com/smazurov/v4l2cam/internal/api"
	"github.com/smazurov/v4l2cam/internal/capture"
	"github.com/smazurov/v4l2cam/internal/config"
	"github.com/smazurov/v4l2cam/internal/events"
	"github.com/smazurov/v4l2cam/internal/led"
	"github.com/smazurov/v4l2cam/internal/logging"
	"github.com/smazurov/v4l2cam/internal/metrics"
	"github.com/smazurov/v4l2cam/internal/metrics/exporters"
	"github.com/smazurov/v4l2cam/internal/mqtt"
	"github.com/smazurov/v4l2cam/internal/systemd"
	"github.com/smazurov/v4l2cam/internal/version"
	"github.com/smazurov/v4l2cam/pkg/linuxav/hotplug"
	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

// runnerStopTimeout bounds how long shutdown waits for a grab blocked in the driver.
const runnerStopTimeout = 3 * time.Second

// defaultStallTimeout is how long a streaming session may go without a frame
// before the systemd watchdog ping is withheld.
const defaultStallTimeout = 10 * time.Second

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Address to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin for browser clients" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Capture settings
	DeviceIndex        int    `help:"Video device index (/dev/videoN)" short:"d" default:"0" toml:"capture.device_index" env:"CAPTURE_DEVICE_INDEX"`
	DevicePath         string `help:"Video device node, overrides the index" toml:"capture.device_path" env:"CAPTURE_DEVICE_PATH"`
	Width              int    `help:"Requested frame width" default:"640" toml:"capture.width" env:"CAPTURE_WIDTH"`
	Height             int    `help:"Requested frame height" default:"480" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	FPS                string `help:"Requested frame rate, e.g. 30, 29.97 or 30000/1001; empty keeps the driver default" toml:"capture.fps" env:"CAPTURE_FPS"`
	Format             string `help:"Pixel format (yuyv, mjpeg, grey, y16)" default:"yuyv" toml:"capture.format" env:"CAPTURE_FORMAT"`
	ColorOrder         string `help:"Byte order of converted pixels (rgb, bgr)" default:"rgb" toml:"capture.color_order" env:"CAPTURE_COLOR_ORDER"`
	MaxConsecutiveErrs int    `help:"Failed grabs in a row before the session is reopened" default:"10" toml:"capture.max_consecutive_errors" env:"CAPTURE_MAX_CONSECUTIVE_ERRORS"`
	StallTimeout       string `help:"Time without frames before the watchdog reports a stall" default:"10s" toml:"capture.stall_timeout" env:"CAPTURE_STALL_TIMEOUT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Indicator settings
	LED string `help:"Indicator LED under /sys/class/leds; empty detects the board, none disables" toml:"led.name" env:"LED_NAME"`

	// MQTT settings
	MQTTBroker   string `help:"MQTT broker (host:port or URL); empty disables event publishing" toml:"mqtt.broker" env:"MQTT_BROKER"`
	MQTTTopic    string `help:"Topic prefix; defaults to v4l2cam/<device node>" toml:"mqtt.topic" env:"MQTT_TOPIC"`
	MQTTUsername string `help:"MQTT username" toml:"mqtt.username" env:"MQTT_USERNAME"`
	MQTTPassword string `help:"MQTT password" toml:"mqtt.password" env:"MQTT_PASSWORD"`
	MQTTQos      int    `help:"MQTT QoS for published messages (0-2)" default:"0" toml:"mqtt.qos" env:"MQTT_QOS"`

	// Metrics settings
	MetricsEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture string `help:"Capture logging level" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingLinuxav string `help:"V4L2 driver logging level" toml:"logging.linuxav" env:"LOGGING_LINUXAV"`
	LoggingAPI     string `help:"API logging level" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingMQTT    string `help:"MQTT publisher logging level" toml:"logging.mqtt" env:"LOGGING_MQTT"`
}

func (o *Options) captureSettings() cmd.CaptureSettings {
	return cmd.CaptureSettings{
		DeviceIndex: o.DeviceIndex,
		DevicePath:  o.DevicePath,
		Width:       o.Width,
		Height:      o.Height,
		FPS:         o.FPS,
		Format:      o.Format,
		ColorOrder:  o.ColorOrder,
	}
}

func (o *Options) mqttOptions(devicePath string) mqtt.Options {
	host, _ := os.Hostname()
	topic := o.MQTTTopic
	if topic == "" {
		topic = "v4l2cam/" + filepath.Base(devicePath)
	}
	qos := byte(0)
	if o.MQTTQos > 0 && o.MQTTQos <= 2 {
		qos = byte(o.MQTTQos)
	}
	return mqtt.Options{
		Broker:      o.MQTTBroker,
		ClientID:    "v4l2cam-" + host + "-" + filepath.Base(devicePath),
		Username:    o.MQTTUsername,
		Password:    o.MQTTPassword,
		TopicPrefix: topic,
		QoS:         qos,
	}
}

func (o *Options) loggingConfig() logging.Config {
	modules := map[string]string{}
	for name, level := range map[string]string{
		"capture": o.LoggingCapture,
		"linuxav": o.LoggingLinuxav,
		"api":     o.LoggingAPI,
		"http":    o.LoggingHTTP,
		"mqtt":    o.LoggingMQTT,
	} {
		if level != "" {
			modules[name] = level
		}
	}
	return logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		Modules: modules,
	}
}

func main() {
	var cli humacli.CLI
	var options *Options

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		options = opts

		// Flags set on the command line win over env and file
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		newSession, order, err := opts.captureSettings().SessionFactory(logging.GetLogger("linuxav"))
		if err != nil {
			logger.Error("Invalid capture settings", "error", err)
			os.Exit(1)
		}
		stall, err := time.ParseDuration(opts.StallTimeout)
		if err != nil || stall <= 0 {
			logger.Warn("Invalid stall timeout, using default", "value", opts.StallTimeout, "default", defaultStallTimeout)
			stall = defaultStallTimeout
		}

		eventBus := events.New()
		runnerOpts := []capture.RunnerOption{
			capture.WithEventBus(eventBus),
			capture.WithMaxConsecutiveErrors(opts.MaxConsecutiveErrs),
		}
		if fps, _ := cmd.ParseFPS(opts.FPS); fps > 0 {
			runnerOpts = append(runnerOpts, capture.WithFrameInterval(v4l2.FrameInterval(fps)))
		}
		supervisor := capture.NewSupervisor(
			func() capture.Session { return newSession() },
			capture.WithRunnerOptions(runnerOpts...),
			capture.WithNodeWaiter(hotplug.WaitForNode),
		)
		devicePath := newSession().DevicePath()

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			CORSOrigin:   opts.CORSOrigin,
			ColorOrder:   order,
			Source:       supervisor,
			EventBus:     eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)
		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
		var publisher *mqtt.Publisher
		if opts.MQTTBroker != "" {
			publisher = mqtt.NewPublisher(opts.mqttOptions(devicePath), eventBus, logging.GetLogger("mqtt"))
		}
		mqttDone := make(chan struct{})
		ledManager := led.NewManager(led.New(opts.LED, logging.GetLogger("led")), eventBus, logging.GetLogger("led"))

		ctx, cancel := context.WithCancel(context.Background())
		supervisorDone := make(chan struct{})
		var watcher *config.Watcher[logging.Config]

		hooks.OnStart(func() {
			logger.Info("Starting v4l2cam", "version", version.String(), "device", devicePath)

			ledManager.Start()
			go func() {
				defer close(supervisorDone)
				supervisor.Run(ctx)
			}()
			go notifier.Watchdog(ctx, captureHealthy(supervisor, stall))
			go func() {
				defer close(mqttDone)
				if publisher == nil {
					return
				}
				if connErr := publisher.Connect(ctx); connErr != nil {
					logger.Warn("MQTT publishing disabled", "broker", opts.MQTTBroker, "error", connErr)
					return
				}
				publisher.Start()
			}()

			if w, watchErr := config.WatchLogging(opts.Config, logging.GetLogger("config")); watchErr != nil {
				logger.Warn("Config watcher not started", "path", opts.Config, "error", watchErr)
			} else {
				watcher = w
			}

			// SIGHUP re-reads log levels without waiting for a file event
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			go func() {
				for range hup {
					if watcher != nil {
						watcher.Reload()
					}
				}
			}()

			notifier.Status("capturing from " + devicePath)
			notifier.Ready()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			notifier.Stopping()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), runnerStopTimeout)
			defer stopCancel()

			if stopErr := server.Stop(stopCtx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}

			cancel()
			select {
			case <-supervisorDone:
			case <-stopCtx.Done():
				logger.Warn("Capture did not stop in time; device may be stalled", "device", devicePath)
			}
			if publisher != nil {
				select {
				case <-mqttDone:
				case <-stopCtx.Done():
				}
				publisher.Stop()
			}
			ledManager.Stop()
			metrics.DeleteCaptureMetrics(devicePath)
		})
	})

	root := cli.Root()
	root.Use = "v4l2cam"
	root.Short = "Single-buffer V4L2 frame capture with an HTTP API"
	root.Version = version.Long()

	root.AddCommand(cmd.CreateGrabCmd(func() cmd.CaptureSettings {
		return options.captureSettings()
	}))
	root.AddCommand(cmd.CreateDevicesCmd())

	cli.Run()
}

// captureHealthy reports a stall once a streaming session has gone longer
// than stall without a frame. Waiting for an unplugged device is healthy.
func captureHealthy(sup interface{ Status() capture.Status }, stall time.Duration) func() bool {
	return func() bool {
		st := sup.Status()
		if st.State != v4l2.StateStreaming.String() {
			return true
		}
		last := st.StartedAt
		if stats := metrics.GetCaptureStats(st.DevicePath); stats != nil && stats.LastFrame.After(last) {
			last = stats.LastFrame
		}
		return time.Since(last) < stall
	}
}

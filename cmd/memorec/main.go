package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/yegors/memorec/internal/api"
	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/internal/capture"
	"github.com/yegors/memorec/internal/config"
	"github.com/yegors/memorec/internal/memo"
	"github.com/yegors/memorec/internal/metrics"
	"github.com/yegors/memorec/internal/recognizer"
	"github.com/yegors/memorec/internal/segment"
	"github.com/yegors/memorec/internal/session"
	"github.com/yegors/memorec/internal/storage/sqlite"
	"github.com/yegors/memorec/internal/vad"
	"github.com/yegors/memorec/pkg/logger"
)

const usage = `usage: memorec [flags] <destination>

Records the microphone into <destination>: memo.html plus one HH-mm-ss.mp3
per recognized utterance. Stop with Ctrl-C.

The recognizer model directory (-model) must exist at startup with -backend
vosk, the default when built with -tags vosk. Other builds default to
-backend vosk-server, where the server holds the model and memorec checks no
local directory.

flags:
`

// flags override the matching config keys when set
type flags struct {
	configPath string
	modelPath  string
	backend    string
	encoder    string
	serve      string
	logLevel   string
}

func main() {
	os.Exit(run())
}

func run() int {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to a TOML or YAML configuration file")
	flag.StringVar(&f.modelPath, "model", "", "Vosk model directory, required with -backend vosk")
	flag.StringVar(&f.backend, "backend", "", "Recognizer backend: vosk-server, vosk or openai")
	flag.StringVar(&f.encoder, "encoder", "", "Segment encoder: ffmpeg or raw")
	flag.StringVar(&f.serve, "serve", "", "Serve the memo viewer on this address")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}
	destination := flag.Arg(0)

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	if cfg.Recognizer.NeedsModelDirectory() {
		if info, err := os.Stat(cfg.Recognizer.ModelPath); err != nil || !info.IsDir() {
			log.Error("Recognizer model not found. Download a model from https://alphacephei.com/vosk/models and unpack it as the model directory",
				logger.String("model_path", cfg.Recognizer.ModelPath))
			return 1
		}
	}

	if cfg.Capture.Device == "portaudio" && !capture.PortAudioAvailable {
		log.Error("This binary was built without PortAudio; rebuild with -tags portaudio or choose another capture device")
		return 1
	}

	if err := record(cfg, destination, log); err != nil {
		log.Error("Recorder failed", logger.Error(err))
		return 1
	}
	return 0
}

// loadConfig loads the config file and applies flag overrides
func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.modelPath != "" {
		cfg.Recognizer.ModelPath = f.modelPath
	}
	if f.backend != "" {
		cfg.Recognizer.Backend = f.backend
	}
	if f.encoder != "" {
		cfg.Encoder.Type = f.encoder
	}
	if f.serve != "" {
		cfg.Server.Enabled = true
		cfg.Server.Address = f.serve
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// record runs one session until the capture device stops
func record(cfg *config.Config, destination string, log *logger.Logger) error {
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	format := audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// Session index
	var index *sqlite.SessionStorage
	if cfg.Index.Enabled {
		db, err := sqlite.Open(filepath.Join(destination, cfg.Index.File))
		if err != nil {
			return err
		}
		defer db.Close()

		index, err = sqlite.NewSessionStorage(db, log)
		if err != nil {
			return err
		}
		sessionID, err := index.StartSession(destination, time.Now())
		if err != nil {
			return err
		}
		log = log.WithSession(sessionID)
		defer func() {
			if err := index.EndSession(time.Now()); err != nil {
				log.Warn("Failed to end session", logger.Error(err))
			}
		}()
	}

	recognition, err := recognizer.New(ctx, recognizer.Config{
		Backend:      cfg.Recognizer.Backend,
		ModelPath:    cfg.Recognizer.ModelPath,
		ServerURL:    cfg.Recognizer.ServerURL,
		OpenAIAPIKey: cfg.Recognizer.OpenAIAPIKey,
		OpenAIModel:  cfg.Recognizer.OpenAIModel,
		Language:     cfg.Recognizer.Language,
		Timeout:      time.Duration(cfg.Recognizer.TimeoutSeconds) * time.Second,
		VAD: vad.Config{
			Threshold:      cfg.Recognizer.VADThreshold,
			SilenceMs:      cfg.Recognizer.SilenceMs,
			MinSpeechMs:    cfg.Recognizer.MinSpeechMs,
			MaxUtteranceMs: cfg.Recognizer.MaxUtteranceMs,
		},
	}, format, log)
	if err != nil {
		return fmt.Errorf("failed to start recognizer: %w", err)
	}

	opts := session.Options{
		Memo: memo.Options{
			PlaybackRate:  cfg.Memo.PlaybackRate,
			PlaybackDelay: time.Duration(cfg.Memo.PlaybackDelayMs) * time.Millisecond,
		},
		Metrics:    appMetrics,
		Recognizer: recognition,
	}
	if index != nil {
		opts.Index = index
	}
	writer := segment.NewWriter(destination, newEncoder(cfg, format), log)
	controller := session.NewController(destination, writer, opts, log)
	if err := controller.Bootstrap(); err != nil {
		recognition.Close()
		return err
	}

	source := capture.NewSource(newDevice(cfg, format), capture.Options{
		ReadBufferBytes: cfg.Capture.ReadBufferBytes,
		MaxPendingBytes: cfg.Capture.MaxPendingBytes,
	}, log)
	if err := source.Start(ctx); err != nil {
		source.Stop()
		controller.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	events := make(chan session.RecognitionEvent, 16)
	pump := session.NewRecognitionPump(recognition, format, cfg.Audio.FrameMs, appMetrics, log)
	g.Go(func() error {
		return pump.Run(gctx, source.Recognition().Chunks(), events)
	})
	g.Go(func() error {
		defer stopServer()
		return controller.Run(gctx, events, source.Archive().Chunks())
	})

	if cfg.Server.Enabled {
		router := api.NewRouter(api.RouterConfig{
			Dir:                destination,
			Index:              viewerIndex(index),
			Gatherer:           gathererFor(cfg, registry),
			CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		}, log)
		server := api.NewServer(cfg.Server.Address, router.Routes(), log)
		g.Go(func() error {
			return server.Run(serverCtx)
		})
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case sig := <-signals:
			log.Info("Received shutdown signal", logger.String("signal", sig.String()))
		case <-gctx.Done():
		}
		if err := source.Stop(); err != nil {
			log.Debug("Capture device closed with error", logger.Error(err))
		}
	}()

	log.Info("Recording", logger.String("destination", destination),
		logger.String("recognizer", cfg.Recognizer.Backend),
		logger.String("device", cfg.Capture.Device))

	err = g.Wait()
	source.Discard()
	source.Stop()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil {
		log.Info("Recording finished", logger.String("memo", filepath.Join(destination, memo.FileName)))
	}
	return err
}

func newDevice(cfg *config.Config, format audio.Format) capture.Device {
	switch cfg.Capture.Device {
	case "arecord":
		return capture.ArecordDevice{
			Path:        cfg.Capture.ArecordPath,
			InputDevice: cfg.Capture.InputDevice,
			Format:      format,
		}
	case "portaudio":
		return capture.PortAudioDevice{Format: format}
	default:
		return capture.FFmpegDevice{
			Path:        cfg.Capture.FFmpegPath,
			InputFormat: cfg.Capture.InputFormat,
			InputDevice: cfg.Capture.InputDevice,
			Format:      format,
		}
	}
}

func newEncoder(cfg *config.Config, format audio.Format) segment.EncoderFactory {
	if cfg.Encoder.Type == "raw" {
		return segment.RawEncoder{}
	}
	return segment.FFmpegEncoder{
		Path:       cfg.Encoder.FFmpegPath,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Bitrate:    cfg.Encoder.Bitrate,
	}
}

// viewerIndex avoids handing the router a typed nil
func viewerIndex(index *sqlite.SessionStorage) api.SessionIndex {
	if index == nil {
		return nil
	}
	return index
}

func gathererFor(cfg *config.Config, registry *prometheus.Registry) prometheus.Gatherer {
	if !cfg.Server.Metrics {
		return nil
	}
	return registry
}

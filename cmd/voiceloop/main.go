package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skypro1111/voiceloop/internal/audio"
	"github.com/skypro1111/voiceloop/internal/capture"
	"github.com/skypro1111/voiceloop/internal/config"
	"github.com/skypro1111/voiceloop/internal/conversation"
	"github.com/skypro1111/voiceloop/internal/device"
	"github.com/skypro1111/voiceloop/internal/events"
	"github.com/skypro1111/voiceloop/internal/metrics"
	"github.com/skypro1111/voiceloop/internal/netmic"
	"github.com/skypro1111/voiceloop/internal/server"
	"github.com/skypro1111/voiceloop/internal/transcription"
	"github.com/skypro1111/voiceloop/internal/turn"
	"github.com/skypro1111/voiceloop/internal/vad"
)

const (
	defaultConfigPath = "config.yaml"
	serviceName       = "voiceloop"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listDevices := flag.Bool("list-devices", false, "List audio devices and exit")
	flag.Parse()

	if *listDevices {
		if err := printDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("turn_endpoint", cfg.Turn.Endpoint),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("transcription_model", cfg.Transcription.Model),
		slog.String("capture_source", cfg.Capture.Source),
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Float64("listen_timeout", cfg.Capture.ListenTimeout),
		slog.Float64("playback_grace", cfg.Playback.Grace),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

// run wires the pipeline and blocks until a shutdown signal
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	// Initialize Prometheus metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)

	// Audio devices are required; failure here is fatal
	if err := device.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := device.Terminate(); err != nil {
			logger.Warn("Failed to release audio devices", slog.String("error", err.Error()))
		}
	}()

	format := audio.Format{
		SampleRate: cfg.Capture.SampleRate,
		Channels:   cfg.Capture.Channels,
		BitDepth:   cfg.Capture.BitDepth,
	}

	source, statsFn, closeSource, err := openSource(cfg, format, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	listener, err := capture.NewListener(source, capture.Config{
		FrameDuration: cfg.Capture.GetFrameDuration(),
		Detector: vad.DetectorConfig{
			Multiplier: cfg.VAD.ThresholdMultiplier,
			MinEnergy:  cfg.VAD.MinEnergy,
			Smoothing:  cfg.VAD.Smoothing,
		},
		Segmenter: vad.SegmenterConfig{
			ListenTimeout: cfg.Capture.GetListenTimeoutDuration(),
			PhraseLimit:   cfg.Capture.GetPhraseLimitDuration(),
			MinSpeech:     cfg.VAD.GetMinSpeechDuration(),
			Silence:       cfg.VAD.GetSilenceDuration(),
			PreRoll:       cfg.Capture.GetPreRollDuration(),
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	if err := listener.CheckSource(ctx); err != nil {
		return fmt.Errorf("audio input unavailable: %w", err)
	}
	if err := device.CheckOutput(); err != nil {
		return fmt.Errorf("audio output unavailable: %w", err)
	}

	if calibration := cfg.Capture.GetCalibrationDuration(); calibration > 0 {
		logger.Info("Calibrating ambient noise, please stay quiet", slog.Duration("duration", calibration))

		ambient, err := listener.Calibrate(ctx, calibration)
		if err != nil {
			return fmt.Errorf("calibration failed: %w", err)
		}
		appMetrics.RecordCalibration(ambient, listener.Threshold())

		logger.Info("Calibration complete",
			slog.Float64("ambient_energy", ambient),
			slog.Float64("threshold", listener.Threshold()),
		)
	} else {
		appMetrics.RecordCalibration(0, listener.Threshold())
	}

	recognizer, err := transcription.NewClient(transcription.Config{
		BaseURL:  cfg.Transcription.Endpoint,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Prompt:   cfg.Transcription.Prompt,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}

	turns, err := turn.NewClient(turn.Config{
		Endpoint:  cfg.Turn.Endpoint,
		Timeout:   cfg.Turn.GetTimeoutDuration(),
		UserAgent: cfg.Turn.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("failed to create turn client: %w", err)
	}

	stages := conversation.Stages{
		Capturer:    listener,
		Transcriber: recognizer,
		Turns:       turns,
		Assembler:   audio.NewAssembler(cfg.Turn.MaxReplyBytes),
		Player:      device.NewSpeaker(cfg.Playback.FramesPerBuffer, logger),
	}

	if cfg.Archive.Dir != "" {
		archive, err := audio.NewArchive(cfg.Archive.Dir)
		if err != nil {
			return fmt.Errorf("failed to create reply archive: %w", err)
		}
		stages.Archive = archive
		logger.Info("Reply archive enabled", slog.String("dir", cfg.Archive.Dir))
	}

	bus := events.NewBus()
	defer bus.Close()

	session := conversation.NewSession()
	loop, err := conversation.NewLoop(stages, conversation.Config{
		PlaybackGrace: cfg.Playback.GetGraceDuration(),
	}, session, logger, appMetrics, bus)
	if err != nil {
		return fmt.Errorf("failed to create conversation loop: %w", err)
	}

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, loop, bus, appMetrics, registry)
		httpServer.RegisterStats("transcription", func() any { return recognizer.GetStats() })
		httpServer.RegisterStats("detector", func() any { return listener.DetectorStats() })
		if statsFn != nil {
			httpServer.RegisterStats("netmic", statsFn)
		}

		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	logger.Info("Listening", slog.String("session", session.ID))

	err = loop.Run(ctx)

	logger.Info("Starting graceful shutdown...")

	// End event feeds before stopping the server
	bus.Close()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	status := loop.Status()
	logger.Info("Final conversation statistics",
		slog.String("session", status.Session.ID),
		slog.Uint64("turns", status.Turns),
		slog.Uint64("completed_turns", status.CompletedTurns),
		slog.Uint64("failed_turns", status.FailedTurns),
		slog.Uint64("capture_timeouts", status.CaptureTimeouts),
	)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openSource creates the configured capture source
func openSource(cfg *config.Config, format audio.Format, logger *slog.Logger) (capture.FrameSource, server.StatsFunc, func(), error) {
	if cfg.Capture.Source == config.SourceNetMic {
		src, err := netmic.NewSource(netmic.Config{
			BindAddress: cfg.NetMic.BindAddress,
			Port:        cfg.NetMic.Port,
			BufferSize:  cfg.NetMic.BufferSize,
			MaxGap:      uint32(cfg.NetMic.MaxGap),
			QueueSize:   cfg.NetMic.QueueSize,
		}, format, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create network microphone: %w", err)
		}
		if err := src.Open(); err != nil {
			return nil, nil, nil, err
		}

		closeFn := func() {
			if err := src.Close(); err != nil {
				logger.Warn("Error closing network microphone", slog.String("error", err.Error()))
			}
		}
		return src, func() any { return src.GetStatistics() }, closeFn, nil
	}

	mic, err := device.NewMicrophone(format, cfg.Capture.GetFrameDuration(), logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create microphone: %w", err)
	}

	// The listener stops the microphone after every utterance
	return mic, nil, func() {}, nil
}

// printDevices writes the PortAudio device table to stdout
func printDevices() error {
	if err := device.Initialize(); err != nil {
		return err
	}
	defer device.Terminate()

	devices, err := device.ListDevices()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tHOST API\tIN\tOUT\tRATE\tDEFAULT")
	for _, d := range devices {
		def := ""
		switch {
		case d.DefaultInput && d.DefaultOutput:
			def = "in/out"
		case d.DefaultInput:
			def = "in"
		case d.DefaultOutput:
			def = "out"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%.0f\t%s\n",
			d.Index, d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, def)
	}
	return w.Flush()
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tguillem/whisperstream/internal/api"
	"github.com/tguillem/whisperstream/internal/config"
	"github.com/tguillem/whisperstream/internal/logger"
	"github.com/tguillem/whisperstream/internal/metrics"
	webrtcmgr "github.com/tguillem/whisperstream/internal/webrtc"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
		} else {
			panic(err)
		}
	}

	logLevel := logger.LevelInfo
	if cfg.Server.LogLevel != "" {
		logLevel = logger.ParseLogLevel(cfg.Server.LogLevel)
	}

	logFormat := logger.FormatText
	if cfg.Server.LogFormat != "" {
		logFormat = logger.ParseOutputFormat(cfg.Server.LogFormat)
	}

	log := logger.NewWithConfig(logger.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stdout,
	})
	log.Info("Starting streaming transcription server")
	log.Info("Config: bind_address=%s, log_level=%s, log_format=%s",
		cfg.Server.BindAddress, logLevel.String(),
		map[logger.OutputFormat]string{logger.FormatText: "text", logger.FormatJSON: "json"}[logFormat])

	var iceServers []webrtc.ICEServer
	for _, ice := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       ice.URLs,
			Username:   ice.Username,
			Credential: ice.Credential,
		})
	}

	// Note: per-stream chunk tuning comes from each client's control.start
	// message, which internal/api applies over stream.DefaultConfig or
	// stream.LiveConfig; the config file's stream section is not applied.
	// Only the model(s) to load and the noise-suppression stage are fixed here.
	managerConfig := webrtcmgr.ManagerConfig{
		ModelConfig: webrtcmgr.ModelConfig{
			ModelPath:      cfg.Transcription.ModelPath,
			Slot1ModelPath: cfg.Transcription.Slot1ModelPath,
			Threads:        cfg.Transcription.Threads,
			UseGPU:         cfg.Transcription.UseGPU,
		},
		Language:         cfg.Transcription.Language,
		Translate:        cfg.Transcription.Translate,
		RNNoiseModelPath: cfg.NoiseSuppression.ModelPath,
		EnableDebugWAV:   cfg.Transcription.EnableDebugWAV,
		Logger:           log,
	}

	streamMetrics, err := metrics.NewStreamMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal("Failed to register metrics: %v", err)
	}

	webrtcManager := webrtcmgr.New(log, iceServers, managerConfig, streamMetrics)
	log.Info("WebRTC manager initialized with %d ICE servers", len(iceServers))

	apiServer := api.New(cfg.Server.BindAddress, log, webrtcManager)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatal("Server error: %v", err)
	case sig := <-sigChan:
		log.Info("Received signal %v, shutting down...", sig)
		if err := apiServer.Stop(); err != nil {
			log.Error("Error stopping server: %v", err)
		}
	}

	log.Info("Server stopped")
}

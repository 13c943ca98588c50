package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	redis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/amanullahtanweer/lecture-relay/internal/chat"
	"github.com/amanullahtanweer/lecture-relay/internal/hub"
	"github.com/amanullahtanweer/lecture-relay/internal/ingest"
	"github.com/amanullahtanweer/lecture-relay/internal/metrics"
	"github.com/amanullahtanweer/lecture-relay/internal/qa"
	"github.com/amanullahtanweer/lecture-relay/internal/server"
	"github.com/amanullahtanweer/lecture-relay/internal/session"
	"github.com/amanullahtanweer/lecture-relay/internal/transcode"
	"github.com/amanullahtanweer/lecture-relay/internal/transcriber"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Telephony struct {
		Enabled      bool   `yaml:"enabled"`
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		SampleRate   int    `yaml:"sample_rate"`
		FlushSeconds int    `yaml:"flush_seconds"`
	} `yaml:"telephony"`
	Ingest struct {
		ScratchDir     string `yaml:"scratch_dir"`
		Workers        int    `yaml:"workers"`
		FFmpegPath     string `yaml:"ffmpeg_path"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"ingest"`
	Transcription struct {
		Endpoint       string `yaml:"endpoint"`
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"transcription"`
	Chat struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		ContextChars   int    `yaml:"context_chars"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"chat"`
	Redis struct {
		Addr   string `yaml:"addr"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	config := &Config{}
	if err := loadConfig(configFile, config); err != nil {
		log.Fatal("Failed to load config", "path", configFile, "error", err)
	}

	recorder := metrics.NewRecorder()
	if config.Redis.Addr != "" {
		prefix := config.Redis.Prefix
		if prefix == "" {
			prefix = "lecture-relay:"
		}
		recorder.SetRedis(redis.NewClient(&redis.Options{Addr: config.Redis.Addr}), prefix)
	}

	store := session.NewStore()
	h := hub.New()

	stt, err := transcriber.NewClient(transcriber.Config{
		Endpoint: config.Transcription.Endpoint,
		APIKey:   config.Transcription.APIKey,
		Model:    config.Transcription.Model,
		Timeout:  time.Duration(config.Transcription.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatal("Failed to create transcription client", "error", err)
	}

	pipeline := ingest.New(ingest.Config{
		ScratchDir:  config.Ingest.ScratchDir,
		Workers:     config.Ingest.Workers,
		CallTimeout: time.Duration(config.Ingest.TimeoutSeconds) * time.Second,
	}, store, transcode.NewFFmpeg(config.Ingest.FFmpegPath), stt, h, recorder)

	engine := chat.NewOpenAIEngine(chat.Config{
		BaseURL: config.Chat.BaseURL,
		APIKey:  config.Chat.APIKey,
		Model:   config.Chat.Model,
	})
	orchestrator := qa.New(qa.Config{
		WindowChars: config.Chat.ContextChars,
		CallTimeout: time.Duration(config.Chat.TimeoutSeconds) * time.Second,
	}, store, engine, h, recorder)

	srv := server.New(server.Config{
		Host: config.Server.Host,
		Port: config.Server.Port,
		Telephony: server.TelephonyConfig{
			Enabled:      config.Telephony.Enabled,
			Host:         config.Telephony.Host,
			Port:         config.Telephony.Port,
			SampleRate:   config.Telephony.SampleRate,
			FlushSeconds: config.Telephony.FlushSeconds,
		},
	}, store, h, pipeline, orchestrator, recorder)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down server...")
	srv.Stop()
	log.Info("Session summary\n" + recorder.Summary())
}

func loadConfig(filename string, config *Config) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	return decoder.Decode(config)
}

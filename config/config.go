// Package config loads the YAML application configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Accessory AccessoryConfig `yaml:"accessory"`
	Camera    CameraConfig    `yaml:"camera"`
	Stream    StreamConfig    `yaml:"stream"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
}

type AccessoryConfig struct {
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
	Pin          string `yaml:"pin"`
	// Port is left empty to let the transport pick one.
	Port        string `yaml:"port"`
	StoragePath string `yaml:"storage_path"`
}

type CameraConfig struct {
	// AppDataDir holds the pairing record.
	AppDataDir string `yaml:"app_data_dir"`
	// DataDir receives downloaded media under photos/.
	DataDir       string        `yaml:"data_dir"`
	Address       string        `yaml:"address"`
	Timeout       time.Duration `yaml:"timeout"`
	ReadyAttempts int           `yaml:"ready_attempts"`
	ReadyInterval time.Duration `yaml:"ready_interval"`
	StreamInput   string        `yaml:"stream_input"`
	WiFiInterface string        `yaml:"wifi_interface"`
}

type StreamConfig struct {
	MaxSessions      int    `yaml:"max_sessions"`
	EncoderProfile   string `yaml:"encoder_profile"`
	FFmpegPath       string `yaml:"ffmpeg_path"`
	TimestampOverlay bool   `yaml:"timestamp_overlay"`
	// RespawnLimit is respawns per second allowed per session; 0 disables
	// the limit.
	RespawnLimit float64 `yaml:"respawn_limit"`
	RespawnBurst int     `yaml:"respawn_burst"`
	// KeepAlive is the camera stream keep-alive period; 0 disables it.
	KeepAlive time.Duration `yaml:"keepalive"`
	// Debug passes transcoder output through to stderr.
	Debug bool `yaml:"debug"`
}

type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BrokerURI string `yaml:"broker_uri"`
	ClientID  string `yaml:"client_id"`
	Topic     string `yaml:"topic"`
}

type APIConfig struct {
	// Listen is the HTTP API address; empty disables the API.
	Listen string `yaml:"listen"`
	// RateLimit is requests per minute per client.
	RateLimit int `yaml:"rate_limit"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Accessory: AccessoryConfig{
			Name:         "GoPro",
			Manufacturer: "GoPro",
			Model:        "HERO",
			Pin:          "00102003",
			StoragePath:  "hc-gopro-storage",
		},
		Camera: CameraConfig{
			AppDataDir:    "appdata",
			DataDir:       "data",
			Address:       "10.5.5.9",
			Timeout:       5 * time.Second,
			ReadyAttempts: 50,
			ReadyInterval: 100 * time.Millisecond,
			StreamInput:   "udp://:8554",
		},
		Stream: StreamConfig{
			MaxSessions:    2,
			EncoderProfile: "copy",
			FFmpegPath:     "ffmpeg",
			KeepAlive:      2500 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			BrokerURI: "mqtt://127.0.0.1:1883",
			ClientID:  "hc-gopro",
			Topic:     "hc-gopro/command",
		},
		API: APIConfig{
			RateLimit: 60,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return cfg, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the config path comes from the operator
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return cfg, nil
}

var encoderProfiles = map[string]bool{"": true, "copy": true, "cpu": true, "omx": true, "vaapi": true}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if len(c.Accessory.Pin) != 8 || strings.Trim(c.Accessory.Pin, "0123456789") != "" {
		errs = append(errs, fmt.Errorf("accessory.pin: must be 8 digits"))
	}
	if c.Camera.ReadyAttempts < 1 {
		errs = append(errs, fmt.Errorf("camera.ready_attempts: must be positive, got %d", c.Camera.ReadyAttempts))
	}
	if c.Camera.ReadyInterval < 0 {
		errs = append(errs, fmt.Errorf("camera.ready_interval: must not be negative"))
	}
	if c.Camera.Address == "" {
		errs = append(errs, fmt.Errorf("camera.address: required"))
	}
	if !encoderProfiles[strings.ToLower(c.Stream.EncoderProfile)] {
		errs = append(errs, fmt.Errorf("stream.encoder_profile: unknown profile %q", c.Stream.EncoderProfile))
	}
	if c.Stream.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("stream.max_sessions: must be at least 1, got %d", c.Stream.MaxSessions))
	}
	if c.Stream.RespawnLimit < 0 || c.Stream.RespawnBurst < 0 {
		errs = append(errs, fmt.Errorf("stream.respawn_limit/respawn_burst: must not be negative"))
	}
	if c.Stream.RespawnLimit > 0 && c.Stream.RespawnBurst == 0 {
		errs = append(errs, fmt.Errorf("stream.respawn_burst: required when respawn_limit is set"))
	}
	if c.MQTT.Enabled && (c.MQTT.BrokerURI == "" || c.MQTT.Topic == "") {
		errs = append(errs, fmt.Errorf("mqtt: broker_uri and topic are required when enabled"))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("api.rate_limit: must not be negative"))
	}

	return errors.Join(errs...)
}

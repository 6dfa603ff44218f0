// Package pairing holds the persisted binding between this host and one GoPro.
package pairing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"
)

// FileName is the pairing record's file name inside the app-data directory.
const FileName = "gp_nw.json"

// ErrNotConfigured is returned when no pairing record has been written yet.
var ErrNotConfigured = errors.New("no camera has been configured, run setup first")

// Record binds the host to one camera. It is written once during setup and
// treated as read-only afterwards.
type Record struct {
	SSID     string          `json:"ssid"`
	Password string          `json:"password"`
	MAC      string          `json:"ap_mac"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// CameraInfo is the subset of the cached camera config the core reads.
type CameraInfo struct {
	ModelName       string `json:"model_name"`
	FirmwareVersion string `json:"firmware_version"`
	SerialNumber    string `json:"serial_number"`
	APMAC           string `json:"ap_mac"`
	APSSID          string `json:"ap_ssid"`
}

// Info decodes the info block of the cached camera config.
func (r *Record) Info() (CameraInfo, error) {
	var cfg struct {
		Info CameraInfo `json:"info"`
	}
	if len(r.Config) == 0 {
		return cfg.Info, nil
	}
	if err := json.Unmarshal(r.Config, &cfg); err != nil {
		return cfg.Info, fmt.Errorf("decode cached camera config: %w", err)
	}
	return cfg.Info, nil
}

// SlowLink reports whether the paired camera belongs to the firmware family
// that registers WiFi clients late (HERO4 Session, "HX" firmware).
func (r *Record) SlowLink() bool {
	info, err := r.Info()
	if err != nil {
		return false
	}
	return strings.Contains(info.FirmwareVersion, "HX")
}

// Path returns the record location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the record from dir. A missing file yields ErrNotConfigured.
func Load(dir string) (*Record, error) {
	data, err := os.ReadFile(Path(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("read pairing record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode pairing record: %w", err)
	}
	return &rec, nil
}

// Save atomically writes the record into dir, creating dir when needed.
func Save(dir string, rec *Record) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create app data dir: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode pairing record: %w", err)
	}

	if err := renameio.WriteFile(Path(dir), data, 0o600); err != nil {
		return fmt.Errorf("write pairing record: %w", err)
	}
	return nil
}

var octet = regexp.MustCompile(`[0-9a-zA-Z]{2}`)

// FormatMAC turns the camera's bare hex MAC ("d89685123456") into colon
// delimited octets ("d8:96:85:12:34:56"). Already delimited input is returned
// unchanged.
func FormatMAC(raw string) string {
	if strings.Contains(raw, ":") {
		return raw
	}
	return strings.Join(octet.FindAllString(raw, -1), ":")
}

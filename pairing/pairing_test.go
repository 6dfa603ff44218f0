package pairing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingIsNotConfigured(t *testing.T) {
	rec, err := Load(t.TempDir())
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &Record{
		SSID:     "GP54321",
		Password: "secret",
		MAC:      "d8:96:85:12:34:56",
		Config:   json.RawMessage(`{"info":{"model_name":"HERO4 Session","firmware_version":"HX1.01.01.00"}}`),
	}
	require.NoError(t, Save(dir, in))

	out, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, in.SSID, out.SSID)
	assert.Equal(t, in.MAC, out.MAC)

	info, err := out.Info()
	require.NoError(t, err)
	assert.Equal(t, "HERO4 Session", info.ModelName)
	assert.True(t, out.SlowLink())
}

func TestSlowLink(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   bool
	}{
		{"hero4 session", `{"info":{"firmware_version":"HX1.01.01.00"}}`, true},
		{"hero4 black", `{"info":{"firmware_version":"HD4.02.05.00"}}`, false},
		{"no config", ``, false},
		{"broken config", `{`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{Config: json.RawMessage(tt.config)}
			assert.Equal(t, tt.want, rec.SlowLink())
		})
	}
}

func TestFormatMAC(t *testing.T) {
	assert.Equal(t, "d8:96:85:12:34:56", FormatMAC("d89685123456"))
	assert.Equal(t, "d8:96:85:12:34:56", FormatMAC("d8:96:85:12:34:56"))
	assert.Equal(t, "", FormatMAC(""))
}

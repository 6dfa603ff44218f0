package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duncanleo/hc-gopro/gopro"
)

type fakeInfo struct {
	info gopro.Info
	raw  []byte
	err  error
}

func (f fakeInfo) Info(context.Context) (gopro.Info, []byte, error) {
	return f.info, f.raw, f.err
}

func TestSetup(t *testing.T) {
	raw := []byte(`{"info":{"ap_mac":"d89685123456","firmware_version":"HX1.01.01.50"}}`)
	rec, err := Setup(context.Background(), fakeInfo{
		info: gopro.Info{APMAC: "d89685123456", FirmwareVersion: "HX1.01.01.50"},
		raw:  raw,
	}, "GP24500000", "secret")
	require.NoError(t, err)

	assert.Equal(t, "GP24500000", rec.SSID)
	assert.Equal(t, "secret", rec.Password)
	assert.Equal(t, "d8:96:85:12:34:56", rec.MAC)
	assert.JSONEq(t, string(raw), string(rec.Config))
	assert.True(t, rec.SlowLink())
}

func TestSetupErrors(t *testing.T) {
	_, err := Setup(context.Background(), fakeInfo{}, "", "secret")
	assert.Error(t, err)

	camErr := errors.New("connection refused")
	_, err = Setup(context.Background(), fakeInfo{err: camErr}, "GP", "secret")
	assert.ErrorIs(t, err, camErr)

	_, err = Setup(context.Background(), fakeInfo{info: gopro.Info{}}, "GP", "secret")
	assert.ErrorContains(t, err, "MAC")
}

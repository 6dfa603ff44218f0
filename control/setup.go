package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/duncanleo/hc-gopro/gopro"
	"github.com/duncanleo/hc-gopro/pairing"
)

// InfoFetcher reads the camera's configuration document. *gopro.Camera
// implements it.
type InfoFetcher interface {
	Info(ctx context.Context) (gopro.Info, []byte, error)
}

// Setup builds a pairing record from the camera reachable through cam. The
// host must already be associated with the camera network.
func Setup(ctx context.Context, cam InfoFetcher, ssid, password string) (*pairing.Record, error) {
	if ssid == "" {
		return nil, errors.New("network name is required")
	}

	info, raw, err := cam.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("read camera info: %w", err)
	}
	if info.APMAC == "" {
		return nil, errors.New("camera info carries no MAC address")
	}

	return &pairing.Record{
		SSID:     ssid,
		Password: password,
		MAC:      pairing.FormatMAC(info.APMAC),
		Config:   raw,
	}, nil
}

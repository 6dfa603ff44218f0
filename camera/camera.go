// Package camera builds the HomeKit camera accessory and adapts its stream
// management characteristics to the session manager.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"time"

	"github.com/brutella/hc/accessory"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/duncanleo/hc-gopro/log"
	"github.com/duncanleo/hc-gopro/stream"
	"github.com/duncanleo/hc-gopro/transcoder"
)

// DefaultSnapshotTimeout bounds one snapshot, camera wake-up included.
const DefaultSnapshotTimeout = 20 * time.Second

// SnapshotFunc matches the transport's snapshot request hook.
type SnapshotFunc func(width, height uint) (*image.Image, error)

// Config wires the accessory to the rest of the process.
type Config struct {
	Info    accessory.Info
	Input   InputConfiguration
	Profile EncoderProfile

	Sessions Sessions

	// Waker and Supervisor serve snapshot requests.
	Waker       stream.Waker
	Supervisor  *transcoder.Supervisor
	Passthrough io.Writer

	SnapshotTimeout time.Duration
}

// CreateCamera returns the camera accessory with both stream management
// services wired, and the snapshot hook for the transport.
func CreateCamera(cfg Config) (*accessory.Camera, SnapshotFunc, error) {
	logger := log.WithComponent("camera")

	acc := accessory.NewCamera(cfg.Info)

	adapter := &streamAdapter{
		sessions: cfg.Sessions,
		profile:  cfg.Profile,
		logger:   logger,
	}
	if err := setupStreamMgmt(acc.StreamManagement1, adapter); err != nil {
		return nil, nil, fmt.Errorf("stream management 1: %w", err)
	}
	if err := setupStreamMgmt(acc.StreamManagement2, adapter); err != nil {
		return nil, nil, fmt.Errorf("stream management 2: %w", err)
	}

	s := &snapshotter{
		input:       cfg.Input,
		waker:       cfg.Waker,
		supervisor:  cfg.Supervisor,
		passthrough: cfg.Passthrough,
		timeout:     cfg.SnapshotTimeout,
		logger:      logger,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultSnapshotTimeout
	}

	return acc, s.snapshot, nil
}

type snapshotter struct {
	input       InputConfiguration
	waker       stream.Waker
	supervisor  *transcoder.Supervisor
	passthrough io.Writer
	timeout     time.Duration
	logger      zerolog.Logger

	// Concurrent requests for the same size share one capture.
	group singleflight.Group
}

func (s *snapshotter) snapshot(width, height uint) (*image.Image, error) {
	v, err, shared := s.group.Do(fmt.Sprintf("%dx%d", width, height), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.capture(ctx, width, height)
	})
	if err != nil {
		s.logger.Error().Err(err).Uint("width", width).Uint("height", height).Msg("snapshot")
		return nil, err
	}
	s.logger.Debug().Bool("shared", shared).Uint("width", width).Msg("snapshot")
	img := v.(image.Image)
	return &img, nil
}

func (s *snapshotter) capture(ctx context.Context, width, height uint) (image.Image, error) {
	if err := s.waker.StartStream(ctx); err != nil {
		return nil, err
	}

	var frame bytes.Buffer
	exited := make(chan error, 1)

	proc, err := s.supervisor.Spawn(snapshotArguments(s.input, width, height), transcoder.Options{
		Passthrough: s.passthrough,
		Buffer:      &frame,
		OnStdout: func(chunk []byte, buf *bytes.Buffer) {
			buf.Write(chunk)
		},
		OnExit: func(err error) { exited <- err },
	})
	if err != nil {
		return nil, fmt.Errorf("spawn snapshot transcoder: %w", err)
	}

	select {
	case err = <-exited:
	case <-ctx.Done():
		proc.Stop()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot transcoder: %w", err)
	}

	<-proc.Done()
	if frame.Len() == 0 {
		return nil, errors.New("snapshot transcoder produced no frame")
	}
	img, _, err := image.Decode(&frame)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}

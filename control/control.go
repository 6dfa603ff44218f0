// Package control composes connectivity check, camera handle and readiness
// polling into the high level camera operations.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/duncanleo/hc-gopro/gopro"
	"github.com/duncanleo/hc-gopro/log"
	"github.com/duncanleo/hc-gopro/pairing"
)

var (
	// ErrNotConnected means the host is not associated with the camera's network.
	ErrNotConnected = errors.New("not connected to the camera network")
	// ErrNoMedia means the camera reported no files.
	ErrNoMedia = errors.New("camera has no media")
)

// Handle is the camera API the operations need. *gopro.Camera implements it.
type Handle interface {
	gopro.Waker
	PowerOff(ctx context.Context) error
	SetMode(ctx context.Context, mode, subMode int) error
	Shutter(ctx context.Context, on bool) error
	ListMedia(ctx context.Context) (*gopro.MediaList, error)
	Download(ctx context.Context, directory, file string, w io.Writer) error
	DeleteLast(ctx context.Context) error
	DeleteAll(ctx context.Context) error
	RestartStream(ctx context.Context) error
}

// Gate reports whether the camera network is currently associated.
type Gate interface {
	IsConnected(ctx context.Context) (bool, error)
}

// HandleFactory builds a fresh camera handle for a MAC address.
type HandleFactory func(mac string) Handle

// CameraFactory returns a HandleFactory producing *gopro.Camera handles.
func CameraFactory(opts gopro.Options) HandleFactory {
	return func(mac string) Handle {
		return gopro.NewCamera(mac, opts)
	}
}

// Controller runs camera operations against one paired camera. It holds no
// per-operation state and is safe for concurrent use; every operation builds
// its own handle.
type Controller struct {
	record    *pairing.Record
	gate      Gate
	newHandle HandleFactory
	policy    gopro.ReadyPolicy
	dataDir   string
	logger    zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithReadyPolicy overrides the readiness budget.
func WithReadyPolicy(p gopro.ReadyPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithDataDir sets where downloaded media is stored.
func WithDataDir(dir string) Option {
	return func(c *Controller) { c.dataDir = dir }
}

// New returns a Controller. record may be nil, in which case every operation
// fails with pairing.ErrNotConfigured.
func New(record *pairing.Record, gate Gate, newHandle HandleFactory, opts ...Option) *Controller {
	c := &Controller{
		record:    record,
		gate:      gate,
		newHandle: newHandle,
		policy:    gopro.DefaultReadyPolicy(),
		dataDir:   "data",
		logger:    log.WithComponent("control"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// connect runs the connectivity gate and builds a handle.
func (c *Controller) connect(ctx context.Context) (Handle, error) {
	if c.record == nil {
		return nil, pairing.ErrNotConfigured
	}

	ok, err := c.gate.IsConnected(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	if !ok {
		return nil, ErrNotConnected
	}

	c.logger.Debug().Str("mac", c.record.MAC).Msg("instantiating camera")
	return c.newHandle(c.record.MAC), nil
}

// ready connects and waits for the camera to come up.
func (c *Controller) ready(ctx context.Context, confirmLink bool) (Handle, error) {
	h, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := gopro.WaitReady(ctx, h, confirmLink, c.policy); err != nil {
		return nil, err
	}
	return h, nil
}

// PowerOn wakes the camera and waits until it answers.
func (c *Controller) PowerOn(ctx context.Context) error {
	_, err := c.ready(ctx, false)
	return err
}

// PowerOff puts the camera to sleep.
func (c *Controller) PowerOff(ctx context.Context) error {
	h, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return h.PowerOff(ctx)
}

// TakePicture switches to single photo mode and fires the shutter.
func (c *Controller) TakePicture(ctx context.Context) error {
	h, err := c.ready(ctx, false)
	if err != nil {
		return err
	}

	if err := h.SetMode(ctx, gopro.ModePhoto, gopro.SubModePhotoSingle); err != nil {
		return err
	}
	if err := h.Shutter(ctx, true); err != nil {
		return err
	}

	c.logger.Info().Msg("picture taken")
	return nil
}

// ListMedia returns the camera's media listing. Range over Entries for the
// annotated files.
func (c *Controller) ListMedia(ctx context.Context) (*gopro.MediaList, error) {
	h, err := c.ready(ctx, false)
	if err != nil {
		return nil, err
	}
	return h.ListMedia(ctx)
}

// FetchLatest downloads the newest file into <dataDir>/photos and returns its path.
func (c *Controller) FetchLatest(ctx context.Context) (string, error) {
	h, err := c.ready(ctx, false)
	if err != nil {
		return "", err
	}

	list, err := h.ListMedia(ctx)
	if err != nil {
		return "", err
	}
	latest, ok := list.Latest()
	if !ok {
		return "", ErrNoMedia
	}

	dir := filepath.Join(c.dataDir, "photos")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(latest.File))

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return "", fmt.Errorf("create pending media file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			c.logger.Debug().Err(err).Msg("cleanup pending media file")
		}
	}()

	if err := h.Download(ctx, latest.Directory, latest.File, pending); err != nil {
		return "", err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace media file: %w", err)
	}

	c.logger.Info().Str("path", path).Str("url", latest.URL).Msg("media fetched")
	return path, nil
}

// DeleteLast deletes the newest file on the camera.
func (c *Controller) DeleteLast(ctx context.Context) error {
	h, err := c.ready(ctx, false)
	if err != nil {
		return err
	}
	if err := h.DeleteLast(ctx); err != nil {
		return err
	}
	c.logger.Info().Msg("last media deleted")
	return nil
}

// DeleteAll clears the camera storage.
func (c *Controller) DeleteAll(ctx context.Context) error {
	h, err := c.ready(ctx, false)
	if err != nil {
		return err
	}
	if err := h.DeleteAll(ctx); err != nil {
		return err
	}
	c.logger.Info().Msg("storage cleared")
	return nil
}

// StartStream wakes the camera and (re)starts its UDP preview. Cameras of the
// slow-link firmware family are additionally required to report a registered
// stream client first.
func (c *Controller) StartStream(ctx context.Context) error {
	confirmLink := c.record != nil && c.record.SlowLink()

	h, err := c.ready(ctx, confirmLink)
	if err != nil {
		return err
	}
	if err := h.RestartStream(ctx); err != nil {
		return err
	}

	c.logger.Info().Bool("confirm_link", confirmLink).Msg("stream initiated")
	return nil
}

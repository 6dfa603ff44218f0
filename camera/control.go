package camera

import (
	"context"
	"time"

	"github.com/brutella/hc/accessory"
	"github.com/rs/zerolog"

	"github.com/duncanleo/hc-gopro/custom_service"
	"github.com/duncanleo/hc-gopro/log"
)

// DefaultOperationTimeout bounds one camera operation triggered from HomeKit.
const DefaultOperationTimeout = 30 * time.Second

// Operations is the camera control surface exposed as switches.
// *control.Controller implements it.
type Operations interface {
	TakePicture(ctx context.Context) error
	DeleteLast(ctx context.Context) error
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

type controlHandler struct {
	ops     Operations
	svc     *custom_service.GoProControl
	timeout time.Duration
	logger  zerolog.Logger
}

// AddControlService attaches the GoPro control service to acc.
func AddControlService(acc *accessory.Camera, ops Operations) *custom_service.GoProControl {
	h := &controlHandler{
		ops:     ops,
		svc:     custom_service.NewGoProControl(),
		timeout: DefaultOperationTimeout,
		logger:  log.WithComponent("camera"),
	}
	acc.AddService(h.svc.Service)

	h.svc.TakePhoto.OnValueRemoteUpdate(func(on bool) {
		if on {
			go h.takePhoto()
		}
	})
	h.svc.DeleteLastMedia.OnValueRemoteUpdate(func(on bool) {
		if on {
			go h.deleteLast()
		}
	})
	h.svc.CameraPower.OnValueRemoteUpdate(func(on bool) {
		go h.setPower(on)
	})

	return h.svc
}

func (h *controlHandler) run(op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil {
		h.logger.Error().Err(err).Str("op", op).Msg("camera operation failed")
	} else {
		h.logger.Info().Str("op", op).Msg("camera operation done")
	}
	return err
}

func (h *controlHandler) takePhoto() error {
	defer h.svc.TakePhoto.UpdateValue(false)
	return h.run("photo", h.ops.TakePicture)
}

func (h *controlHandler) deleteLast() error {
	defer h.svc.DeleteLastMedia.UpdateValue(false)
	return h.run("delete-last", h.ops.DeleteLast)
}

func (h *controlHandler) setPower(on bool) error {
	if on {
		err := h.run("power-on", h.ops.PowerOn)
		if err != nil {
			h.svc.CameraPower.UpdateValue(false)
		}
		return err
	}
	return h.run("power-off", h.ops.PowerOff)
}

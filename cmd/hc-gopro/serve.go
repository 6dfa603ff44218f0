package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/brutella/hc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/duncanleo/hc-gopro/api"
	"github.com/duncanleo/hc-gopro/camera"
	"github.com/duncanleo/hc-gopro/config"
	"github.com/duncanleo/hc-gopro/gopro"
	"github.com/duncanleo/hc-gopro/log"
	"github.com/duncanleo/hc-gopro/remote"
	"github.com/duncanleo/hc-gopro/stream"
	"github.com/duncanleo/hc-gopro/transcoder"
)

func serve(cfg config.Config) error {
	logger := log.WithComponent("main")

	ctrl, err := newController(cfg)
	if err != nil {
		return err
	}

	profile, err := camera.ParseEncoderProfile(cfg.Stream.EncoderProfile)
	if err != nil {
		return err
	}
	input := camera.InputConfiguration{
		Source:           cfg.Camera.StreamInput,
		TimestampOverlay: cfg.Stream.TimestampOverlay,
	}

	var passthrough io.Writer = io.Discard
	if cfg.Stream.Debug {
		passthrough = os.Stderr
	}

	var keepAlive func(ctx context.Context) error
	if cfg.Stream.KeepAlive > 0 {
		addr := net.JoinHostPort(cfg.Camera.Address, "8554")
		keepAlive = func(ctx context.Context) error {
			return gopro.KeepAlive(ctx, addr, cfg.Stream.KeepAlive)
		}
	}

	supervisor := transcoder.New(cfg.Stream.FFmpegPath)
	sessions := stream.NewManager(ctrl, stream.SupervisorSpawn(supervisor), camera.LiveCommand(input, profile), stream.Config{
		MaxSessions:  cfg.Stream.MaxSessions,
		RespawnLimit: rate.Limit(cfg.Stream.RespawnLimit),
		RespawnBurst: cfg.Stream.RespawnBurst,
		KeepAlive:    keepAlive,
		Passthrough:  passthrough,
	})

	acc, snapshot, err := camera.CreateCamera(camera.Config{
		Info:        accessoryInfo(cfg),
		Input:       input,
		Profile:     profile,
		Sessions:    sessions,
		Waker:       ctrl,
		Supervisor:  supervisor,
		Passthrough: passthrough,
	})
	if err != nil {
		return err
	}
	camera.AddControlService(acc, ctrl)

	t, err := hc.NewIPTransport(hc.Config{
		Pin:         cfg.Accessory.Pin,
		StoragePath: cfg.Accessory.StoragePath,
		Port:        cfg.Accessory.Port,
	}, acc.Accessory)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	t.CameraSnapshotReq = snapshot

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hc.OnTermination(func() { cancel() })

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("name", cfg.Accessory.Name).Str("profile", profile.String()).Msg("accessory starting")
		t.Start()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sessions.StopAll()
		<-t.Stop()
		return nil
	})

	if cfg.API.Listen != "" {
		srv := &http.Server{
			Addr: cfg.API.Listen,
			Handler: api.New(ctrl, sessions, api.Config{
				RateLimit: cfg.API.RateLimit,
			}).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.MQTT.Enabled {
		g.Go(func() error {
			return runMQTT(ctx, cfg.MQTT, remote.NewBridge(ctrl, cfg.MQTT.Topic))
		})
	}

	return g.Wait()
}

func runMQTT(ctx context.Context, cfg config.MQTTConfig, bridge *remote.Bridge) error {
	uri, err := url.Parse(cfg.BrokerURI)
	if err != nil {
		return fmt.Errorf("parse broker uri: %w", err)
	}

	client, err := remote.Connect(ctx, cfg.ClientID, uri)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer client.Disconnect(250)

	if err := bridge.Subscribe(client); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

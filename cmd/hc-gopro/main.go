package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brutella/hc/accessory"

	"github.com/duncanleo/hc-gopro/config"
	"github.com/duncanleo/hc-gopro/control"
	"github.com/duncanleo/hc-gopro/gopro"
	"github.com/duncanleo/hc-gopro/log"
	"github.com/duncanleo/hc-gopro/pairing"
	"github.com/duncanleo/hc-gopro/wifi"
)

const usage = `usage: hc-gopro [flags] [command]

commands:
  serve        run the HomeKit accessory (default)
  setup        pair with the camera the host is connected to
  photo        take a photo
  list         list media on the camera
  fetch        download the newest file
  delete-last  delete the newest file
  delete-all   delete every file
  power-on     wake the camera
  power-off    put the camera to sleep

flags:
`

func main() {
	var configPath = flag.String("config", "", "path to a YAML config file")
	var port = flag.String("port", "", "port for the HC accessory, leave empty to randomise")
	var pin = flag.String("pin", "", "pairing PIN for the accessory")
	var storagePath = flag.String("storagePath", "", "storage path")
	var name = flag.String("name", "", "name for the HomeKit Camera")

	var appData = flag.String("appData", "", "directory holding the camera pairing record")
	var dataDir = flag.String("dataDir", "", "directory receiving downloaded media")
	var cameraAddr = flag.String("cameraAddress", "", "camera IP address")
	var encoderProfile = flag.String("encoderProfile", "", "encoder profile for FFMPEG. Accepts: COPY, CPU, OMX, VAAPI")
	var ffmpegPath = flag.String("ffmpeg", "", "path to the ffmpeg binary")
	var debug = flag.Bool("debug", false, "pass ffmpeg output through to stderr")
	var logLevel = flag.String("logLevel", "", "log level")

	var mqttEnabled = flag.Bool("mqtt", false, "whether to accept commands over MQTT")
	var brokerURI = flag.String("brokerURI", "", "URI of the MQTT broker")
	var clientID = flag.String("clientID", "", "client ID for MQTT")
	var topic = flag.String("topic", "", "MQTT topic to subscribe to")
	var listen = flag.String("listen", "", "address for the HTTP API, leave empty to disable")

	var ssid = flag.String("ssid", "", "camera network name (setup)")
	var password = flag.String("password", "", "camera network password (setup)")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Accessory.Port = *port
		case "pin":
			cfg.Accessory.Pin = *pin
		case "storagePath":
			cfg.Accessory.StoragePath = *storagePath
		case "name":
			cfg.Accessory.Name = *name
		case "appData":
			cfg.Camera.AppDataDir = *appData
		case "dataDir":
			cfg.Camera.DataDir = *dataDir
		case "cameraAddress":
			cfg.Camera.Address = *cameraAddr
		case "encoderProfile":
			cfg.Stream.EncoderProfile = *encoderProfile
		case "ffmpeg":
			cfg.Stream.FFmpegPath = *ffmpegPath
		case "debug":
			cfg.Stream.Debug = *debug
		case "logLevel":
			cfg.LogLevel = *logLevel
		case "mqtt":
			cfg.MQTT.Enabled = *mqttEnabled
		case "brokerURI":
			cfg.MQTT.BrokerURI = *brokerURI
		case "clientID":
			cfg.MQTT.ClientID = *clientID
		case "topic":
			cfg.MQTT.Topic = *topic
		case "listen":
			cfg.API.Listen = *listen
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(2)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "hc-gopro"})
	logger := log.WithComponent("main")

	command := flag.Arg(0)
	if command == "" {
		command = "serve"
	}

	switch command {
	case "serve":
		err = serve(cfg)
	case "setup":
		err = setup(cfg, *ssid, *password)
	default:
		err = runOnce(cfg, command)
	}

	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("failed")
		os.Exit(1)
	}
}

func cameraOptions(cfg config.Config) gopro.Options {
	return gopro.Options{
		BaseURL:      "http://" + cfg.Camera.Address,
		MediaBaseURL: "http://" + net.JoinHostPort(cfg.Camera.Address, "8080"),
		WakeAddr:     net.JoinHostPort(cfg.Camera.Address, "9"),
		Timeout:      cfg.Camera.Timeout,
	}
}

// newController loads the pairing record and assembles the command façade. A
// missing record is not fatal: every operation then reports it.
func newController(cfg config.Config) (*control.Controller, error) {
	rec, err := pairing.Load(cfg.Camera.AppDataDir)
	if err != nil && !errors.Is(err, pairing.ErrNotConfigured) {
		return nil, err
	}
	if rec == nil {
		log.WithComponent("main").Warn().Str("dir", cfg.Camera.AppDataDir).Msg("no camera paired, run setup")
	}

	gate := &wifi.Gate{
		Record: rec,
		Lister: wifi.NMCLILister{Iface: cfg.Camera.WiFiInterface},
	}
	return control.New(rec, gate, control.CameraFactory(cameraOptions(cfg)),
		control.WithReadyPolicy(gopro.ReadyPolicy{
			Attempts: cfg.Camera.ReadyAttempts,
			Interval: cfg.Camera.ReadyInterval,
		}),
		control.WithDataDir(cfg.Camera.DataDir),
	), nil
}

func accessoryInfo(cfg config.Config) accessory.Info {
	return accessory.Info{
		Name:         cfg.Accessory.Name,
		Manufacturer: cfg.Accessory.Manufacturer,
		Model:        cfg.Accessory.Model,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func setup(cfg config.Config, ssid, password string) error {
	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, 30*time.Second)
	defer cancelTimeout()

	rec, err := control.Setup(ctx, gopro.NewCamera("", cameraOptions(cfg)), ssid, password)
	if err != nil {
		return err
	}
	if err := pairing.Save(cfg.Camera.AppDataDir, rec); err != nil {
		return err
	}

	log.WithComponent("main").Info().
		Str("ssid", rec.SSID).
		Str("mac", rec.MAC).
		Str("path", pairing.Path(cfg.Camera.AppDataDir)).
		Msg("camera paired")
	return nil
}

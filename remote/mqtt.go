// Package remote exposes camera commands over MQTT.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/duncanleo/hc-gopro/log"
)

// ErrUnknownCommand is returned for payloads that name no command.
var ErrUnknownCommand = errors.New("unknown command")

// DefaultCommandTimeout bounds one dispatched command.
const DefaultCommandTimeout = 30 * time.Second

// Commands is the camera surface reachable over MQTT.
// *control.Controller implements it.
type Commands interface {
	TakePicture(ctx context.Context) error
	DeleteLast(ctx context.Context) error
	DeleteAll(ctx context.Context) error
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

// Connect dials the broker in uri until it answers or ctx ends.
func Connect(ctx context.Context, clientID string, uri *url.URL) (mqtt.Client, error) {
	var opts = mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", uri.Host))
	opts.SetUsername(uri.User.Username())
	password, _ := uri.User.Password()
	opts.SetPassword(password)
	opts.SetClientID(clientID)
	opts.CleanSession = false

	var client = mqtt.NewClient(opts)
	var token = client.Connect()
	for !token.WaitTimeout(3 * time.Second) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return client, token.Error()
}

// Bridge dispatches command payloads on one topic and publishes the outcome
// to <topic>/result.
type Bridge struct {
	cmds    Commands
	topic   string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewBridge returns a Bridge for topic.
func NewBridge(cmds Commands, topic string) *Bridge {
	return &Bridge{
		cmds:    cmds,
		topic:   topic,
		timeout: DefaultCommandTimeout,
		logger:  log.WithComponent("remote"),
	}
}

// ResultTopic is where command outcomes are published.
func (b *Bridge) ResultTopic() string {
	return b.topic + "/result"
}

// Subscribe registers the bridge on client.
func (b *Bridge) Subscribe(client mqtt.Client) error {
	token := client.Subscribe(b.topic, 0, b.handle)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}
	b.logger.Info().Str("topic", b.topic).Msg("subscribed")
	return nil
}

func (b *Bridge) handle(client mqtt.Client, msg mqtt.Message) {
	command := strings.TrimSpace(string(msg.Payload()))
	b.logger.Info().Str("topic", msg.Topic()).Str("command", command).Msg("received")

	// Paho delivers messages on its router goroutine.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		result := command + ": ok"
		if err := b.Dispatch(ctx, command); err != nil {
			b.logger.Error().Err(err).Str("command", command).Msg("command failed")
			result = command + ": " + err.Error()
		}
		client.Publish(b.ResultTopic(), 0, false, result)
	}()
}

// Dispatch runs the command named by payload.
func (b *Bridge) Dispatch(ctx context.Context, command string) error {
	switch command {
	case "photo":
		return b.cmds.TakePicture(ctx)
	case "delete-last":
		return b.cmds.DeleteLast(ctx)
	case "delete-all":
		return b.cmds.DeleteAll(ctx)
	case "power-on":
		return b.cmds.PowerOn(ctx)
	case "power-off":
		return b.cmds.PowerOff(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

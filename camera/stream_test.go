package camera

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/brutella/hc/rtp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duncanleo/hc-gopro/stream"
	"github.com/duncanleo/hc-gopro/transcoder"
)

type recordedProc struct {
	args    []string
	stopped bool
}

func (p *recordedProc) Stop()          { p.stopped = true }
func (p *recordedProc) Suspend() error { return nil }
func (p *recordedProc) Resume() error  { return nil }

type nopWaker struct{ err error }

func (w nopWaker) StartStream(context.Context) error { return w.err }

func newTestAdapter(t *testing.T, waker stream.Waker) (*streamAdapter, *stream.Manager, *[]*recordedProc) {
	t.Helper()
	var procs []*recordedProc
	spawn := func(args []string, _ transcoder.Options) (stream.Transcoder, error) {
		p := &recordedProc{args: args}
		procs = append(procs, p)
		return p, nil
	}
	m := stream.NewManager(waker, spawn, LiveCommand(InputConfiguration{}, Copy), stream.Config{})
	return &streamAdapter{sessions: m, profile: Copy, logger: zerolog.Nop()}, m, &procs
}

func setupRequest() rtp.SetupEndpoints {
	var req rtp.SetupEndpoints
	req.ControllerAddr = rtp.Addr{
		IPVersion:    rtp.IPAddrVersionv4,
		IPAddr:       "192.0.2.5",
		VideoRtpPort: 6000,
		AudioRtpPort: 6002,
	}
	req.Video = rtp.CryptoSuite{
		MasterKey:  []byte("0123456789abcdef"),
		MasterSalt: []byte("0123456789abcd"),
	}
	req.Audio = req.Video
	return req
}

func startConfiguration(cmd byte) rtp.StreamConfiguration {
	var cfg rtp.StreamConfiguration
	cfg.Command.Type = cmd
	cfg.Video.Attributes.Width = 1280
	cfg.Video.Attributes.Height = 720
	cfg.Video.Attributes.Framerate = 30
	cfg.Video.RTP.Bitrate = 300
	cfg.Video.RTP.PayloadType = 99
	return cfg
}

func TestSessionKey(t *testing.T) {
	u := uuid.New()
	b, err := u.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, u.String(), sessionKey(b))
	assert.Equal(t, "0a0b", sessionKey([]byte{0x0a, 0x0b}))
}

func TestSetupEndpointsResponse(t *testing.T) {
	a, m, _ := newTestAdapter(t, nopWaker{})

	resp := a.setupEndpoints("10.0.0.9:51000", "192.0.2.1", setupRequest())

	assert.Equal(t, byte(rtp.SessionStatusSuccess), resp.Status)
	assert.Equal(t, "192.0.2.1", resp.AccessoryAddr.IPAddr)
	assert.Equal(t, byte(rtp.IPAddrVersionv4), resp.AccessoryAddr.IPVersion)
	assert.Equal(t, uint16(6000), resp.AccessoryAddr.VideoRtpPort)
	assert.Equal(t, int32(1), resp.SsrcVideo)
	assert.Equal(t, int32(2), resp.SsrcAudio)
	assert.Equal(t, []byte("0123456789abcdef"), resp.Video.MasterKey)
	assert.Equal(t, []byte("0123456789abcd"), resp.Video.MasterSalt)
	assert.Equal(t, []byte("0123456789abcdef"), resp.Audio.MasterKey)

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "10.0.0.9:51000", sessions[0].ConnID)
	assert.Equal(t, stream.Pending, sessions[0].Phase)
}

func TestStreamLifecycleThroughAdapter(t *testing.T) {
	a, m, procs := newTestAdapter(t, nopWaker{})
	ctx := context.Background()

	a.setupEndpoints("conn", "192.0.2.1", setupRequest())
	require.NoError(t, a.selectConfiguration(ctx, startConfiguration(rtp.SessionControlCommandTypeStart)))

	require.Len(t, *procs, 1)
	cmdline := strings.Join((*procs)[0].args, " ")
	assert.Contains(t, cmdline, "1280x720")
	assert.Contains(t, cmdline, "-framerate 30")
	assert.Contains(t, cmdline, "srtp://192.0.2.5:6000")

	require.NoError(t, a.selectConfiguration(ctx, startConfiguration(rtp.SessionControlCommandTypeSuspend)))
	require.NoError(t, a.selectConfiguration(ctx, startConfiguration(rtp.SessionControlCommandTypeResume)))
	require.NoError(t, a.selectConfiguration(ctx, startConfiguration(rtp.SessionControlCommandTypeReconfigure)))

	require.NoError(t, a.selectConfiguration(ctx, startConfiguration(rtp.SessionControlCommandTypeEnd)))
	assert.True(t, (*procs)[0].stopped)
	assert.Empty(t, m.Sessions())

	// A second end is a no-op.
	require.NoError(t, a.selectConfiguration(ctx, startConfiguration(rtp.SessionControlCommandTypeEnd)))
}

func TestStartWithoutSetupSpawnsNothing(t *testing.T) {
	a, _, procs := newTestAdapter(t, nopWaker{})
	require.NoError(t, a.selectConfiguration(context.Background(), startConfiguration(rtp.SessionControlCommandTypeStart)))
	assert.Empty(t, *procs)
}

func TestStartPropagatesWakeError(t *testing.T) {
	wakeErr := errors.New("camera asleep")
	a, _, procs := newTestAdapter(t, nopWaker{err: wakeErr})

	a.setupEndpoints("conn", "192.0.2.1", setupRequest())
	err := a.selectConfiguration(context.Background(), startConfiguration(rtp.SessionControlCommandTypeStart))
	assert.ErrorIs(t, err, wakeErr)
	assert.Empty(t, *procs)
}

func TestVideoParamsMapping(t *testing.T) {
	cfg := startConfiguration(rtp.SessionControlCommandTypeStart)
	cfg.Video.CodecParams.Profiles = []rtp.VideoCodecProfile{{Id: rtp.VideoCodecProfileConstrainedBaseline}}
	cfg.Video.CodecParams.Levels = []rtp.VideoCodecLevel{{Level: rtp.VideoCodecLevel3_2}}

	got := videoParams(cfg, CPU)
	assert.Equal(t, stream.VideoParams{
		Width: 1280, Height: 720, FPS: 30, MaxBitrate: 300, PayloadType: 99,
		Profile: "baseline", Level: "3.2",
	}, got)

	assert.Equal(t, "constrained_baseline", videoParams(cfg, VAAPI).Profile)

	empty := videoParams(rtp.StreamConfiguration{}, CPU)
	assert.Empty(t, empty.Profile)
	assert.Empty(t, empty.Level)
}

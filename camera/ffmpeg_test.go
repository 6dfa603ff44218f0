package camera

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duncanleo/hc-gopro/stream"
)

func activeSession() stream.Session {
	return stream.Session{
		ID:            "A",
		ViewerAddress: "192.0.2.5",
		Video: &stream.Endpoint{
			Port:     6000,
			SRTPKey:  []byte("0123456789abcdef"),
			SRTPSalt: []byte("0123456789abcd"),
			SSRC:     1,
		},
		Phase:  stream.Active,
		Params: stream.VideoParams{Width: 1280, Height: 720, FPS: 30, MaxBitrate: 300},
	}
}

func TestLiveArgumentsCopy(t *testing.T) {
	s := activeSession()
	got := LiveCommand(InputConfiguration{}, Copy)(s)

	want := []string{
		"-video_size", "1280x720",
		"-framerate", "30",
		"-i", "udp://:8554",
		"-vcodec", "copy",
		"-an",
		"-payload_type", "99",
		"-ssrc", "1",
		"-f", "rtp",
		"-srtp_out_suite", "AES_CM_128_HMAC_SHA1_80",
		"-srtp_out_params", s.Video.SRTPParams(),
		"srtp://192.0.2.5:6000?rtcpport=6000&localrtcpport=6000&pkt_size=1378",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("live arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestLiveArgumentsCarryNegotiatedValues(t *testing.T) {
	s := activeSession()
	got := strings.Join(liveArguments(InputConfiguration{}, Copy, s), " ")

	assert.Contains(t, got, "1280x720")
	assert.Contains(t, got, " 30 ")
	assert.Contains(t, got, "srtp://192.0.2.5:6000")
}

func TestLiveArgumentsCPU(t *testing.T) {
	s := activeSession()
	s.Params.Profile = "main"
	s.Params.Level = "3.1"
	s.Params.PayloadType = 97
	s.Params.MTU = 1200

	got := liveArguments(InputConfiguration{Format: "mpegts", TimestampOverlay: true}, CPU, s)
	joined := strings.Join(got, " ")

	assert.Contains(t, joined, "-f mpegts -i udp://:8554")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-profile:v main")
	assert.Contains(t, joined, "-level:v 3.1")
	assert.Contains(t, joined, "-b:v 300k")
	assert.Contains(t, joined, "-payload_type 97")
	assert.Contains(t, joined, "drawtext")
	assert.True(t, strings.HasSuffix(joined, "pkt_size=1200"))
}

func TestLiveArgumentsVAAPI(t *testing.T) {
	got := liveArguments(InputConfiguration{}, VAAPI, activeSession())
	require.GreaterOrEqual(t, len(got), 4)
	assert.Equal(t, []string{"-vaapi_device", "/dev/dri/renderD128", "-hwaccel", "vaapi"}, got[:4])
	assert.Contains(t, got, "h264_vaapi")
}

func TestLiveArgumentsIPv6(t *testing.T) {
	s := activeSession()
	s.ViewerAddress = "2001:db8::5"
	s.IPv6 = true

	got := liveArguments(InputConfiguration{}, Copy, s)
	assert.Equal(t, "srtp://[2001:db8::5]:6000?rtcpport=6000&localrtcpport=6000&pkt_size=1228", got[len(got)-1])
}

func TestSnapshotArguments(t *testing.T) {
	got := snapshotArguments(InputConfiguration{}, 640, 360)
	want := []string{"-video_size", "640x360", "-i", "udp://:8554", "-vframes", "1", "-f", "mjpeg", "-"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot arguments mismatch (-want +got):\n%s", diff)
	}

	got = snapshotArguments(InputConfiguration{Source: "udp://:9000"}, 0, 0)
	assert.Equal(t, []string{"-i", "udp://:9000", "-vframes", "1", "-f", "mjpeg", "-"}, got)
}

func TestParseEncoderProfile(t *testing.T) {
	for in, want := range map[string]EncoderProfile{
		"":      Copy,
		"copy":  Copy,
		"CPU":   CPU,
		"omx":   OMX,
		"VAAPI": VAAPI,
	} {
		got, err := ParseEncoderProfile(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEncoderProfile("nvenc")
	assert.Error(t, err)
}

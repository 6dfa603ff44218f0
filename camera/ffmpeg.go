package camera

import (
	"fmt"
	"strings"

	"github.com/duncanleo/hc-gopro/stream"
)

// EncoderProfile selects how the live feed is encoded before it is
// encrypted. Copy forwards the camera's H.264 untouched.
type EncoderProfile int

const (
	Copy EncoderProfile = iota
	CPU
	OMX
	VAAPI
)

// ParseEncoderProfile maps a configuration value to an EncoderProfile.
func ParseEncoderProfile(s string) (EncoderProfile, error) {
	switch strings.ToUpper(s) {
	case "", "COPY":
		return Copy, nil
	case "CPU":
		return CPU, nil
	case "OMX":
		return OMX, nil
	case "VAAPI":
		return VAAPI, nil
	default:
		return Copy, fmt.Errorf("unknown encoder profile %q", s)
	}
}

func (p EncoderProfile) String() string {
	switch p {
	case CPU:
		return "CPU"
	case OMX:
		return "OMX"
	case VAAPI:
		return "VAAPI"
	default:
		return "COPY"
	}
}

// DefaultInputSource is where the camera pushes its preview feed once the
// stream has been restarted.
const DefaultInputSource = "udp://:8554"

// InputConfiguration describes the transcoder's input.
type InputConfiguration struct {
	Source           string
	Format           string
	TimestampOverlay bool
}

func (in InputConfiguration) source() string {
	if in.Source == "" {
		return DefaultInputSource
	}
	return in.Source
}

func (in InputConfiguration) inputArgs() []string {
	var args []string
	if in.Format != "" {
		args = append(args, "-f", in.Format)
	}
	return append(args, "-i", in.source())
}

// LiveCommand returns the stream.CommandBuilder for live sessions.
func LiveCommand(input InputConfiguration, profile EncoderProfile) stream.CommandBuilder {
	return func(s stream.Session) []string {
		return liveArguments(input, profile, s)
	}
}

func liveArguments(input InputConfiguration, profile EncoderProfile, s stream.Session) []string {
	p := s.Params

	var args []string
	if profile == VAAPI {
		args = append(args, "-vaapi_device", "/dev/dri/renderD128", "-hwaccel", "vaapi")
	}
	args = append(args,
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
	)
	args = append(args, input.inputArgs()...)

	switch profile {
	case CPU:
		args = append(args,
			"-c:v", "libx264",
			"-x264-params", "intra-refresh=1:bframes=0",
			"-preset", "veryfast",
			"-vf", fmt.Sprintf("scale=%d:-2", p.Width),
		)
	case OMX:
		args = append(args,
			"-c:v", "h264_omx",
			"-vf", fmt.Sprintf("scale=%d:-2", p.Width),
		)
	case VAAPI:
		args = append(args,
			"-c:v", "h264_vaapi",
			"-vf", fmt.Sprintf("format=nv12|vaapi,hwupload,scale_vaapi=w=%d:h=-2", p.Width),
			"-bf", "0",
		)
	default:
		args = append(args, "-vcodec", "copy")
	}

	if profile != Copy {
		if p.Profile != "" {
			args = append(args, "-profile:v", p.Profile)
		}
		if p.Level != "" {
			args = append(args, "-level:v", p.Level)
		}
		args = append(args,
			"-r", fmt.Sprintf("%d", p.FPS),
			"-b:v", fmt.Sprintf("%dk", p.MaxBitrate),
		)
		if input.TimestampOverlay {
			args = append(args, "-filter_complex", "drawtext=text='time\\: %{localtime}':fontcolor=white")
		}
	}

	args = append(args, "-an")

	if s.Video == nil {
		return args
	}
	return append(args,
		"-payload_type", fmt.Sprintf("%d", payloadType(p)),
		"-ssrc", fmt.Sprintf("%d", s.Video.SSRC),
		"-f", "rtp",
		"-srtp_out_suite", "AES_CM_128_HMAC_SHA1_80",
		"-srtp_out_params", s.Video.SRTPParams(),
		srtpURL(s.ViewerAddress, s.Video.Port, packetSize(p, s.IPv6)),
	)
}

func payloadType(p stream.VideoParams) int {
	if p.PayloadType == 0 {
		return 99
	}
	return p.PayloadType
}

func packetSize(p stream.VideoParams, ipv6 bool) int {
	if p.MTU > 0 {
		return p.MTU
	}
	if ipv6 {
		return 1228
	}
	return 1378
}

func srtpURL(host string, port uint16, pktSize int) string {
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("srtp://%s:%d?rtcpport=%d&localrtcpport=%d&pkt_size=%d", host, port, port, port, pktSize)
}

func snapshotArguments(input InputConfiguration, width, height uint) []string {
	var args []string
	if width > 0 && height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", width, height))
	}
	args = append(args, input.inputArgs()...)
	return append(args,
		"-vframes", "1",
		"-f", "mjpeg",
		"-",
	)
}

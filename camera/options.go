package camera

import (
	"github.com/brutella/hc/rtp"

	"github.com/duncanleo/hc-gopro/stream"
)

func streamVideoProfile(cfg rtp.StreamConfiguration, profile EncoderProfile) string {
	if len(cfg.Video.CodecParams.Profiles) == 0 {
		return ""
	}
	switch cfg.Video.CodecParams.Profiles[0].Id {
	case rtp.VideoCodecProfileConstrainedBaseline:
		if profile == VAAPI {
			return "constrained_baseline"
		}
		return "baseline"
	case rtp.VideoCodecProfileMain:
		return "main"
	default:
		return "high"
	}
}

func streamVideoCodecLevel(cfg rtp.StreamConfiguration) string {
	if len(cfg.Video.CodecParams.Levels) == 0 {
		return ""
	}
	switch cfg.Video.CodecParams.Levels[0].Level {
	case rtp.VideoCodecLevel3_1:
		return "3.1"
	case rtp.VideoCodecLevel3_2:
		return "3.2"
	default:
		return "4"
	}
}

// videoParams extracts the negotiated video parameters from a start or
// reconfigure request. Zero values are filled in by the session manager.
func videoParams(cfg rtp.StreamConfiguration, profile EncoderProfile) stream.VideoParams {
	return stream.VideoParams{
		Width:       int(cfg.Video.Attributes.Width),
		Height:      int(cfg.Video.Attributes.Height),
		FPS:         int(cfg.Video.Attributes.Framerate),
		MaxBitrate:  int(cfg.Video.RTP.Bitrate),
		PayloadType: int(cfg.Video.RTP.PayloadType),
		MTU:         int(cfg.Video.RTP.MTU),
		Profile:     streamVideoProfile(cfg, profile),
		Level:       streamVideoCodecLevel(cfg),
	}
}

func endpoint(port uint16, suite rtp.CryptoSuite) *stream.Endpoint {
	return &stream.Endpoint{
		Port:     port,
		SRTPKey:  suite.MasterKey,
		SRTPSalt: suite.MasterSalt,
	}
}

func cryptoSuite(e *stream.Endpoint) rtp.CryptoSuite {
	if e == nil {
		return rtp.CryptoSuite{}
	}
	return rtp.CryptoSuite{
		MasterKey:  e.SRTPKey,
		MasterSalt: e.SRTPSalt,
	}
}

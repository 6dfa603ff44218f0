package camera

import (
	"context"
	"encoding/hex"
	"net"

	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/rtp"
	"github.com/brutella/hc/service"
	"github.com/brutella/hc/tlv8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/duncanleo/hc-gopro/stream"
)

// Sessions is the part of the session manager the HomeKit adapter drives.
// *stream.Manager implements it.
type Sessions interface {
	Prepare(req stream.PrepareRequest) (stream.Offer, error)
	Start(ctx context.Context, id string, params stream.VideoParams) error
	Stop(id string)
	Suspend(id string) error
	Resume(id string) error
	Reconfigure(id string, params stream.VideoParams)
}

// streamAdapter translates RTP stream management writes into session
// manager calls.
type streamAdapter struct {
	sessions Sessions
	profile  EncoderProfile
	logger   zerolog.Logger
}

// sessionKey renders the controller-assigned session identifier.
func sessionKey(id []byte) string {
	if u, err := uuid.FromBytes(id); err == nil {
		return u.String()
	}
	return hex.EncodeToString(id)
}

// setupEndpoints answers a SetupEndpoints write. localIP is the address the
// controller reached us on.
func (a *streamAdapter) setupEndpoints(connID, localIP string, req rtp.SetupEndpoints) rtp.SetupEndpointsResponse {
	id := sessionKey([]byte(req.SessionId))

	preq := stream.PrepareRequest{
		SessionID:     id,
		ConnID:        connID,
		ViewerAddress: req.ControllerAddr.IPAddr,
		LocalAddress:  localIP,
		Video:         endpoint(req.ControllerAddr.VideoRtpPort, req.Video),
		Audio:         endpoint(req.ControllerAddr.AudioRtpPort, req.Audio),
	}

	resp := rtp.SetupEndpointsResponse{
		SessionId: req.SessionId,
		Video:     req.Video,
		Audio:     req.Audio,
	}

	offer, err := a.sessions.Prepare(preq)
	if err != nil {
		a.logger.Error().Err(err).Str("session", id).Msg("setup endpoints")
		resp.Status = rtp.SessionStatusError
		return resp
	}

	ipVersion := byte(rtp.IPAddrVersionv4)
	if offer.IPv6 {
		ipVersion = rtp.IPAddrVersionv6
	}

	resp.Status = rtp.SessionStatusSuccess
	resp.AccessoryAddr = rtp.Addr{
		IPVersion:    ipVersion,
		IPAddr:       offer.Address,
		VideoRtpPort: req.ControllerAddr.VideoRtpPort,
		AudioRtpPort: req.ControllerAddr.AudioRtpPort,
	}
	resp.Video = cryptoSuite(offer.Video)
	resp.Audio = cryptoSuite(offer.Audio)
	if offer.Video != nil {
		resp.SsrcVideo = offer.Video.SSRC
	}
	if offer.Audio != nil {
		resp.SsrcAudio = offer.Audio.SSRC
	}
	return resp
}

// selectConfiguration applies a SelectedRTPStreamConfiguration write.
func (a *streamAdapter) selectConfiguration(ctx context.Context, cfg rtp.StreamConfiguration) error {
	id := sessionKey([]byte(cfg.Command.Identifier))
	logger := a.logger.With().Str("session", id).Logger()

	switch cfg.Command.Type {
	case rtp.SessionControlCommandTypeStart:
		logger.Debug().Msg("start")
		return a.sessions.Start(ctx, id, videoParams(cfg, a.profile))
	case rtp.SessionControlCommandTypeResume:
		logger.Debug().Msg("resume")
		return a.sessions.Resume(id)
	case rtp.SessionControlCommandTypeReconfigure:
		a.sessions.Reconfigure(id, videoParams(cfg, a.profile))
	case rtp.SessionControlCommandTypeSuspend:
		logger.Debug().Msg("suspend")
		return a.sessions.Suspend(id)
	case rtp.SessionControlCommandTypeEnd:
		logger.Debug().Msg("end")
		a.sessions.Stop(id)
	default:
		logger.Warn().Uint8("type", cfg.Command.Type).Msg("unknown session command")
	}
	return nil
}

func localIP(conn net.Conn) string {
	switch addr := conn.LocalAddr().(type) {
	case *net.TCPAddr:
		return addr.IP.String()
	case *net.UDPAddr:
		return addr.IP.String()
	}
	return ""
}

func setupStreamMgmt(sm *service.CameraRTPStreamManagement, a *streamAdapter) error {
	if err := setTLV8Payload(sm.StreamingStatus.Bytes, rtp.StreamingStatus{Status: rtp.StreamingStatusAvailable}); err != nil {
		return err
	}
	if err := setTLV8Payload(sm.SupportedVideoStreamConfiguration.Bytes, rtp.DefaultVideoStreamConfiguration()); err != nil {
		return err
	}
	if err := setTLV8Payload(sm.SupportedAudioStreamConfiguration.Bytes, rtp.AudioStreamConfiguration{
		Codecs:       []rtp.AudioCodecConfiguration{rtp.NewOpusAudioCodecConfiguration()},
		ComfortNoise: false,
	}); err != nil {
		return err
	}
	if err := setTLV8Payload(sm.SupportedRTPConfiguration.Bytes, rtp.NewConfiguration(rtp.CryptoSuite_AES_CM_128_HMAC_SHA1_80)); err != nil {
		return err
	}

	sm.SelectedRTPStreamConfiguration.OnValueRemoteUpdate(func(value []byte) {
		var cfg rtp.StreamConfiguration
		if err := tlv8.Unmarshal(value, &cfg); err != nil {
			a.logger.Error().Err(err).Msg("decode selected stream configuration")
			return
		}
		if err := a.selectConfiguration(context.Background(), cfg); err != nil {
			a.logger.Error().Err(err).Msg("stream command")
		}
	})

	sm.SetupEndpoints.OnValueUpdateFromConn(func(conn net.Conn, c *characteristic.Characteristic, new, old interface{}) {
		var req rtp.SetupEndpoints
		if err := tlv8.Unmarshal(sm.SetupEndpoints.GetValue(), &req); err != nil {
			a.logger.Error().Err(err).Msg("decode setup endpoints")
			return
		}

		resp := a.setupEndpoints(conn.RemoteAddr().String(), localIP(conn), req)
		if err := setTLV8Payload(sm.SetupEndpoints.Bytes, resp); err != nil {
			a.logger.Error().Err(err).Msg("encode setup endpoints response")
		}
	})
	return nil
}

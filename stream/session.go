// Package stream tracks live viewer sessions and owns one transcoder per
// active session.
package stream

import (
	"encoding/base64"
	"net"
)

// Phase is a session's lifecycle position.
type Phase int

const (
	Pending Phase = iota
	Active
	Closed
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "closed"
	}
}

// Endpoint is one media leg of a session: the viewer's RTP port and SRTP
// key material.
type Endpoint struct {
	Port     uint16
	SRTPKey  []byte
	SRTPSalt []byte
	SSRC     int32
}

// SRTPParams returns the base64 key||salt blob ffmpeg expects.
func (e Endpoint) SRTPParams() string {
	material := make([]byte, 0, len(e.SRTPKey)+len(e.SRTPSalt))
	material = append(material, e.SRTPKey...)
	material = append(material, e.SRTPSalt...)
	return base64.StdEncoding.EncodeToString(material)
}

// PrepareRequest is a viewer's request to set up a session.
type PrepareRequest struct {
	SessionID     string
	ConnID        string
	ViewerAddress string
	// LocalAddress is the host address the viewer reached us on. When empty
	// it is derived from the route towards the viewer.
	LocalAddress string
	Video        *Endpoint
	Audio        *Endpoint
}

// Offer is the answer to a PrepareRequest.
type Offer struct {
	SessionID string
	Address   string
	IPv6      bool
	Video     *Endpoint
	Audio     *Endpoint
}

// VideoParams are the negotiated parameters carried by a start request.
type VideoParams struct {
	Width       int
	Height      int
	FPS         int
	MaxBitrate  int // kbit/s
	PayloadType int
	MTU         int
	Profile     string
	Level       string
}

// Session is a copy of one session table entry.
type Session struct {
	ID            string
	ConnID        string
	ViewerAddress string
	IPv6          bool
	Video         *Endpoint
	Audio         *Endpoint
	Phase         Phase
	Params        VideoParams
}

// isIPv6 reports whether addr is an IPv6 literal.
func isIPv6(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() == nil
}

// localAddressFor returns the host address used to reach viewer. No packet is
// sent; a UDP dial only resolves the route.
func localAddressFor(viewer string) (string, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(viewer, "9"))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

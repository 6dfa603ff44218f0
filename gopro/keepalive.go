package gopro

import (
	"context"
	"net"
	"time"
)

const (
	// DefaultStreamAddr is where the camera listens for preview keep-alives.
	DefaultStreamAddr = "10.5.5.9:8554"

	keepAliveMessage  = "_GPHD_:0:0:2:0.000000\n"
	keepAliveInterval = 2500 * time.Millisecond
)

// KeepAlive sends the preview stream keep-alive datagram to addr until ctx is
// done. Without it the camera stops its UDP preview after a few seconds.
func KeepAlive(ctx context.Context, addr string, interval time.Duration) error {
	if addr == "" {
		addr = DefaultStreamAddr
	}
	if interval <= 0 {
		interval = keepAliveInterval
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// The camera may not be listening yet; later ticks retry.
		_, _ = conn.Write([]byte(keepAliveMessage))
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

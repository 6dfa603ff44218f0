// Package gopro talks to a GoPro HERO4-era camera over its WiFi control API.
package gopro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL      = "http://10.5.5.9"
	defaultMediaBaseURL = "http://10.5.5.9:8080"
	defaultWakeAddr     = "10.5.5.9:9"
	defaultTimeout      = 5 * time.Second
)

// Camera modes and sub-modes accepted by SetMode.
const (
	ModeVideo     = 0
	ModePhoto     = 1
	ModeMultiShot = 2

	SubModePhotoSingle = 0
	SubModePhotoNight  = 2
)

// Options configures a Camera. Zero values select the camera's fixed
// access-point addresses.
type Options struct {
	BaseURL      string
	MediaBaseURL string
	WakeAddr     string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Camera is a stateless proxy to one camera's control API. It is cheap to
// construct and is built fresh for every top-level operation.
type Camera struct {
	MAC string

	baseURL      string
	mediaBaseURL string
	wakeAddr     string
	client       *http.Client
}

// NewCamera returns a handle for the camera with the given colon delimited MAC.
func NewCamera(mac string, opts Options) *Camera {
	c := &Camera{
		MAC:          mac,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		mediaBaseURL: strings.TrimRight(opts.MediaBaseURL, "/"),
		wakeAddr:     opts.WakeAddr,
		client:       opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.mediaBaseURL == "" {
		c.mediaBaseURL = defaultMediaBaseURL
	}
	if c.wakeAddr == "" {
		c.wakeAddr = defaultWakeAddr
	}
	if c.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.client = &http.Client{Timeout: timeout}
	}
	return c
}

// Host returns the camera's address as used in media URLs.
func (c *Camera) Host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// PowerOn wakes the camera with a Wake-on-LAN magic packet.
func (c *Camera) PowerOn(ctx context.Context) error {
	hw, err := net.ParseMAC(c.MAC)
	if err != nil {
		return fmt.Errorf("parse camera mac %q: %w", c.MAC, err)
	}

	packet := make([]byte, 0, 6+16*len(hw))
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xff)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, hw...)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", c.wakeAddr)
	if err != nil {
		return &TransportError{Op: "power on", URL: "udp://" + c.wakeAddr, Err: err}
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return &TransportError{Op: "power on", URL: "udp://" + c.wakeAddr, Err: err}
	}
	return nil
}

// PowerOff puts the camera to sleep.
func (c *Camera) PowerOff(ctx context.Context) error {
	return c.command(ctx, "power off", "/gp/gpControl/command/system/sleep")
}

// Info fetches the camera's static configuration document. The raw payload is
// returned alongside the decoded info block.
func (c *Camera) Info(ctx context.Context) (Info, []byte, error) {
	var info Info
	body, err := c.get(ctx, "info", c.baseURL+"/gp/gpControl")
	if err != nil {
		return info, nil, err
	}

	var doc struct {
		Info Info `json:"info"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return info, body, &TransportError{Op: "info", URL: c.baseURL + "/gp/gpControl", Err: err}
	}
	return doc.Info, body, nil
}

// Status queries the camera's current status vector.
func (c *Camera) Status(ctx context.Context) (*Status, error) {
	u := c.baseURL + "/gp/gpControl/status"
	body, err := c.get(ctx, "status", u)
	if err != nil {
		return nil, err
	}

	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, &TransportError{Op: "status", URL: u, Err: err}
	}
	return &st, nil
}

// SetMode switches the capture mode.
func (c *Camera) SetMode(ctx context.Context, mode, subMode int) error {
	return c.command(ctx, "set mode", fmt.Sprintf("/gp/gpControl/command/sub_mode?mode=%d&sub_mode=%d", mode, subMode))
}

// Shutter triggers (or stops) a capture in the current mode.
func (c *Camera) Shutter(ctx context.Context, on bool) error {
	p := 0
	if on {
		p = 1
	}
	return c.command(ctx, "shutter", fmt.Sprintf("/gp/gpControl/command/shutter?p=%d", p))
}

// DeleteLast removes the most recent media file.
func (c *Camera) DeleteLast(ctx context.Context) error {
	return c.command(ctx, "delete last", "/gp/gpControl/command/storage/delete/last")
}

// DeleteAll clears the camera's storage.
func (c *Camera) DeleteAll(ctx context.Context) error {
	return c.command(ctx, "delete all", "/gp/gpControl/command/storage/delete/all")
}

// RestartStream (re)starts the camera's UDP preview stream.
func (c *Camera) RestartStream(ctx context.Context) error {
	return c.command(ctx, "restart stream", "/gp/gpControl/execute?p1=gpStream&a1=proto_v2&c1=restart")
}

// ListMedia returns the camera's media listing in the camera's own order.
func (c *Camera) ListMedia(ctx context.Context) (*MediaList, error) {
	u := c.mediaBaseURL + "/gp/gpMediaList"
	body, err := c.get(ctx, "list media", u)
	if err != nil {
		return nil, err
	}

	var list MediaList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &TransportError{Op: "list media", URL: u, Err: err}
	}
	list.host = c.Host()
	return &list, nil
}

// Download streams one media file into w.
func (c *Camera) Download(ctx context.Context, directory, file string, w io.Writer) error {
	u := fmt.Sprintf("%s/videos/DCIM/%s/%s", c.mediaBaseURL, url.PathEscape(directory), url.PathEscape(file))
	resp, err := c.do(ctx, "download", u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return &TransportError{Op: "download", URL: u, Err: err}
	}
	return nil
}

func (c *Camera) command(ctx context.Context, op, path string) error {
	_, err := c.get(ctx, op, c.baseURL+path)
	return err
}

func (c *Camera) get(ctx context.Context, op, u string) ([]byte, error) {
	resp, err := c.do(ctx, op, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, URL: u, Err: err}
	}
	return body, nil
}

func (c *Camera) do(ctx context.Context, op, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &TransportError{Op: op, URL: u, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: u, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &TransportError{Op: op, URL: u, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return resp, nil
}

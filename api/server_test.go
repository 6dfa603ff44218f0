package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duncanleo/hc-gopro/control"
	"github.com/duncanleo/hc-gopro/gopro"
	"github.com/duncanleo/hc-gopro/pairing"
	"github.com/duncanleo/hc-gopro/stream"
)

const mediaListJSON = `{"id":"1","media":[{"d":"100GOPRO","fs":[
	{"n":"GOPR0001.JPG","mod":"1600000000","s":"2048"},
	{"n":"G0010002.JPG","mod":"1600000100","s":"4096","g":"1","b":"2","l":"11"}
]}]}`

type fakeCamera struct {
	calls []string
	err   error
}

func (f *fakeCamera) do(op string) error {
	f.calls = append(f.calls, op)
	return f.err
}

func (f *fakeCamera) TakePicture(context.Context) error { return f.do("photo") }
func (f *fakeCamera) DeleteLast(context.Context) error  { return f.do("delete-last") }
func (f *fakeCamera) DeleteAll(context.Context) error   { return f.do("delete-all") }
func (f *fakeCamera) PowerOn(context.Context) error     { return f.do("power-on") }
func (f *fakeCamera) PowerOff(context.Context) error    { return f.do("power-off") }

func (f *fakeCamera) ListMedia(context.Context) (*gopro.MediaList, error) {
	if err := f.do("list"); err != nil {
		return nil, err
	}
	var list gopro.MediaList
	if err := json.Unmarshal([]byte(mediaListJSON), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (f *fakeCamera) FetchLatest(context.Context) (string, error) {
	if err := f.do("fetch"); err != nil {
		return "", err
	}
	return "data/photos/G0010002.JPG", nil
}

type fakeSessions []stream.Session

func (f fakeSessions) Sessions() []stream.Session { return f }

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, New(&fakeCamera{}, fakeSessions{}, Config{}), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	rec := serve(t, New(&fakeCamera{}, fakeSessions{}, Config{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessions(t *testing.T) {
	sessions := fakeSessions{{
		ID:            "A",
		ViewerAddress: "192.0.2.5",
		Phase:         stream.Active,
		Params:        stream.VideoParams{Width: 1280, Height: 720, FPS: 30, MaxBitrate: 300},
	}}
	rec := serve(t, New(&fakeCamera{}, sessions, Config{}), http.MethodGet, "/api/sessions")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"A","viewer":"192.0.2.5","phase":"active","width":1280,"height":720,"fps":30,"bitrate":300}]`, rec.Body.String())
}

func TestListMedia(t *testing.T) {
	rec := serve(t, New(&fakeCamera{}, fakeSessions{}, Config{}), http.MethodGet, "/api/media")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []mediaView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "GOPR0001.JPG", got[0].File)
	assert.Equal(t, int64(2048), got[0].Size)
	assert.Zero(t, got[0].BurstPhotos)
	assert.Equal(t, int64(10), got[1].BurstPhotos)
}

func TestCommands(t *testing.T) {
	tests := []struct {
		method, path, op string
	}{
		{http.MethodPost, "/api/photo", "photo"},
		{http.MethodDelete, "/api/media/last", "delete-last"},
		{http.MethodDelete, "/api/media", "delete-all"},
		{http.MethodPost, "/api/power/on", "power-on"},
		{http.MethodPost, "/api/power/off", "power-off"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			cam := &fakeCamera{}
			rec := serve(t, New(cam, fakeSessions{}, Config{}), tt.method, tt.path)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{tt.op}, cam.calls)
		})
	}
}

func TestFetchLatest(t *testing.T) {
	rec := serve(t, New(&fakeCamera{}, fakeSessions{}, Config{}), http.MethodPost, "/api/media/latest/fetch")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"path":"data/photos/G0010002.JPG"}`, rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{pairing.ErrNotConfigured, http.StatusPreconditionFailed, "not_configured"},
		{control.ErrNotConnected, http.StatusServiceUnavailable, "not_connected"},
		{fmt.Errorf("%w: %w", control.ErrNotConnected, errors.New("list wifi connections: exit status 8")), http.StatusServiceUnavailable, "not_connected"},
		{fmt.Errorf("wait: %w", gopro.ErrCameraUnreachable), http.StatusGatewayTimeout, "camera_unreachable"},
		{gopro.ErrLinkNotConfirmed, http.StatusGatewayTimeout, "link_not_confirmed"},
		{control.ErrNoMedia, http.StatusNotFound, "no_media"},
		{&gopro.TransportError{Op: "GET", URL: "http://10.5.5.9/gp/gpControl", Err: context.DeadlineExceeded}, http.StatusBadGateway, "transport_error"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := serve(t, New(&fakeCamera{err: tt.err}, fakeSessions{}, Config{}), http.MethodPost, "/api/photo")
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestRateLimit(t *testing.T) {
	h := New(&fakeCamera{}, fakeSessions{}, Config{RateLimit: 2}).Handler()

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

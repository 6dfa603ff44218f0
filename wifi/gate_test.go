package wifi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duncanleo/hc-gopro/pairing"
)

type staticLister struct {
	conns []Connection
	err   error
	calls int
}

func (s *staticLister) CurrentConnections(context.Context) ([]Connection, error) {
	s.calls++
	return s.conns, s.err
}

func TestGateNotConfigured(t *testing.T) {
	lister := &staticLister{}
	g := &Gate{Lister: lister}

	ok, err := g.IsConnected(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, pairing.ErrNotConfigured)
	assert.Zero(t, lister.calls)
}

func TestGateMatchesSSID(t *testing.T) {
	rec := &pairing.Record{SSID: "GP54321"}

	g := &Gate{Record: rec, Lister: &staticLister{conns: []Connection{{SSID: "home"}, {SSID: "GP54321"}}}}
	ok, err := g.IsConnected(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	g = &Gate{Record: rec, Lister: &staticLister{conns: []Connection{{SSID: "home"}}}}
	ok, err = g.IsConnected(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateListerError(t *testing.T) {
	boom := errors.New("boom")
	g := &Gate{Record: &pairing.Record{SSID: "x"}, Lister: &staticLister{err: boom}}
	ok, err := g.IsConnected(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestParseNMCLI(t *testing.T) {
	out := []byte("no:home:wlan0\nyes:GP54321:wlan0\nyes:cafe\\:net:wlan1\n")

	conns := parseNMCLI(out, "")
	assert.Equal(t, []Connection{{SSID: "GP54321", Iface: "wlan0"}, {SSID: "cafe:net", Iface: "wlan1"}}, conns)

	conns = parseNMCLI(out, "wlan1")
	assert.Equal(t, []Connection{{SSID: "cafe:net", Iface: "wlan1"}}, conns)
}

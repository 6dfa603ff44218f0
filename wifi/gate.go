// Package wifi checks that the host is associated with the paired camera's
// access point before any camera command is attempted.
package wifi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/duncanleo/hc-gopro/pairing"
)

// Connection is one active network association.
type Connection struct {
	SSID  string
	Iface string
}

// Lister returns the host's currently active associations.
type Lister interface {
	CurrentConnections(ctx context.Context) ([]Connection, error)
}

// Gate is a single point-in-time connectivity check against a pairing record.
type Gate struct {
	Record *pairing.Record
	Lister Lister
}

// IsConnected reports whether any active association matches the paired
// network name. A nil record yields pairing.ErrNotConfigured.
func (g *Gate) IsConnected(ctx context.Context) (bool, error) {
	if g.Record == nil {
		return false, pairing.ErrNotConfigured
	}

	conns, err := g.Lister.CurrentConnections(ctx)
	if err != nil {
		return false, fmt.Errorf("list wifi connections: %w", err)
	}

	for _, c := range conns {
		if c.SSID == g.Record.SSID {
			return true, nil
		}
	}
	return false, nil
}

// NMCLILister reads active associations from NetworkManager.
type NMCLILister struct {
	// Iface restricts results to one interface; empty matches all.
	Iface string
}

func (l NMCLILister) CurrentConnections(ctx context.Context) ([]Connection, error) {
	out, err := exec.CommandContext(ctx, "nmcli", "-t", "-f", "ACTIVE,SSID,DEVICE", "device", "wifi", "list").Output()
	if err != nil {
		return nil, err
	}
	return parseNMCLI(out, l.Iface), nil
}

// parseNMCLI parses terse "ACTIVE:SSID:DEVICE" lines. Colons inside an SSID
// are escaped by nmcli as "\:".
func parseNMCLI(out []byte, iface string) []Connection {
	var conns []Connection
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) != 3 || fields[0] != "yes" {
			continue
		}
		if iface != "" && fields[2] != iface {
			continue
		}
		conns = append(conns, Connection{SSID: fields[1], Iface: fields[2]})
	}
	return conns
}

func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

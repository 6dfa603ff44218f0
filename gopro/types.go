package gopro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"time"
)

// StatusStreamClients is the status vector index counting registered
// streaming clients.
const StatusStreamClients = 31

// Info is the info block of /gp/gpControl.
type Info struct {
	ModelNumber     int    `json:"model_number"`
	ModelName       string `json:"model_name"`
	FirmwareVersion string `json:"firmware_version"`
	SerialNumber    string `json:"serial_number"`
	APMAC           string `json:"ap_mac"`
	APSSID          string `json:"ap_ssid"`
}

// Status is one snapshot of the camera status endpoint. Keys are the
// camera's numeric status ids.
type Status struct {
	Status   map[string]any `json:"status"`
	Settings map[string]any `json:"settings"`
}

// Int returns the numeric status value at id.
func (s *Status) Int(id int) (int, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.Status[strconv.Itoa(id)]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// LinkEstablished reports whether at least one stream client is registered.
func (s *Status) LinkEstablished() bool {
	n, ok := s.Int(StatusStreamClients)
	return ok && n > 0
}

// number decodes the camera's numbers, which gpMediaList sends as strings.
type number int64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", b, err)
	}
	*n = number(v)
	return nil
}

// MediaList is the camera's gpMediaList document.
type MediaList struct {
	ID    string           `json:"id"`
	Media []MediaDirectory `json:"media"`

	host string
}

// MediaDirectory is one DCIM directory.
type MediaDirectory struct {
	Name  string      `json:"d"`
	Files []MediaFile `json:"fs"`
}

// MediaFile is one entry in a directory. Burst groups carry G, B and L.
type MediaFile struct {
	Name     string  `json:"n"`
	Modified number  `json:"mod"`
	Size     number  `json:"s"`
	Group    *number `json:"g,omitempty"`
	First    *number `json:"b,omitempty"`
	Last     *number `json:"l,omitempty"`
}

// MediaEntry is a listed file annotated with derived metadata.
type MediaEntry struct {
	Directory string
	File      string
	Taken     time.Time
	Size      int64
	URL       string

	// Burst is set for burst captures.
	Burst *Burst
}

// Burst describes a burst capture group.
type Burst struct {
	Group int64
	First int64
	Last  int64
}

// Photos is the number of frames in the burst.
func (b Burst) Photos() int64 {
	return b.Last - b.First + 1
}

// MediaURL builds the retrieval URL for one file.
func MediaURL(host, directory, file string) string {
	return fmt.Sprintf("http://%s/videos/DCIM/%s/%s", host, directory, file)
}

// Entries lazily walks every (directory, file) pair in camera order.
func (l *MediaList) Entries() iter.Seq[MediaEntry] {
	return func(yield func(MediaEntry) bool) {
		for _, d := range l.Media {
			for _, f := range d.Files {
				if !yield(l.entry(d, f)) {
					return
				}
			}
		}
	}
}

func (l *MediaList) entry(d MediaDirectory, f MediaFile) MediaEntry {
	e := MediaEntry{
		Directory: d.Name,
		File:      f.Name,
		Taken:     time.Unix(int64(f.Modified), 0),
		Size:      int64(f.Size),
		URL:       MediaURL(l.host, d.Name, f.Name),
	}
	if f.Group != nil {
		b := &Burst{Group: int64(*f.Group)}
		if f.First != nil {
			b.First = int64(*f.First)
		}
		if f.Last != nil {
			b.Last = int64(*f.Last)
		}
		e.Burst = b
	}
	return e
}

// Latest returns the last file of the last directory as ordered by the camera.
func (l *MediaList) Latest() (MediaEntry, bool) {
	for i := len(l.Media) - 1; i >= 0; i-- {
		d := l.Media[i]
		if len(d.Files) == 0 {
			continue
		}
		return l.entry(d, d.Files[len(d.Files)-1]), true
	}
	return MediaEntry{}, false
}

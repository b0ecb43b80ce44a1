// Package feed fetches and decodes the relay discovery document.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/gajzzs/relayblock/internal/relay"
)

// ErrNoLocations is returned when the document carries no "pops" object.
var ErrNoLocations = errors.New("no relay locations found")

// Decode parses an SDR config document into relay entries, keeping the
// order in which locations appear. A location whose fields are missing or
// of the wrong type decodes to an entry without addresses instead of
// failing the whole document. Such fields are logged at debug level; a nil
// logger means the default one.
func Decode(r io.Reader, logger *log.Logger) ([]relay.Entry, error) {
	if logger == nil {
		logger = log.Default()
	}
	var doc struct {
		Pops json.RawMessage `json:"pops"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}
	if len(doc.Pops) == 0 || bytes.Equal(doc.Pops, []byte("null")) {
		return nil, ErrNoLocations
	}

	dec := json.NewDecoder(bytes.NewReader(doc.Pops))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode pops: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: pops is not an object", ErrNoLocations)
	}

	var entries []relay.Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode pops: %w", err)
		}
		code, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode pop %q: %w", code, err)
		}
		entries = append(entries, decodePop(code, raw, logger))
	}
	return entries, nil
}

func decodePop(code string, raw json.RawMessage, logger *log.Logger) relay.Entry {
	entry := relay.Entry{Code: code}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		logger.Debug("location is not an object", "location", code, "error", err)
		return entry
	}
	if desc, ok := fields["desc"]; ok {
		if err := json.Unmarshal(desc, &entry.Name); err != nil {
			logger.Debug("ignoring non-string desc", "location", code, "desc", string(desc))
		}
	}

	var relays []json.RawMessage
	if err := json.Unmarshal(fields["relays"], &relays); err != nil {
		logger.Debug("location has no relay list", "location", code, "error", err)
		return entry
	}
	for _, rr := range relays {
		var rec struct {
			IPv4 string `json:"ipv4"`
		}
		if err := json.Unmarshal(rr, &rec); err != nil || rec.IPv4 == "" {
			continue
		}
		entry.Addrs = append(entry.Addrs, rec.IPv4)
	}
	return entry
}

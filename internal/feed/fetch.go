package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gajzzs/relayblock/internal/relay"
)

// maxDocumentBytes caps how much of the response body is read.
const maxDocumentBytes = 16 << 20

// Source yields the current set of relay entries.
type Source interface {
	Entries(ctx context.Context) ([]relay.Entry, error)
}

// HTTPSource downloads the discovery document from URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
	Logger *log.Logger
}

// NewHTTPSource returns a source with its own client bounded by timeout.
func NewHTTPSource(url string, timeout time.Duration, logger *log.Logger) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

// Entries implements Source.
func (s *HTTPSource) Entries(ctx context.Context) ([]relay.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", s.URL, resp.Status)
	}
	return Decode(io.LimitReader(resp.Body, maxDocumentBytes), s.Logger)
}

// StaticSource serves a fixed entry list.
type StaticSource []relay.Entry

// Entries implements Source.
func (s StaticSource) Entries(context.Context) ([]relay.Entry, error) {
	out := make([]relay.Entry, len(s))
	copy(out, s)
	return out, nil
}

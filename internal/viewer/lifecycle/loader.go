package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrUnsupportedLocator is returned for locators that are neither a file
	// path nor an http(s) URL.
	ErrUnsupportedLocator = errors.New("unsupported locator")
	// ErrTooLarge is returned when a document exceeds the loader's size limit.
	ErrTooLarge = errors.New("document too large")
)

// DefaultMaxBytes caps documents read by the default loader.
const DefaultMaxBytes = 256 << 20

// Loader resolves a locator to document bytes.
type Loader interface {
	Load(ctx context.Context, locator string) ([]byte, error)
}

// LocatorLoader reads file paths, file:// URLs and http(s):// URLs.
type LocatorLoader struct {
	Client   *http.Client
	MaxBytes int64
}

var _ Loader = (*LocatorLoader)(nil)

// NewLoader returns a loader with a 30s HTTP timeout and DefaultMaxBytes.
func NewLoader() *LocatorLoader {
	return &LocatorLoader{
		Client:   &http.Client{Timeout: 30 * time.Second},
		MaxBytes: DefaultMaxBytes,
	}
}

// Load implements Loader.
func (l *LocatorLoader) Load(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !strings.Contains(locator, "://") {
		return l.readFile(locator)
	}

	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("parse locator: %w", err)
	}

	switch u.Scheme {
	case "file":
		return l.readFile(u.Path)
	case "http", "https":
		return l.fetch(ctx, u.String())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocator, u.Scheme)
	}
}

func (l *LocatorLoader) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if limit := l.maxBytes(); info.Size() > limit {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", path, ErrTooLarge, info.Size(), limit)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (l *LocatorLoader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf, */*")
	req.Header.Set("User-Agent", "folio")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Debug().Err(err).Msg("loader: close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	limit := l.maxBytes()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%s: %w (over %d bytes)", rawURL, ErrTooLarge, limit)
	}
	return body, nil
}

func (l *LocatorLoader) maxBytes() int64 {
	if l.MaxBytes > 0 {
		return l.MaxBytes
	}
	return DefaultMaxBytes
}

// Package preset models paste targets and the bounded in-memory cache the
// orchestrator owns. The cache is the single writer; the persisted record
// is a mirror of it.
package preset

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// MaxPresets caps the number of presets a user can keep.
const MaxPresets = 10

// Errors returned by Cache mutations. Their messages double as the wire
// error codes of orchestrator.* replies.
var (
	ErrCapExceeded = errors.New("cap-exceeded")
	ErrDuplicate   = errors.New("duplicate")
	ErrNotFound    = errors.New("not-found")
	ErrInvalid     = errors.New("invalid")
)

// Preset is a saved paste target.
type Preset struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Selector   string `json:"selector"`
	AutoSubmit bool   `json:"autoSubmit"`
	ReuseTab   bool   `json:"reuseTab"`
}

// Origin returns scheme://host[:port] of the preset URL.
func (p Preset) Origin() (string, error) {
	return Origin(p.URL)
}

// Hostname returns the host of the preset URL without port, or "" if the
// URL does not parse.
func (p Preset) Hostname() string {
	u, err := url.Parse(p.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Origin returns scheme://host[:port] for rawURL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("preset: parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("preset: url %q has no origin", rawURL)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// NewID returns an opaque, time-ordered identifier (UUIDv7).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

var namePolicy = bluemonday.StrictPolicy()

// CleanName strips markup and surrounding space from a user-supplied name.
// The result is plain text: entities escaped by the sanitiser are decoded
// again, renderers escape on output.
func CleanName(name string) string {
	return strings.TrimSpace(html.UnescapeString(namePolicy.Sanitize(name)))
}

// Validate checks the fields every stored preset must carry.
func (p Preset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(p.Selector) == "" {
		return fmt.Errorf("%w: selector is required", ErrInvalid)
	}
	if _, err := p.Origin(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

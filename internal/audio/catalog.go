package audio

import (
	"context"
	"fmt"
	"strings"
)

// DefaultExcludePatterns lists name fragments of pseudo-inputs that never
// carry a real microphone signal.
var DefaultExcludePatterns = []string{
	"sound mapper",
	"primary capture",
	"communications",
	"loopback",
	"stereo mix",
	"what u hear",
}

// Catalog lists input devices eligible for calibration
type Catalog struct {
	lister  Lister
	exclude []string
}

// CatalogOption configures a Catalog
type CatalogOption func(*Catalog)

// WithExcludePatterns replaces the name fragments used to drop pseudo-inputs.
// Matching is case-insensitive. An empty list disables name filtering.
func WithExcludePatterns(patterns []string) CatalogOption {
	return func(c *Catalog) {
		c.exclude = make([]string, 0, len(patterns))
		for _, p := range patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				c.exclude = append(c.exclude, p)
			}
		}
	}
}

// NewCatalog creates a catalog backed by the given lister
func NewCatalog(lister Lister, opts ...CatalogOption) *Catalog {
	c := &Catalog{lister: lister}
	WithExcludePatterns(DefaultExcludePatterns)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the normalized input devices in backend order.
// Devices without input channels, excluded names and repeated ids are dropped.
func (c *Catalog) List(ctx context.Context) ([]Device, error) {
	raw, err := c.lister.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	seen := make(map[int]bool, len(raw))
	devices := make([]Device, 0, len(raw))
	for _, r := range raw {
		channels := r.ChannelCount()
		if channels < 1 || seen[r.ID] || c.excluded(r.Name) {
			continue
		}
		seen[r.ID] = true

		devices = append(devices, Device{
			ID:           r.ID,
			Name:         r.Name,
			ChannelCount: channels,
			IsDefault:    r.IsDefault,
		})
	}

	return devices, nil
}

// Find returns the listed device with the given id
func (c *Catalog) Find(ctx context.Context, id int) (Device, bool, error) {
	devices, err := c.List(ctx)
	if err != nil {
		return Device{}, false, err
	}
	for _, d := range devices {
		if d.ID == id {
			return d, true, nil
		}
	}
	return Device{}, false, nil
}

func (c *Catalog) excluded(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range c.exclude {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

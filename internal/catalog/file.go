package catalog

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type fileItem struct {
	Type    string       `toml:"type"`
	ID      int64        `toml:"id"`
	Title   string       `toml:"title"`
	Premium bool         `toml:"premium"`
	Sources []fileSource `toml:"source"`
}

type fileSource struct {
	URL      string `toml:"url"`
	Priority int    `toml:"priority"`
	Format   string `toml:"format"`
	Label    string `toml:"label"`
}

type fileUser struct {
	ID      string `toml:"id"`
	Premium bool   `toml:"premium"`
}

type fileCatalog struct {
	Items []fileItem `toml:"item"`
	Users []fileUser `toml:"user"`
}

// LoadFile reads a TOML catalog into an in-memory Catalog. Intended for
// standalone deployments where the external metadata system is a flat file
// maintained by hand.
func LoadFile(path string) (*Memory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var parsed fileCatalog
	if err := toml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	m := NewMemory()
	for i, item := range parsed.Items {
		contentType, err := ParseContentType(item.Type)
		if err != nil {
			return nil, fmt.Errorf("catalog item %d: %w", i, err)
		}
		if len(item.Sources) == 0 {
			return nil, fmt.Errorf("catalog item %d (%s/%d): no sources", i, item.Type, item.ID)
		}
		sources := make([]StreamSource, 0, len(item.Sources))
		for j, src := range item.Sources {
			format, err := ParseFormat(src.Format)
			if err != nil {
				return nil, fmt.Errorf("catalog item %d source %d: %w", i, j, err)
			}
			if src.URL == "" {
				return nil, fmt.Errorf("catalog item %d source %d: empty url", i, j)
			}
			sources = append(sources, StreamSource{
				URL:      src.URL,
				Priority: src.Priority,
				Format:   format,
				Label:    src.Label,
			})
		}
		m.PutItem(ContentRef{Type: contentType, ID: item.ID}, item.Premium, sources...)
	}
	for _, user := range parsed.Users {
		if user.ID == "" {
			continue
		}
		m.PutUser(user.ID, Entitlement{IsPremium: user.Premium})
	}
	return m, nil
}

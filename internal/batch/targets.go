package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dgnsrekt/replay_capture/internal/storage"
	"github.com/dgnsrekt/replay_capture/internal/types"
)

// item is one entry of the scraped listing. Unknown fields are ignored.
type item struct {
	Title     string          `json:"title"`
	ReplayURL string          `json:"replayUrl"`
	ID        json.RawMessage `json:"id"`
}

// LoadTargets reads a JSON array of listing items.
func LoadTargets(path string) ([]types.CaptureTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return ParseTargets(data)
}

// ParseTargets decodes listing items into capture targets. The identifier is
// the title, else the id, else the last path segment of the URL.
func ParseTargets(data []byte) ([]types.CaptureTarget, error) {
	var items []item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}
	out := make([]types.CaptureTarget, 0, len(items))
	for _, it := range items {
		title := strings.TrimSpace(it.Title)
		url := strings.TrimSpace(it.ReplayURL)
		id := title
		if id == "" {
			id = rawID(it.ID)
		}
		if id == "" && url != "" {
			id = storage.IdentifierFromURL(url)
		}
		out = append(out, types.CaptureTarget{Identifier: id, SourceURL: url, DisplayTitle: title})
	}
	return out, nil
}

// rawID accepts string or numeric ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

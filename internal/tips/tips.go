// Package tips holds the default wellness tip catalog shipped with the
// service. The catalog is embedded JSON and is copied into the database by
// `notifyctl seed-tips`; delivery always reads tips from the database.
package tips

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed default_tips.json
var defaultTipsJSON []byte

// Tip is a catalog entry before it has a database id.
type Tip struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Defaults parses the embedded catalog.
func Defaults() ([]Tip, error) {
	return Parse(defaultTipsJSON)
}

// Parse decodes and validates a JSON array of tips.
func Parse(data []byte) ([]Tip, error) {
	var list []Tip
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode tips: %w", err)
	}
	for i := range list {
		list[i].Content = strings.TrimSpace(list[i].Content)
		list[i].Category = strings.TrimSpace(list[i].Category)
		if list[i].Content == "" {
			return nil, fmt.Errorf("tip %d: content is empty", i)
		}
		if list[i].Category == "" {
			list[i].Category = "general"
		}
	}
	return list, nil
}

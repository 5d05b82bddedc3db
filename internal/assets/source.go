// Package assets reads the list of tracked asset ids from a YAML file.
package assets

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Key is the top-level YAML key holding the asset list.
const Key = "COINS"

// FileSource reads the asset list from disk on every call, so edits take
// effect on the next poll cycle without a restart.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Assets returns the configured asset ids in file order, without duplicates.
func (s *FileSource) Assets() ([]string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read asset file: %w", err)
	}
	return Parse(data)
}

// Parse decodes the asset list. COINS may be a comma-separated string or a
// YAML sequence.
func Parse(data []byte) ([]string, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse asset file: %w", err)
	}

	raw, ok := doc[Key]
	if !ok {
		return nil, fmt.Errorf("asset file has no %s key", Key)
	}

	var items []string
	switch typed := raw.(type) {
	case string:
		items = strings.Split(typed, ",")
	case []interface{}:
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entry %v is not a string", Key, item)
			}
			items = append(items, s)
		}
	case nil:
	default:
		return nil, fmt.Errorf("%s must be a string or a list, got %T", Key, raw)
	}

	out := cleanStrings(items)
	if len(out) == 0 {
		return nil, fmt.Errorf("%s is empty", Key)
	}
	return out, nil
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

package synset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads synsets from a .json (array or single object), .jsonl/.ndjson
// (one object per line) or .yaml/.yml file.
func Load(path string) ([]Synset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synsets: %w", err)
	}

	var records []map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		records, err = decodeJSONLines(data)
	case ".yaml", ".yml":
		records, err = decodeYAML(data)
	default:
		records, err = decodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	out := make([]Synset, 0, len(records))
	for _, r := range records {
		out = append(out, FromMap(r))
	}
	return out, nil
}

func decodeJSON(data []byte) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var records []map[string]any
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return []map[string]any{record}, nil
}

func decodeJSONLines(data []byte) ([]map[string]any, error) {
	var records []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal(text, &record); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}
	return records, sc.Err()
}

func decodeYAML(data []byte) ([]map[string]any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch t := doc.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []map[string]any{t}, nil
	case []any:
		records := make([]map[string]any, 0, len(t))
		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d is not a mapping", i)
			}
			records = append(records, m)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unexpected YAML document of type %T", doc)
	}
}

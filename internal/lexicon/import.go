package lexicon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

type importRecord struct {
	Metadata
	Relations map[string][]string `json:"relations,omitempty"`
}

// ParseFile reads lexical metadata from a JSON file holding either an array of
// records or an object keyed by synset id. Relations may be given per kind
// ("hypernyms": [...]) or grouped under "relations".
func ParseFile(path string) ([]Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("metadata file %s is not valid JSON", path)
	}

	var records []importRecord
	root := gjson.ParseBytes(data)
	switch {
	case root.IsArray():
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	case root.IsObject():
		var byID map[string]importRecord
		if err := json.Unmarshal(data, &byID); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		root.ForEach(func(key, _ gjson.Result) bool {
			r := byID[key.String()]
			if r.ID == "" {
				r.ID = key.String()
			}
			records = append(records, r)
			return true
		})
	default:
		return nil, fmt.Errorf("metadata file %s must hold an array or an object", path)
	}

	out := make([]Metadata, 0, len(records))
	for i, r := range records {
		if NormalizeID(r.ID) == "" {
			return nil, fmt.Errorf("metadata record %d has no id", i)
		}
		m := r.Metadata
		for name, ids := range r.Relations {
			kind, err := ParseRelationKind(name)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", r.ID, err)
			}
			m.SetRelated(kind, append(m.Related(kind), ids...))
		}
		out = append(out, m)
	}
	return out, nil
}

// ImportFile loads a metadata file into p and returns the number of entries
// written.
func ImportFile(ctx context.Context, p *StoreProvider, path string) (int, error) {
	records, err := ParseFile(path)
	if err != nil {
		return 0, err
	}
	for i, m := range records {
		if err := p.Put(ctx, m); err != nil {
			return i, fmt.Errorf("failed to import %s: %w", m.ID, err)
		}
	}
	return len(records), nil
}

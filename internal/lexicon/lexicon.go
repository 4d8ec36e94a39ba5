// Package lexicon supplies auxiliary lexical metadata (lexical category, topic
// domains and semantic relations) for synsets. Metadata only enriches prompts
// and curator summaries; a missing entry never blocks a translation.
package lexicon

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/valpere/synsetran/internal/synset"
)

// ErrNotFound is returned when no metadata is known for an id.
var ErrNotFound = errors.New("lexical metadata not found")

// RelationKind is a supported semantic relation between synsets.
type RelationKind int

const (
	Hypernym RelationKind = iota
	Hyponym
	SimilarTo
	Antonym
	PartHolonym
	PartMeronym
)

// RelationKinds lists every supported relation kind.
var RelationKinds = []RelationKind{Hypernym, Hyponym, SimilarTo, Antonym, PartHolonym, PartMeronym}

func (k RelationKind) String() string {
	switch k {
	case Hypernym:
		return "hypernym"
	case Hyponym:
		return "hyponym"
	case SimilarTo:
		return "similar_to"
	case Antonym:
		return "antonym"
	case PartHolonym:
		return "part_holonym"
	case PartMeronym:
		return "part_meronym"
	}
	return fmt.Sprintf("RelationKind(%d)", int(k))
}

// ParseRelationKind maps a relation name to its kind.
func ParseRelationKind(name string) (RelationKind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, k := range RelationKinds {
		if k.String() == n {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown relation kind %q", name)
}

// Metadata is what the lexicon knows about one synset.
type Metadata struct {
	ID              string   `json:"id"`
	LexicalCategory string   `json:"lexical_category,omitempty"`
	TopicDomains    []string `json:"topic_domains,omitempty"`
	Hypernyms       []string `json:"hypernyms,omitempty"`
	Hyponyms        []string `json:"hyponyms,omitempty"`
	SimilarTo       []string `json:"similar_to,omitempty"`
	Antonyms        []string `json:"antonyms,omitempty"`
	PartHolonyms    []string `json:"part_holonyms,omitempty"`
	PartMeronyms    []string `json:"part_meronyms,omitempty"`
}

// Related returns the ids linked to the synset by kind.
func (m Metadata) Related(kind RelationKind) []string {
	switch kind {
	case Hypernym:
		return m.Hypernyms
	case Hyponym:
		return m.Hyponyms
	case SimilarTo:
		return m.SimilarTo
	case Antonym:
		return m.Antonyms
	case PartHolonym:
		return m.PartHolonyms
	case PartMeronym:
		return m.PartMeronyms
	}
	return nil
}

// SetRelated replaces the ids linked by kind.
func (m *Metadata) SetRelated(kind RelationKind, ids []string) {
	switch kind {
	case Hypernym:
		m.Hypernyms = ids
	case Hyponym:
		m.Hyponyms = ids
	case SimilarTo:
		m.SimilarTo = ids
	case Antonym:
		m.Antonyms = ids
	case PartHolonym:
		m.PartHolonyms = ids
	case PartMeronym:
		m.PartMeronyms = ids
	}
}

// Empty reports whether m carries neither category nor domains.
func (m Metadata) Empty() bool {
	return m.LexicalCategory == "" && len(m.TopicDomains) == 0
}

// Provider looks up metadata by synset id.
type Provider interface {
	Lookup(ctx context.Context, id string) (Metadata, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, id string) (Metadata, error)

func (f ProviderFunc) Lookup(ctx context.Context, id string) (Metadata, error) {
	return f(ctx, id)
}

var (
	prefixedIDRe = regexp.MustCompile(`^[a-z]{3}\d{0,2}-(\d{1,8})-([nvarsb])$`)
	offsetIDRe   = regexp.MustCompile(`^(\d{1,8})-?([nvarsb])$`)
)

// NormalizeID maps the identifier spellings found in wordnet exports to one
// stable key: "ENG30-03574555-n", "3574555n" and "03574555-n" all become
// "03574555-n". Interlingual ids ("i12345") and anything else are trimmed and
// lower-cased.
func NormalizeID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	if m := prefixedIDRe.FindStringSubmatch(s); m != nil {
		return pad(m[1]) + "-" + synset.NormalizePOS(m[2])
	}
	if m := offsetIDRe.FindStringSubmatch(s); m != nil {
		return pad(m[1]) + "-" + synset.NormalizePOS(m[2])
	}
	return s
}

func pad(offset string) string {
	if len(offset) >= 8 {
		return offset
	}
	return strings.Repeat("0", 8-len(offset)) + offset
}

package lexicon

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/valpere/synsetran/internal/store"
)

// DefaultCacheSize bounds a CachedProvider built with size ≤ 0.
const DefaultCacheSize = 4096

// StoreProvider serves metadata from the sqlite store.
type StoreProvider struct {
	store *store.Store
}

func NewStoreProvider(s *store.Store) *StoreProvider {
	return &StoreProvider{store: s}
}

func (p *StoreProvider) Lookup(ctx context.Context, id string) (Metadata, error) {
	key := NormalizeID(id)
	e, err := p.store.GetLexicalEntry(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return Metadata{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	return fromEntry(*e), nil
}

// Put stores m under its normalized id.
func (p *StoreProvider) Put(ctx context.Context, m Metadata) error {
	if NormalizeID(m.ID) == "" {
		return errors.New("metadata id is empty")
	}
	return p.store.PutLexicalEntry(ctx, toEntry(m))
}

// Delete removes the metadata of id.
func (p *StoreProvider) Delete(ctx context.Context, id string) error {
	err := p.store.DeleteLexicalEntry(ctx, NormalizeID(id))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return err
}

// List returns every stored entry. Relations are not loaded.
func (p *StoreProvider) List(ctx context.Context) ([]Metadata, error) {
	entries, err := p.store.ListLexicalEntries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(entries))
	for _, e := range entries {
		out = append(out, fromEntry(e))
	}
	return out, nil
}

func toEntry(m Metadata) store.LexicalEntry {
	rel := make(map[string][]string)
	for _, k := range RelationKinds {
		ids := m.Related(k)
		if len(ids) == 0 {
			continue
		}
		norm := make([]string, 0, len(ids))
		for _, id := range ids {
			norm = append(norm, NormalizeID(id))
		}
		rel[k.String()] = norm
	}
	return store.LexicalEntry{
		ID:              NormalizeID(m.ID),
		LexicalCategory: m.LexicalCategory,
		TopicDomains:    m.TopicDomains,
		Relations:       rel,
	}
}

func fromEntry(e store.LexicalEntry) Metadata {
	m := Metadata{
		ID:              e.ID,
		LexicalCategory: e.LexicalCategory,
		TopicDomains:    e.TopicDomains,
	}
	for name, ids := range e.Relations {
		kind, err := ParseRelationKind(name)
		if err != nil {
			continue
		}
		m.SetRelated(kind, ids)
	}
	return m
}

type cached struct {
	meta  Metadata
	found bool
}

// CachedProvider memoizes lookups of another provider in a bounded LRU.
// Misses are cached too; other errors are not.
type CachedProvider struct {
	next   Provider
	cache  *lru.Cache[string, cached]
	logger *zap.Logger
}

func NewCachedProvider(next Provider, size int, logger *zap.Logger) (*CachedProvider, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := lru.New[string, cached](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &CachedProvider{next: next, cache: c, logger: logger}, nil
}

func (p *CachedProvider) Lookup(ctx context.Context, id string) (Metadata, error) {
	key := NormalizeID(id)
	if c, ok := p.cache.Get(key); ok {
		if !c.found {
			return Metadata{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return c.meta, nil
	}

	m, err := p.next.Lookup(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		p.cache.Add(key, cached{})
		return Metadata{}, err
	case err != nil:
		return Metadata{}, err
	}
	p.cache.Add(key, cached{meta: m, found: true})
	p.logger.Debug("cached lexical metadata", zap.String("id", key))
	return m, nil
}

// Evict drops one id from the cache.
func (p *CachedProvider) Evict(id string) {
	p.cache.Remove(NormalizeID(id))
}

// Purge empties the cache.
func (p *CachedProvider) Purge() {
	p.cache.Purge()
}

// Len returns the number of cached ids.
func (p *CachedProvider) Len() int {
	return p.cache.Len()
}

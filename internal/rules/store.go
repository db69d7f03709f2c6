package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/logger"
	"github.com/patrickmn/go-cache"
)

// Backend persists custom rule documents by key. GetRule returns nil data when nothing is stored.
type Backend interface {
	GetRule(ctx context.Context, key string) ([]byte, error)
	PutRule(ctx context.Context, key string, data []byte) error
	DeleteRule(ctx context.Context, key string) error
}

// RuleSet is a read-only snapshot of the three resolved rule documents.
type RuleSet struct {
	Accounting        *AccountingRulesDocument
	CoaValidation     *CoaDocument
	CoaAlternateNames *CoaDocument
	// Custom reports which documents came from a custom override.
	Custom map[RuleType]bool
}

// AlternateNames returns the CoA alternate-names tree.
func (rs *RuleSet) AlternateNames() *Node {
	if rs == nil {
		return nil
	}
	return rs.CoaAlternateNames.Tree()
}

// Document returns the resolved document for a rule type.
func (rs *RuleSet) Document(t RuleType) Document {
	switch t {
	case AccountingRules:
		return rs.Accounting
	case CoaValidation:
		return rs.CoaValidation
	case CoaAlternateNames:
		return rs.CoaAlternateNames
	}
	return nil
}

func (rs *RuleSet) set(t RuleType, doc Document) {
	switch t {
	case AccountingRules:
		rs.Accounting = doc.(*AccountingRulesDocument)
	case CoaValidation:
		rs.CoaValidation = doc.(*CoaDocument)
	case CoaAlternateNames:
		rs.CoaAlternateNames = doc.(*CoaDocument)
	}
}

// DefaultRuleSet resolves every document to its compiled-in default.
func DefaultRuleSet() (*RuleSet, error) {
	rs := &RuleSet{Custom: make(map[RuleType]bool)}
	for _, t := range RuleTypes {
		doc, err := Default(t)
		if err != nil {
			return nil, fmt.Errorf("DefaultRuleSet: %w", err)
		}
		rs.set(t, doc)
	}
	return rs, nil
}

const snapshotKey = "ruleset"

// Store resolves each rule document as the custom override when one is stored, else the default.
// Resolution replaces whole documents; custom and default content is never merged.
type Store struct {
	backend Backend
	cache   *cache.Cache

	// generation counts writes; a snapshot built across a write is not cached.
	mu         sync.Mutex
	generation uint64
}

// NewStore creates a rule store. Resolved snapshots are cached for ttl and dropped on every write.
func NewStore(backend Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{
		backend: backend,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// Resolve returns the current rule snapshot.
func (s *Store) Resolve(ctx context.Context) (*RuleSet, error) {
	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(*RuleSet), nil
	}

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	rs := &RuleSet{Custom: make(map[RuleType]bool)}
	for _, t := range RuleTypes {
		doc, err := s.GetCustom(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("Resolve: %w", err)
		}
		if doc == nil {
			doc, err = Default(t)
			if err != nil {
				return nil, fmt.Errorf("Resolve: %w", err)
			}
		} else {
			rs.Custom[t] = true
		}
		rs.set(t, doc)
	}

	s.mu.Lock()
	if s.generation == gen {
		s.cache.Set(snapshotKey, rs, cache.DefaultExpiration)
	}
	s.mu.Unlock()
	return rs, nil
}

// invalidate drops the cached snapshot and any snapshot still being built.
func (s *Store) invalidate() {
	s.mu.Lock()
	s.generation++
	s.cache.Flush()
	s.mu.Unlock()
}

// GetCustom returns the stored override for a rule type, or nil when there is none.
// An override that no longer decodes is deleted and nil is returned.
func (s *Store) GetCustom(ctx context.Context, t RuleType) (Document, error) {
	if _, ok := defaultPaths[t]; !ok {
		return nil, fmt.Errorf("GetCustom: %w: %q", ErrUnknownRuleType, t)
	}
	raw, err := s.backend.GetRule(ctx, string(t))
	if err != nil {
		return nil, fmt.Errorf("GetCustom: read %s: %w", t, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	doc, err := Decode(t, raw)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("rule_type", string(t)).Msg("Discarding corrupt custom rule document")
		if derr := s.backend.DeleteRule(ctx, string(t)); derr != nil {
			return nil, fmt.Errorf("GetCustom: delete corrupt %s: %w", t, derr)
		}
		s.invalidate()
		return nil, nil
	}
	return doc, nil
}

// SaveCustom decodes data (JSON or YAML) and stores it as the override for t.
func (s *Store) SaveCustom(ctx context.Context, t RuleType, data []byte) error {
	doc, err := Decode(t, data)
	if err != nil {
		return fmt.Errorf("SaveCustom: %w", err)
	}
	return s.SaveDocument(ctx, t, doc)
}

// SaveDocument stores an already decoded document as the override for t.
func (s *Store) SaveDocument(ctx context.Context, t RuleType, doc Document) error {
	if _, ok := defaultPaths[t]; !ok {
		return fmt.Errorf("SaveDocument: %w: %q", ErrUnknownRuleType, t)
	}
	if !typeMatches(t, doc) {
		return fmt.Errorf("SaveDocument: %w: %T is not a %s document", ErrInvalidDocument, doc, t)
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("SaveDocument: %w", err)
	}
	raw, err := EncodeJSON(doc)
	if err != nil {
		return fmt.Errorf("SaveDocument: %w", err)
	}
	if err := s.backend.PutRule(ctx, string(t), raw); err != nil {
		return fmt.Errorf("SaveDocument: write %s: %w", t, err)
	}
	s.invalidate()
	return nil
}

// Reset removes the override for t so the default applies again.
func (s *Store) Reset(ctx context.Context, t RuleType) error {
	if _, ok := defaultPaths[t]; !ok {
		return fmt.Errorf("Reset: %w: %q", ErrUnknownRuleType, t)
	}
	if err := s.backend.DeleteRule(ctx, string(t)); err != nil {
		return fmt.Errorf("Reset: delete %s: %w", t, err)
	}
	s.invalidate()
	return nil
}

// ResetAll removes every override.
func (s *Store) ResetAll(ctx context.Context) error {
	for _, t := range RuleTypes {
		if err := s.Reset(ctx, t); err != nil {
			return fmt.Errorf("ResetAll: %w", err)
		}
	}
	return nil
}

// MemoryBackend keeps rule documents in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) GetRule(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryBackend) PutRule(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(data))
	copy(v, data)
	m.data[key] = v
	return nil
}

func (m *MemoryBackend) DeleteRule(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

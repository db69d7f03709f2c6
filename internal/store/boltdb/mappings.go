package boltdb

import (
	"context"
	"sort"
	"strings"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

// SaveColumnMapping remembers the mapping last used for a book.
func (s *Store) SaveColumnMapping(ctx context.Context, clientID, bookID string, m domain.ColumnMapping) error {
	if m == nil {
		m = domain.ColumnMapping{}
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := encode(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMappings).Put(scopeKey(clientID, bookID), data)
	})
	return errors.Wrap(err, "SaveColumnMapping")
}

// GetColumnMapping returns the saved mapping for a book, or nil when there is none.
func (s *Store) GetColumnMapping(ctx context.Context, clientID, bookID string) (domain.ColumnMapping, error) {
	var m domain.ColumnMapping
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMappings).Get(scopeKey(clientID, bookID))
		if data == nil {
			return nil
		}
		return decode(data, &m)
	})
	if err != nil {
		return nil, errors.Wrap(err, "GetColumnMapping")
	}
	return m, nil
}

// SaveMappingTemplate creates or replaces a column-mapping template. Names are unique, ignoring case.
func (s *Store) SaveMappingTemplate(ctx context.Context, t domain.ColumnMappingTemplate) (domain.ColumnMappingTemplate, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return t, errors.New("SaveMappingTemplate: template name is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMappingTemplates)
		if err := each(b, func() interface{} { return new(domain.ColumnMappingTemplate) }, func(v interface{}) error {
			existing := v.(*domain.ColumnMappingTemplate)
			if existing.ID != t.ID && sameName(existing.Name, t.Name) {
				return errors.Wrapf(ErrDuplicate, "template %q", t.Name)
			}
			return nil
		}); err != nil {
			return err
		}
		return put(b, t.ID, t)
	})
	if err != nil {
		return t, errors.Wrap(err, "SaveMappingTemplate")
	}
	return t, nil
}

// GetMappingTemplate returns the template with id.
func (s *Store) GetMappingTemplate(ctx context.Context, id string) (domain.ColumnMappingTemplate, error) {
	var t domain.ColumnMappingTemplate
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketMappingTemplates), id, &t)
	})
	return t, errors.Wrap(err, "GetMappingTemplate")
}

// ListMappingTemplates returns templates, most used first.
func (s *Store) ListMappingTemplates(ctx context.Context) ([]domain.ColumnMappingTemplate, error) {
	var out []domain.ColumnMappingTemplate
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketMappingTemplates), func() interface{} { return new(domain.ColumnMappingTemplate) }, func(v interface{}) error {
			out = append(out, *v.(*domain.ColumnMappingTemplate))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "ListMappingTemplates")
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// UseMappingTemplate bumps the usage counter and last-used time and returns the updated template.
func (s *Store) UseMappingTemplate(ctx context.Context, id string) (domain.ColumnMappingTemplate, error) {
	var t domain.ColumnMappingTemplate
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMappingTemplates)
		if err := get(b, id, &t); err != nil {
			return err
		}
		now := s.now().UTC()
		t.UsageCount++
		t.LastUsed = &now
		return put(b, id, t)
	})
	return t, errors.Wrap(err, "UseMappingTemplate")
}

// DeleteMappingTemplate removes a column-mapping template.
func (s *Store) DeleteMappingTemplate(ctx context.Context, id string) error {
	return errors.Wrap(s.deleteKey(bucketMappingTemplates, id), "DeleteMappingTemplate")
}

// SaveConfigTemplate creates or replaces a client configuration template. Names are unique, ignoring case.
func (s *Store) SaveConfigTemplate(ctx context.Context, t domain.ClientConfigTemplate) (domain.ClientConfigTemplate, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return t, errors.New("SaveConfigTemplate: template name is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfigTemplates)
		if err := each(b, func() interface{} { return new(domain.ClientConfigTemplate) }, func(v interface{}) error {
			existing := v.(*domain.ClientConfigTemplate)
			if existing.ID != t.ID && sameName(existing.Name, t.Name) {
				return errors.Wrapf(ErrDuplicate, "template %q", t.Name)
			}
			return nil
		}); err != nil {
			return err
		}
		return put(b, t.ID, t)
	})
	if err != nil {
		return t, errors.Wrap(err, "SaveConfigTemplate")
	}
	return t, nil
}

// ListConfigTemplates returns templates, most used first.
func (s *Store) ListConfigTemplates(ctx context.Context) ([]domain.ClientConfigTemplate, error) {
	var out []domain.ClientConfigTemplate
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketConfigTemplates), func() interface{} { return new(domain.ClientConfigTemplate) }, func(v interface{}) error {
			out = append(out, *v.(*domain.ClientConfigTemplate))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "ListConfigTemplates")
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// UseConfigTemplate bumps the usage counter and last-used time and returns the updated template.
func (s *Store) UseConfigTemplate(ctx context.Context, id string) (domain.ClientConfigTemplate, error) {
	var t domain.ClientConfigTemplate
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfigTemplates)
		if err := get(b, id, &t); err != nil {
			return err
		}
		now := s.now().UTC()
		t.UsageCount++
		t.LastUsed = &now
		return put(b, id, t)
	})
	return t, errors.Wrap(err, "UseConfigTemplate")
}

// DeleteConfigTemplate removes a client configuration template.
func (s *Store) DeleteConfigTemplate(ctx context.Context, id string) error {
	return errors.Wrap(s.deleteKey(bucketConfigTemplates, id), "DeleteConfigTemplate")
}

func (s *Store) deleteKey(bucket []byte, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(id)) == nil {
			return errors.Wrapf(ErrNotFound, "key %q", id)
		}
		return b.Delete([]byte(id))
	})
}

// GetRule returns a stored rule document, or nil when none is stored.
func (s *Store) GetRule(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketRules).Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, errors.Wrap(err, "GetRule")
}

// PutRule stores a rule document.
func (s *Store) PutRule(ctx context.Context, key string, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRules).Put([]byte(key), data)
	})
	return errors.Wrap(err, "PutRule")
}

// DeleteRule removes a rule document. Deleting a missing key is not an error.
func (s *Store) DeleteRule(ctx context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRules).Delete([]byte(key))
	})
	return errors.Wrap(err, "DeleteRule")
}

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

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// CreateClient adds a client. Names are unique, ignoring case.
func (s *Store) CreateClient(ctx context.Context, name string) (domain.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Client{}, errors.New("client name is required")
	}
	c := domain.Client{ID: uuid.NewString(), Name: name}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClients)
		if err := each(b, func() interface{} { return new(domain.Client) }, func(v interface{}) error {
			if sameName(v.(*domain.Client).Name, name) {
				return errors.Wrapf(ErrDuplicate, "client %q", name)
			}
			return nil
		}); err != nil {
			return err
		}
		return put(b, c.ID, c)
	})
	if err != nil {
		return domain.Client{}, errors.Wrap(err, "CreateClient")
	}
	return c, nil
}

// GetClient returns the client with id.
func (s *Store) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var c domain.Client
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketClients), id, &c)
	})
	if err != nil {
		return domain.Client{}, errors.Wrap(err, "GetClient")
	}
	return c, nil
}

// FindClientByName looks a client up by name, ignoring case.
func (s *Store) FindClientByName(ctx context.Context, name string) (domain.Client, error) {
	clients, err := s.ListClients(ctx)
	if err != nil {
		return domain.Client{}, err
	}
	for _, c := range clients {
		if sameName(c.Name, name) {
			return c, nil
		}
	}
	return domain.Client{}, errors.Wrapf(ErrNotFound, "FindClientByName: client %q", name)
}

// ListClients returns every client sorted by name.
func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	var out []domain.Client
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketClients), func() interface{} { return new(domain.Client) }, func(v interface{}) error {
			out = append(out, *v.(*domain.Client))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "ListClients")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// DeleteClient removes a client together with its books, training data and saved mappings.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		clients := tx.Bucket(bucketClients)
		if clients.Get([]byte(id)) == nil {
			return errors.Wrapf(ErrNotFound, "client %q", id)
		}
		books := tx.Bucket(bucketBooks)
		var bookIDs []string
		if err := each(books, func() interface{} { return new(domain.Book) }, func(v interface{}) error {
			if b := v.(*domain.Book); b.ClientID == id {
				bookIDs = append(bookIDs, b.ID)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, bookID := range bookIDs {
			if err := deleteBookData(tx, id, bookID); err != nil {
				return err
			}
		}
		return clients.Delete([]byte(id))
	})
	return errors.Wrap(err, "DeleteClient")
}

// CreateBook adds a book to an existing client. Book names are unique per client, ignoring case.
func (s *Store) CreateBook(ctx context.Context, clientID, name string) (domain.Book, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Book{}, errors.New("CreateBook: book name is required")
	}
	book := domain.Book{ID: uuid.NewString(), Name: name, ClientID: clientID}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketClients).Get([]byte(clientID)) == nil {
			return errors.Wrapf(ErrNotFound, "client %q", clientID)
		}
		b := tx.Bucket(bucketBooks)
		if err := each(b, func() interface{} { return new(domain.Book) }, func(v interface{}) error {
			existing := v.(*domain.Book)
			if existing.ClientID == clientID && sameName(existing.Name, name) {
				return errors.Wrapf(ErrDuplicate, "book %q", name)
			}
			return nil
		}); err != nil {
			return err
		}
		return put(b, book.ID, book)
	})
	if err != nil {
		return domain.Book{}, errors.Wrap(err, "CreateBook")
	}
	return book, nil
}

// GetBook returns the book with id.
func (s *Store) GetBook(ctx context.Context, id string) (domain.Book, error) {
	var b domain.Book
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketBooks), id, &b)
	})
	if err != nil {
		return domain.Book{}, errors.Wrap(err, "GetBook")
	}
	return b, nil
}

// FindBookByName looks a client's book up by name, ignoring case.
func (s *Store) FindBookByName(ctx context.Context, clientID, name string) (domain.Book, error) {
	books, err := s.BooksByClient(ctx, clientID)
	if err != nil {
		return domain.Book{}, err
	}
	for _, b := range books {
		if sameName(b.Name, name) {
			return b, nil
		}
	}
	return domain.Book{}, errors.Wrapf(ErrNotFound, "FindBookByName: book %q", name)
}

// BooksByClient returns the client's books sorted by name, then ID.
func (s *Store) BooksByClient(ctx context.Context, clientID string) ([]domain.Book, error) {
	var out []domain.Book
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketBooks), func() interface{} { return new(domain.Book) }, func(v interface{}) error {
			if b := v.(*domain.Book); b.ClientID == clientID {
				out = append(out, *b)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "BooksByClient")
	}
	sortBooks(out)
	return out, nil
}

// ListBooks returns every book grouped by client.
func (s *Store) ListBooks(ctx context.Context) ([]domain.Book, error) {
	var out []domain.Book
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketBooks), func() interface{} { return new(domain.Book) }, func(v interface{}) error {
			out = append(out, *v.(*domain.Book))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "ListBooks")
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func sortBooks(books []domain.Book) {
	sort.SliceStable(books, func(i, j int) bool {
		a, b := strings.ToLower(books[i].Name), strings.ToLower(books[j].Name)
		if a != b {
			return a < b
		}
		return books[i].ID < books[j].ID
	})
}

// DeleteBook removes a book with its training data and saved mapping.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		var book domain.Book
		if err := get(tx.Bucket(bucketBooks), id, &book); err != nil {
			return err
		}
		return deleteBookData(tx, book.ClientID, book.ID)
	})
	return errors.Wrap(err, "DeleteBook")
}

func deleteBookData(tx *bolt.Tx, clientID, bookID string) error {
	scope := scopeKey(clientID, bookID)
	training := tx.Bucket(bucketTraining)
	if training.Bucket(scope) != nil {
		if err := training.DeleteBucket(scope); err != nil {
			return errors.Wrapf(err, "Unable to delete training data of book %s", bookID)
		}
	}
	if err := tx.Bucket(bucketMappings).Delete(scope); err != nil {
		return err
	}
	return tx.Bucket(bucketBooks).Delete([]byte(bookID))
}

// CreateIndustry adds an industry. Names are unique, ignoring case.
func (s *Store) CreateIndustry(ctx context.Context, name string) (domain.Industry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Industry{}, errors.New("CreateIndustry: industry name is required")
	}
	ind := domain.Industry{ID: uuid.NewString(), Name: name}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndustries)
		if err := each(b, func() interface{} { return new(domain.Industry) }, func(v interface{}) error {
			if sameName(v.(*domain.Industry).Name, name) {
				return errors.Wrapf(ErrDuplicate, "industry %q", name)
			}
			return nil
		}); err != nil {
			return err
		}
		return put(b, ind.ID, ind)
	})
	if err != nil {
		return domain.Industry{}, errors.Wrap(err, "CreateIndustry")
	}
	return ind, nil
}

// GetIndustry returns the industry with id.
func (s *Store) GetIndustry(ctx context.Context, id string) (domain.Industry, error) {
	var ind domain.Industry
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketIndustries), id, &ind)
	})
	if err != nil {
		return domain.Industry{}, errors.Wrap(err, "GetIndustry")
	}
	return ind, nil
}

// FindIndustryByName looks an industry up by name, ignoring case.
func (s *Store) FindIndustryByName(ctx context.Context, name string) (domain.Industry, error) {
	industries, err := s.ListIndustries(ctx)
	if err != nil {
		return domain.Industry{}, err
	}
	for _, ind := range industries {
		if sameName(ind.Name, name) {
			return ind, nil
		}
	}
	return domain.Industry{}, errors.Wrapf(ErrNotFound, "FindIndustryByName: industry %q", name)
}

// ListIndustries returns every industry sorted by name.
func (s *Store) ListIndustries(ctx context.Context) ([]domain.Industry, error) {
	var out []domain.Industry
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketIndustries), func() interface{} { return new(domain.Industry) }, func(v interface{}) error {
			out = append(out, *v.(*domain.Industry))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "ListIndustries")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// DeleteIndustry removes an industry.
func (s *Store) DeleteIndustry(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndustries)
		if b.Get([]byte(id)) == nil {
			return errors.Wrapf(ErrNotFound, "industry %q", id)
		}
		return b.Delete([]byte(id))
	})
	return errors.Wrap(err, "DeleteIndustry")
}

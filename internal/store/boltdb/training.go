package boltdb

import (
	"context"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

var (
	subRows = []byte("rows")
	subIDs  = []byte("ids")
)

// AddTrainingTransactions stores labeled history for a book, keeping insertion order.
// Rows without an ID get one; a row whose ID is already stored replaces it in place.
// It returns the number of new rows.
func (s *Store) AddTrainingTransactions(ctx context.Context, clientID, bookID string, txs []domain.MappedTrainingTransaction) (int, error) {
	added := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		var book domain.Book
		if err := get(tx.Bucket(bucketBooks), bookID, &book); err != nil {
			return err
		}
		if book.ClientID != clientID {
			return errors.Wrapf(ErrNotFound, "book %q of client %q", bookID, clientID)
		}

		scope, err := tx.Bucket(bucketTraining).CreateBucketIfNotExists(scopeKey(clientID, bookID))
		if err != nil {
			return errors.Wrap(err, "Unable to create training bucket")
		}
		rows, err := scope.CreateBucketIfNotExists(subRows)
		if err != nil {
			return err
		}
		ids, err := scope.CreateBucketIfNotExists(subIDs)
		if err != nil {
			return err
		}

		for _, t := range txs {
			if t.ID == "" {
				t.ID = uuid.NewString()
			}
			t.ClientID, t.BookID = clientID, bookID

			key := ids.Get([]byte(t.ID))
			if key == nil {
				n, err := rows.NextSequence()
				if err != nil {
					return err
				}
				key = seqKey(n)
				if err := ids.Put([]byte(t.ID), key); err != nil {
					return err
				}
				added++
			}
			data, err := encode(t)
			if err != nil {
				return err
			}
			if err := rows.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "AddTrainingTransactions")
	}
	return added, nil
}

// TrainingTransactions returns the labeled history of a book in insertion order.
func (s *Store) TrainingTransactions(ctx context.Context, clientID, bookID string) ([]domain.MappedTrainingTransaction, error) {
	out := []domain.MappedTrainingTransaction{}
	err := s.db.View(func(tx *bolt.Tx) error {
		scope := tx.Bucket(bucketTraining).Bucket(scopeKey(clientID, bookID))
		if scope == nil {
			return nil
		}
		rows := scope.Bucket(subRows)
		if rows == nil {
			return nil
		}
		return each(rows, func() interface{} { return new(domain.MappedTrainingTransaction) }, func(v interface{}) error {
			out = append(out, *v.(*domain.MappedTrainingTransaction))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "TrainingTransactions")
	}
	return out, nil
}

// AllTrainingTransactions returns the history of every book.
func (s *Store) AllTrainingTransactions(ctx context.Context) ([]domain.MappedTrainingTransaction, error) {
	books, err := s.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.MappedTrainingTransaction
	for _, b := range books {
		txs, err := s.TrainingTransactions(ctx, b.ClientID, b.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}
	return out, nil
}

// CountTrainingTransactions returns the number of stored rows for a book.
func (s *Store) CountTrainingTransactions(ctx context.Context, clientID, bookID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		scope := tx.Bucket(bucketTraining).Bucket(scopeKey(clientID, bookID))
		if scope == nil || scope.Bucket(subIDs) == nil {
			return nil
		}
		c := scope.Bucket(subIDs).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		return nil
	})
	return count, errors.Wrap(err, "CountTrainingTransactions")
}

// ClearTrainingTransactions drops the labeled history of a book.
func (s *Store) ClearTrainingTransactions(ctx context.Context, clientID, bookID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		training := tx.Bucket(bucketTraining)
		if training.Bucket(scopeKey(clientID, bookID)) == nil {
			return nil
		}
		return training.DeleteBucket(scopeKey(clientID, bookID))
	})
	return errors.Wrap(err, "ClearTrainingTransactions")
}

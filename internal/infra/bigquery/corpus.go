package bigquery

import (
	"context"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

// BookLister lists the books of a client. The entity store provides it.
type BookLister interface {
	BooksByClient(ctx context.Context, clientID string) ([]domain.Book, error)
}

// TrainingSource reads the corpus of one (client, book).
type TrainingSource interface {
	TrainingTransactions(ctx context.Context, clientID, bookID string) ([]domain.MappedTrainingTransaction, error)
}

// Corpus serves categorization history from the warehouse while books come from the entity store.
type Corpus struct {
	books    BookLister
	training TrainingSource
}

// NewCorpus combines an entity store with a training source.
func NewCorpus(books BookLister, training TrainingSource) *Corpus {
	return &Corpus{books: books, training: training}
}

// TrainingTransactions implements categorize.Corpus.
func (c *Corpus) TrainingTransactions(ctx context.Context, clientID, bookID string) ([]domain.MappedTrainingTransaction, error) {
	return c.training.TrainingTransactions(ctx, clientID, bookID)
}

// BooksByClient implements categorize.Corpus.
func (c *Corpus) BooksByClient(ctx context.Context, clientID string) ([]domain.Book, error) {
	return c.books.BooksByClient(ctx, clientID)
}

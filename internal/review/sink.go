// Package review pushes flagged transactions to a Notion database for human review
// and reads reviewer decisions back.
package review

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
)

// BatchSize is the number of transactions pushed between progress logs.
const BatchSize = 100

// NotionService defines the Notion operations the review queue needs.
// This interface enables mocking of Notion in tests.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// Decision is a reviewer's corrected category for one transaction.
type Decision struct {
	PageID        string `json:"pageId"`
	TransactionID string `json:"transactionId"`
	Category      string `json:"category"`
}

// NotionSink is a review queue backed by a Notion database.
type NotionSink struct {
	notion     NotionService
	databaseID string
	dryRun     bool
}

// NewNotionSink creates a sink writing to databaseID. With dryRun set nothing is written.
func NewNotionSink(notion NotionService, databaseID string, dryRun bool) *NotionSink {
	return &NotionSink{notion: notion, databaseID: databaseID, dryRun: dryRun}
}

// PushForReview creates one review page per transaction not already in the database and
// returns how many were created. Failures of single pages are logged and skipped.
func (s *NotionSink) PushForReview(ctx context.Context, client domain.Client, book domain.Book, txs []domain.Transaction) (int, error) {
	log := logger.FromContext(ctx)

	pages, err := s.queryAllPages(ctx)
	if err != nil {
		return 0, fmt.Errorf("PushForReview: %w", err)
	}
	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		if id := textProperty(page, PropTransactionID); id != "" {
			existing[id] = true
		}
	}

	var created, skipped, failed int
	var firstErr error
	for i := 0; i < len(txs); i += BatchSize {
		end := i + BatchSize
		if end > len(txs) {
			end = len(txs)
		}
		log.Debug().Int("batch_start", i).Int("batch_end", end).Msg("Pushing review batch")

		for _, tx := range txs[i:end] {
			if existing[tx.ID] {
				skipped++
				continue
			}
			if s.dryRun {
				log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create review page")
				created++
				continue
			}
			page, err := s.notion.CreatePage(ctx, s.databaseID, TransactionProperties(client, book, tx))
			if err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create review page")
				failed++
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			existing[tx.ID] = true
			created++
			log.Debug().Str("transaction_id", tx.ID).Str("page_id", string(page.ID)).Msg("Created review page")
		}
	}

	log.Info().
		Int("created", created).
		Int("skipped", skipped).
		Int("failed", failed).
		Int("total", len(txs)).
		Msg("Review push completed")

	if created == 0 && failed > 0 {
		return 0, fmt.Errorf("PushForReview: every page failed: %w", firstErr)
	}
	return created, nil
}

// Decisions returns pages a reviewer marked Reviewed with a corrected category.
func (s *NotionSink) Decisions(ctx context.Context) ([]Decision, error) {
	pages, err := s.queryAllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("Decisions: %w", err)
	}
	out := []Decision{}
	for _, page := range pages {
		if selectProperty(page, PropStatus) != StatusReviewed {
			continue
		}
		category := selectProperty(page, PropCorrectedCategory)
		if category == "" {
			category = textProperty(page, PropCorrectedCategory)
		}
		txID := textProperty(page, PropTransactionID)
		if category == "" || txID == "" {
			continue
		}
		out = append(out, Decision{PageID: string(page.ID), TransactionID: txID, Category: category})
	}
	return out, nil
}

// MarkApplied moves a reviewed page to the Applied status.
func (s *NotionSink) MarkApplied(ctx context.Context, pageID string) error {
	if s.dryRun {
		return nil
	}
	props := notionapi.Properties{
		PropStatus: notionapi.SelectProperty{Select: notionapi.Option{Name: StatusApplied}},
	}
	if _, err := s.notion.UpdatePage(ctx, pageID, props); err != nil {
		return fmt.Errorf("MarkApplied: %w", err)
	}
	return nil
}

func (s *NotionSink) queryAllPages(ctx context.Context) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}
		resp, err := s.notion.QueryDatabase(ctx, s.databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}

package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

type mockNotion struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

func (m *mockNotion) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	return m.CreatePageFunc(ctx, databaseID, properties)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	return m.UpdatePageFunc(ctx, pageID, properties)
}

func (m *mockNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return m.QueryDatabaseFunc(ctx, databaseID, req)
}

func reviewPage(id, txID, status, corrected string) notionapi.Page {
	props := notionapi.Properties{
		PropTransactionID: &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: txID}}},
		PropStatus:        &notionapi.SelectProperty{Select: notionapi.Option{Name: status}},
	}
	if corrected != "" {
		props[PropCorrectedCategory] = &notionapi.SelectProperty{Select: notionapi.Option{Name: corrected}}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

// pagedQuery serves pages two per response.
func pagedQuery(pages []notionapi.Page, calls *int) func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		*calls++
		start := 0
		if req.StartCursor != "" {
			start = 2
		}
		end := start + 2
		if end > len(pages) {
			end = len(pages)
		}
		resp := &notionapi.DatabaseQueryResponse{Results: pages[start:end]}
		if end < len(pages) {
			resp.HasMore = true
			resp.NextCursor = notionapi.Cursor("next")
		}
		return resp, nil
	}
}

func TestPushForReview(t *testing.T) {
	client := domain.Client{ID: "c1", Name: "Acme, Inc."}
	book := domain.Book{ID: "b1", Name: "Operating", ClientID: "c1"}
	txs := []domain.Transaction{
		{ID: "t1", Description: "Zzz thing", Date: "2024-01-16", Amount: -20, SpecificCategory: "Uncategorized Expense", BroadCategory: domain.CategoryExpenses, IsFlagged: true},
		{ID: "t2", Description: "Unknown wire", Amount: 500, BroadCategory: domain.CategoryUnknown, IsFlagged: true, SuggestedSpecificCategory: "Sales Revenue", SuggestedBroadCategory: domain.CategoryIncome},
		{ID: "t3", Description: "Broken", IsFlagged: true},
	}

	var queries int
	existing := []notionapi.Page{
		reviewPage("p0", "t0", StatusNeedsReview, ""),
		reviewPage("p1", "x", StatusApplied, ""),
		reviewPage("p2", "t1", StatusNeedsReview, ""),
	}
	var created []notionapi.Properties
	notion := &mockNotion{
		QueryDatabaseFunc: pagedQuery(existing, &queries),
		CreatePageFunc: func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
			if databaseID != "db" {
				t.Errorf("databaseID = %q", databaseID)
			}
			title := props[PropDescription].(notionapi.TitleProperty)
			if title.Title[0].Text.Content == "Broken" {
				return nil, errors.New("validation_error")
			}
			created = append(created, props)
			return &notionapi.Page{ID: "new"}, nil
		},
	}

	n, err := NewNotionSink(notion, "db", false).PushForReview(context.Background(), client, book, txs)
	if err != nil {
		t.Fatalf("PushForReview failed: %v", err)
	}
	if n != 1 || len(created) != 1 {
		t.Fatalf("created %d pages, want 1 (t1 exists, t3 fails)", n)
	}
	if queries != 2 {
		t.Errorf("Expected 2 paged queries, got %d", queries)
	}

	props := created[0]
	if got := props[PropClient].(notionapi.SelectProperty).Select.Name; got != "Acme  Inc." {
		t.Errorf("client option = %q", got)
	}
	if got := props[PropSuggestion].(notionapi.RichTextProperty).RichText[0].Text.Content; got != "Sales Revenue (Income)" {
		t.Errorf("suggestion = %q", got)
	}
	if got := props[PropCategory].(notionapi.SelectProperty).Select.Name; got != "-" {
		t.Errorf("empty category option = %q", got)
	}
	if _, ok := props[PropDate]; ok {
		t.Error("A transaction without a date should not get a Date property")
	}
	if props[PropStatus].(notionapi.SelectProperty).Select.Name != StatusNeedsReview {
		t.Error("Expected new pages to need review")
	}
}

func TestPushForReview_AllFail(t *testing.T) {
	var queries int
	notion := &mockNotion{
		QueryDatabaseFunc: pagedQuery(nil, &queries),
		CreatePageFunc: func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("unauthorized")
		},
	}
	_, err := NewNotionSink(notion, "db", false).PushForReview(context.Background(), domain.Client{}, domain.Book{}, []domain.Transaction{{ID: "t1"}})
	if err == nil {
		t.Error("Expected an error when no page could be created")
	}

	// Dry run never writes.
	n, err := NewNotionSink(notion, "db", true).PushForReview(context.Background(), domain.Client{}, domain.Book{}, []domain.Transaction{{ID: "t1"}, {ID: "t2"}})
	if err != nil || n != 2 {
		t.Errorf("dry run = %d, %v", n, err)
	}
}

func TestTransactionProperties_Date(t *testing.T) {
	props := TransactionProperties(domain.Client{Name: "Acme"}, domain.Book{Name: "Ops"}, domain.Transaction{ID: "t1", Date: "01/15/2024", Currency: "EUR", Notes: "Rule matched"})
	date, ok := props[PropDate].(notionapi.DateProperty)
	if !ok {
		t.Fatal("Expected a Date property")
	}
	if got := time.Time(*date.Date.Start).Format("2006-01-02"); got != "2024-01-15" {
		t.Errorf("date = %s", got)
	}
	if props[PropCurrency].(notionapi.SelectProperty).Select.Name != "EUR" {
		t.Error("currency not mapped")
	}
	if _, ok := props[PropNotes]; !ok {
		t.Error("notes not mapped")
	}
}

func TestDecisionsAndMarkApplied(t *testing.T) {
	var queries int
	pages := []notionapi.Page{
		reviewPage("p1", "t1", StatusReviewed, "Office Supplies"),
		reviewPage("p2", "t2", StatusNeedsReview, "Rent Expense"),
		reviewPage("p3", "t3", StatusReviewed, ""),
	}
	var updated string
	notion := &mockNotion{
		QueryDatabaseFunc: pagedQuery(pages, &queries),
		UpdatePageFunc: func(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
			updated = pageID + ":" + props[PropStatus].(notionapi.SelectProperty).Select.Name
			return &notionapi.Page{}, nil
		},
	}
	sink := NewNotionSink(notion, "db", false)

	decisions, err := sink.Decisions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 || decisions[0] != (Decision{PageID: "p1", TransactionID: "t1", Category: "Office Supplies"}) {
		t.Errorf("decisions = %+v", decisions)
	}

	if err := sink.MarkApplied(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if updated != "p1:Applied" {
		t.Errorf("updated = %q", updated)
	}
}

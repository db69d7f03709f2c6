package categorize

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/dvloznov/ledger-categorizer/internal/ai"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

type mockRules struct {
	calls int
}

func (m *mockRules) Resolve(ctx context.Context) (*rules.RuleSet, error) {
	m.calls++
	return rules.DefaultRuleSet()
}

type mockCorpus struct {
	TrainingTransactionsFunc func(ctx context.Context, clientID, bookID string) ([]domain.MappedTrainingTransaction, error)
	BooksByClientFunc        func(ctx context.Context, clientID string) ([]domain.Book, error)
	reads                    int
}

func (m *mockCorpus) TrainingTransactions(ctx context.Context, clientID, bookID string) ([]domain.MappedTrainingTransaction, error) {
	m.reads++
	if m.TrainingTransactionsFunc == nil {
		return nil, nil
	}
	return m.TrainingTransactionsFunc(ctx, clientID, bookID)
}

func (m *mockCorpus) BooksByClient(ctx context.Context, clientID string) ([]domain.Book, error) {
	if m.BooksByClientFunc == nil {
		return nil, nil
	}
	return m.BooksByClientFunc(ctx, clientID)
}

type mockAI struct {
	CategorizeFunc func(ctx context.Context, description, industry string) (*ai.Guess, error)
	calls          int
}

func (m *mockAI) Categorize(ctx context.Context, description, industry string) (*ai.Guess, error) {
	m.calls++
	return m.CategorizeFunc(ctx, description, industry)
}

func (m *mockAI) Ready() bool { return true }

var (
	testClient = domain.Client{ID: "c1", Name: "Acme Dental"}
	testBook   = domain.Book{ID: "b1", Name: "Operating", ClientID: "c1"}
)

func officeDepotRow() domain.RawTransactionRecord {
	return domain.RawTransactionRecord{Date: "2024-01-15", Description: "Office Depot Purchase", Amount: "-45.67"}
}

func TestCategorizeBatch_OfficeDepotScenario(t *testing.T) {
	engine := NewEngine(&mockRules{}, &mockCorpus{}, nil, nil, Options{})

	txs, err := engine.CategorizeBatch(context.Background(), Request{
		Records: []domain.RawTransactionRecord{officeDepotRow()},
		Client:  testClient,
		Book:    testBook,
	}, nil)
	if err != nil {
		t.Fatalf("CategorizeBatch failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(txs))
	}
	tx := txs[0]
	if tx.SpecificCategory != "Office Supplies" || tx.BroadCategory != domain.CategoryExpenses {
		t.Errorf("category = %q/%q", tx.SpecificCategory, tx.BroadCategory)
	}
	if tx.ConfidenceScore != 0.8 || tx.PredictionSource != domain.SourceGlobalRule {
		t.Errorf("confidence/source = %v/%q", tx.ConfidenceScore, tx.PredictionSource)
	}
	if tx.Amount != -45.67 || tx.Currency != "USD" || tx.ID == "" || tx.IsFlagged {
		t.Errorf("unexpected transaction fields %+v", tx)
	}
}

func TestCategorizeBatch_BookHistoryWinsOverRules(t *testing.T) {
	corpus := &mockCorpus{
		TrainingTransactionsFunc: func(ctx context.Context, clientID, bookID string) ([]domain.MappedTrainingTransaction, error) {
			if bookID != "b1" {
				t.Errorf("unexpected book %q", bookID)
			}
			// Three of four words shared: score 0.75.
			return []domain.MappedTrainingTransaction{
				{Description: "Office Depot Purchase", Category: "Stationery Expense", TransactionType: "Purchase", VendorCustomerName: "Office Depot"},
			}, nil
		},
	}
	engine := NewEngine(&mockRules{}, corpus, nil, nil, Options{})

	row := officeDepotRow()
	row.Description = "Office Depot Purchase Order"
	txs, err := engine.CategorizeBatch(context.Background(), Request{Records: []domain.RawTransactionRecord{row}, Client: testClient, Book: testBook}, nil)
	if err != nil {
		t.Fatalf("CategorizeBatch failed: %v", err)
	}
	tx := txs[0]
	if tx.PredictionSource != domain.SourceBookHistory {
		t.Fatalf("source = %q, want Book History", tx.PredictionSource)
	}
	if tx.SpecificCategory != "Stationery Expense" || tx.BroadCategory != domain.CategoryExpenses {
		t.Errorf("category = %q/%q", tx.SpecificCategory, tx.BroadCategory)
	}
	if math.Abs(tx.ConfidenceScore-0.95) > 1e-6 {
		t.Errorf("confidence = %v, want 0.95", tx.ConfidenceScore)
	}
	if tx.AITransactionType != "Purchase" || tx.AIVendorCustomerName != "Office Depot" {
		t.Errorf("expected match metadata to be carried, got %+v", tx)
	}
}

func TestCategorizeRecord_ClientHistoryFirstAcceptingBook(t *testing.T) {
	corpus := &mockCorpus{
		BooksByClientFunc: func(ctx context.Context, clientID string) ([]domain.Book, error) {
			return []domain.Book{testBook, {ID: "b2", Name: "Payroll"}, {ID: "b3", Name: "Savings"}, {ID: "b4", Name: "Travel"}}, nil
		},
		TrainingTransactionsFunc: func(ctx context.Context, clientID, bookID string) ([]domain.MappedTrainingTransaction, error) {
			switch bookID {
			case "b2":
				return []domain.MappedTrainingTransaction{{Description: "Biweekly payroll run", Category: "Payroll Expense"}}, nil
			case "b3":
				return []domain.MappedTrainingTransaction{{Description: "Quarterly widget order", Category: "Inventory"}}, nil
			case "b4":
				return []domain.MappedTrainingTransaction{{Description: "Quarterly widget order", Category: "Rent"}}, nil
			}
			return nil, nil
		},
	}
	engine := NewEngine(&mockRules{}, corpus, nil, nil, Options{})

	snap, err := engine.Snapshot(context.Background(), testClient, testBook)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.OtherBooks) != 3 {
		t.Fatalf("Expected 3 other books, got %d", len(snap.OtherBooks))
	}

	res := engine.CategorizeRecord(context.Background(), snap, domain.RawTransactionRecord{Description: "Quarterly widget order"}, nil, false)
	if res.PredictionSource != domain.SourceClientHistory || res.SpecificCategory != "Inventory" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCategorizeRecord_IndustryRule(t *testing.T) {
	engine := NewEngine(&mockRules{}, nil, nil, nil, Options{})
	snap, err := engine.Snapshot(context.Background(), testClient, testBook)
	if err != nil {
		t.Fatal(err)
	}
	res := engine.CategorizeRecord(context.Background(), snap, domain.RawTransactionRecord{Description: "Autoclave for clinic"}, &domain.Industry{Name: "Healthcare"}, false)
	if res.PredictionSource != domain.SourceIndustryRule || res.Confidence != 0.8 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCategorizeRecord_EmptyDescription(t *testing.T) {
	fallback := &mockAI{CategorizeFunc: func(ctx context.Context, d, i string) (*ai.Guess, error) {
		return &ai.Guess{Category: "Rent", Confidence: 0.9}, nil
	}}
	engine := NewEngine(&mockRules{}, nil, nil, fallback, Options{})
	snap, err := engine.Snapshot(context.Background(), testClient, testBook)
	if err != nil {
		t.Fatal(err)
	}

	res := engine.CategorizeRecord(context.Background(), snap, domain.RawTransactionRecord{Description: "  "}, nil, true)
	want := domain.CategorizationResult{SpecificCategory: "Unknown", BroadCategory: domain.CategoryUnknown, PredictionSource: domain.SourceUnknown}
	if res != want {
		t.Errorf("CategorizeRecord = %+v, want %+v", res, want)
	}
	if fallback.calls != 0 {
		t.Error("Expected no AI call for an empty description")
	}
}

func TestCategorizeBatch_AIFailureNeverFailsBatch(t *testing.T) {
	fallback := &mockAI{CategorizeFunc: func(ctx context.Context, d, i string) (*ai.Guess, error) {
		return nil, errors.New("upstream timeout")
	}}
	engine := NewEngine(&mockRules{}, &mockCorpus{}, nil, fallback, Options{})

	records := []domain.RawTransactionRecord{
		officeDepotRow(),
		{Date: "2024-01-16", Description: "Zzz thing", Amount: "-20"},
		{Date: "2024-01-17", Description: "Cash deposit", Amount: "300"},
	}
	txs, err := engine.CategorizeBatch(context.Background(), Request{Records: records, Client: testClient, Book: testBook, UseAI: true}, nil)
	if err != nil {
		t.Fatalf("CategorizeBatch failed: %v", err)
	}
	if len(txs) != len(records) {
		t.Fatalf("Expected %d transactions, got %d", len(records), len(txs))
	}
	for _, tx := range txs {
		switch tx.PredictionSource {
		case domain.SourceGlobalRule, domain.SourceIndustryRule, domain.SourceUnknown:
		default:
			t.Errorf("unexpected source %q for %q", tx.PredictionSource, tx.Description)
		}
	}
	if txs[1].SpecificCategory != "Uncategorized" || txs[1].ConfidenceScore != 0.1 || !txs[1].IsFlagged {
		t.Errorf("unexpected recovery result %+v", txs[1])
	}
	if fallback.calls != 1 {
		t.Errorf("AI calls = %d, want 1", fallback.calls)
	}
}

func TestCategorizeBatch_AIEmptyGuessUsesRules(t *testing.T) {
	fallback := &mockAI{CategorizeFunc: func(ctx context.Context, d, i string) (*ai.Guess, error) {
		return nil, nil
	}}
	engine := NewEngine(&mockRules{}, &mockCorpus{}, nil, fallback, Options{})

	records := []domain.RawTransactionRecord{{Date: "2024-01-16", Description: "Zzz thing", Amount: "-20"}}
	txs, err := engine.CategorizeBatch(context.Background(), Request{Records: records, Client: testClient, Book: testBook, UseAI: true}, nil)
	if err != nil {
		t.Fatalf("CategorizeBatch failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(txs))
	}
	if txs[0].PredictionSource != domain.SourceUnknown || txs[0].SpecificCategory != "Uncategorized" || !txs[0].IsFlagged {
		t.Errorf("unexpected result for an empty model answer: %+v", txs[0])
	}
	if fallback.calls != 1 {
		t.Errorf("AI calls = %d, want 1", fallback.calls)
	}
}

func TestCategorizeBatch_AIResult(t *testing.T) {
	fallback := &mockAI{CategorizeFunc: func(ctx context.Context, d, industry string) (*ai.Guess, error) {
		if industry != "Retail" {
			t.Errorf("industry = %q", industry)
		}
		return &ai.Guess{Category: "Rent", Confidence: 0.7, SuggestedCategory: "office supply"}, nil
	}}
	engine := NewEngine(&mockRules{}, &mockCorpus{}, nil, fallback, Options{ReviewThreshold: 0.75})

	txs, err := engine.CategorizeBatch(context.Background(), Request{
		Records:  []domain.RawTransactionRecord{{Date: "2024-01-16", Description: "Zzz thing", Amount: "-20", Currency: "EUR"}},
		Client:   testClient,
		Book:     testBook,
		Industry: &domain.Industry{Name: "Retail"},
		UseAI:    true,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	tx := txs[0]
	if tx.PredictionSource != domain.SourceAIModel || tx.SpecificCategory != "Rent Expense" || tx.SuggestedSpecificCategory != "Office Supplies" {
		t.Errorf("unexpected transaction %+v", tx)
	}
	if tx.Currency != "EUR" || !tx.IsFlagged {
		t.Errorf("Expected EUR and flagged below the review threshold, got %+v", tx)
	}

	// Without opting in, the low rule-based answer stands.
	txs, err = engine.CategorizeBatch(context.Background(), Request{
		Records: []domain.RawTransactionRecord{{Date: "2024-01-16", Description: "Zzz thing", Amount: "-20"}},
		Client:  testClient,
		Book:    testBook,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if txs[0].SpecificCategory != "Uncategorized Expense" || txs[0].ConfidenceScore != 0.3 || fallback.calls != 1 {
		t.Errorf("unexpected result without AI: %+v", txs[0])
	}
}

func TestCategorizeBatch_SkipsAndProgress(t *testing.T) {
	rulesSrc := &mockRules{}
	corpus := &mockCorpus{}
	engine := NewEngine(rulesSrc, corpus, nil, nil, Options{})

	records := []domain.RawTransactionRecord{
		officeDepotRow(),
		{Date: "2024-01-16", Description: "Lunch", Amount: "abc"},
		{Description: "No date", Amount: "5"},
		{Date: "2024-01-18", Description: "Split", DebitAmount: "10", CreditAmount: "2.5"},
		{Date: "2024-01-19", Description: "Nothing"},
		{Date: "2024-01-20", Description: "Bad debit", DebitAmount: "x"},
	}
	type progress struct{ percent, processed, total int }
	var got []progress
	txs, err := engine.CategorizeBatch(context.Background(), Request{Records: records, Client: testClient, Book: testBook},
		func(percent, processed, total int) error {
			got = append(got, progress{percent, processed, total})
			return nil
		})
	if err != nil {
		t.Fatalf("CategorizeBatch failed: %v", err)
	}

	if len(txs) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txs))
	}
	if txs[1].Amount != -7.5 {
		t.Errorf("split amount = %v, want -7.5", txs[1].Amount)
	}
	want := []progress{{17, 1, 6}, {33, 2, 6}, {50, 3, 6}, {67, 4, 6}, {83, 5, 6}, {100, 6, 6}}
	if len(got) != len(want) {
		t.Fatalf("progress calls = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if rulesSrc.calls != 1 || corpus.reads != 1 {
		t.Errorf("Expected one snapshot per batch, got %d rule resolves and %d corpus reads", rulesSrc.calls, corpus.reads)
	}
}

func TestCategorizeBatch_Cancel(t *testing.T) {
	engine := NewEngine(&mockRules{}, &mockCorpus{}, nil, nil, Options{})
	records := []domain.RawTransactionRecord{officeDepotRow(), officeDepotRow(), officeDepotRow()}

	txs, err := engine.CategorizeBatch(context.Background(), Request{Records: records, Client: testClient, Book: testBook},
		func(percent, processed, total int) error {
			if processed == 2 {
				return errors.New("user canceled")
			}
			return nil
		})
	if !errors.Is(err, ErrBatchCanceled) {
		t.Fatalf("Expected ErrBatchCanceled, got %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("Expected the 2 finished transactions, got %d", len(txs))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.CategorizeBatch(ctx, Request{Records: records, Client: testClient, Book: testBook}, nil); !errors.Is(err, ErrBatchCanceled) {
		t.Errorf("Expected ErrBatchCanceled for a canceled context, got %v", err)
	}
}

func TestCategorizeBatch_Empty(t *testing.T) {
	rulesSrc := &mockRules{}
	engine := NewEngine(rulesSrc, &mockCorpus{}, nil, nil, Options{})
	txs, err := engine.CategorizeBatch(context.Background(), Request{Client: testClient, Book: testBook}, nil)
	if err != nil || len(txs) != 0 || rulesSrc.calls != 0 {
		t.Errorf("CategorizeBatch(empty) = %v, %v, %d resolves", txs, err, rulesSrc.calls)
	}
}

package boltdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/categorize"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

var (
	_ rules.Backend     = (*Store)(nil)
	_ categorize.Corpus = (*Store)(nil)
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEntities(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	acme, err := s.CreateClient(ctx, "Acme Dental")
	if err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	if _, err := s.CreateClient(ctx, " acme dental "); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if _, err := s.CreateClient(ctx, ""); err == nil {
		t.Error("Expected an error for an empty name")
	}

	other, err := s.CreateClient(ctx, "Beta Labs")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Savings", "operating", "Payroll"} {
		if _, err := s.CreateBook(ctx, acme.ID, name); err != nil {
			t.Fatalf("CreateBook(%s) failed: %v", name, err)
		}
	}
	if _, err := s.CreateBook(ctx, acme.ID, "OPERATING"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for a book name, got %v", err)
	}
	if _, err := s.CreateBook(ctx, other.ID, "Operating"); err != nil {
		t.Errorf("Expected the same book name under another client to succeed, got %v", err)
	}
	if _, err := s.CreateBook(ctx, "missing", "Operating"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unknown client, got %v", err)
	}

	books, err := s.BooksByClient(ctx, acme.ID)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, b := range books {
		names = append(names, b.Name)
	}
	if len(names) != 3 || names[0] != "operating" || names[1] != "Payroll" || names[2] != "Savings" {
		t.Errorf("BooksByClient order = %v", names)
	}

	found, err := s.FindClientByName(ctx, "BETA LABS")
	if err != nil || found.ID != other.ID {
		t.Errorf("FindClientByName = %+v, %v", found, err)
	}
	if _, err := s.FindBookByName(ctx, acme.ID, "Travel"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, err := s.CreateIndustry(ctx, "Healthcare"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateIndustry(ctx, "healthcare"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for an industry, got %v", err)
	}
	ind, err := s.FindIndustryByName(ctx, "HEALTHCARE")
	if err != nil || ind.Name != "Healthcare" {
		t.Errorf("FindIndustryByName = %+v, %v", ind, err)
	}

	if err := s.DeleteClient(ctx, acme.ID); err != nil {
		t.Fatalf("DeleteClient failed: %v", err)
	}
	if books, _ := s.BooksByClient(ctx, acme.ID); len(books) != 0 {
		t.Errorf("Expected books to be deleted with their client, got %v", books)
	}
	if _, err := s.GetClient(ctx, acme.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestTrainingTransactions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	client, _ := s.CreateClient(ctx, "Acme")
	book, _ := s.CreateBook(ctx, client.ID, "Operating")

	added, err := s.AddTrainingTransactions(ctx, client.ID, book.ID, []domain.MappedTrainingTransaction{
		{ID: "t1", Description: "Office Depot", Category: "Office Supplies"},
		{Description: "Landlord", Category: "Rent"},
		{ID: "t3", Description: "Uber", Category: "Travel"},
	})
	if err != nil {
		t.Fatalf("AddTrainingTransactions failed: %v", err)
	}
	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}

	// Replacing t1 keeps its position.
	added, err = s.AddTrainingTransactions(ctx, client.ID, book.ID, []domain.MappedTrainingTransaction{
		{ID: "t1", Description: "Office Depot", Category: "Stationery Expense"},
		{ID: "t4", Description: "Lyft", Category: "Travel"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}

	got, err := s.TrainingTransactions(ctx, client.ID, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("Expected 4 rows, got %d", len(got))
	}
	if got[0].ID != "t1" || got[0].Category != "Stationery Expense" || got[3].ID != "t4" {
		t.Errorf("unexpected order or content: %+v", got)
	}
	if got[1].ID == "" || got[1].ClientID != client.ID || got[1].BookID != book.ID {
		t.Errorf("Expected generated ID and scope, got %+v", got[1])
	}
	if n, _ := s.CountTrainingTransactions(ctx, client.ID, book.ID); n != 4 {
		t.Errorf("CountTrainingTransactions = %d, want 4", n)
	}

	if _, err := s.AddTrainingTransactions(ctx, "other", book.ID, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a mismatched client, got %v", err)
	}

	empty, err := s.TrainingTransactions(ctx, client.ID, "missing")
	if err != nil || len(empty) != 0 {
		t.Errorf("TrainingTransactions(missing) = %v, %v", empty, err)
	}

	if err := s.ClearTrainingTransactions(ctx, client.ID, book.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.TrainingTransactions(ctx, client.ID, book.ID); len(got) != 0 {
		t.Errorf("Expected no rows after clear, got %d", len(got))
	}
}

func TestMappingsAndTemplates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	m, err := s.GetColumnMapping(ctx, "c", "b")
	if err != nil || m != nil {
		t.Errorf("GetColumnMapping(empty) = %v, %v", m, err)
	}
	want := domain.ColumnMapping{domain.FieldDate: "Posted", domain.FieldDescription: "Memo", domain.FieldAmount: "Amt"}
	if err := s.SaveColumnMapping(ctx, "c", "b", want); err != nil {
		t.Fatal(err)
	}
	m, err = s.GetColumnMapping(ctx, "c", "b")
	if err != nil || len(m) != 3 || m[domain.FieldDescription] != "Memo" {
		t.Errorf("GetColumnMapping = %v, %v", m, err)
	}

	bank, err := s.SaveMappingTemplate(ctx, domain.ColumnMappingTemplate{Name: "Bank CSV", Mapping: want})
	if err != nil {
		t.Fatal(err)
	}
	if bank.ID == "" || !bank.CreatedAt.Equal(fixed) {
		t.Errorf("unexpected template %+v", bank)
	}
	if _, err := s.SaveMappingTemplate(ctx, domain.ColumnMappingTemplate{Name: "bank csv"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	card, err := s.SaveMappingTemplate(ctx, domain.ColumnMappingTemplate{Name: "Card Export"})
	if err != nil {
		t.Fatal(err)
	}

	used, err := s.UseMappingTemplate(ctx, card.ID)
	if err != nil {
		t.Fatal(err)
	}
	if used.UsageCount != 1 || used.LastUsed == nil || !used.LastUsed.Equal(fixed) {
		t.Errorf("unexpected usage %+v", used)
	}
	list, err := s.ListMappingTemplates(ctx)
	if err != nil || len(list) != 2 || list[0].ID != card.ID {
		t.Errorf("ListMappingTemplates = %+v, %v", list, err)
	}
	got, err := s.GetMappingTemplate(ctx, bank.ID)
	if err != nil || got.Mapping[domain.FieldAmount] != "Amt" {
		t.Errorf("GetMappingTemplate = %+v, %v", got, err)
	}

	if err := s.DeleteMappingTemplate(ctx, bank.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteMappingTemplate(ctx, bank.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	cfg, err := s.SaveConfigTemplate(ctx, domain.ClientConfigTemplate{Name: "Acme monthly", ClientID: "c", BookID: "b", UseAI: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.UseConfigTemplate(ctx, cfg.ID); err != nil {
		t.Fatal(err)
	}
	cfgs, err := s.ListConfigTemplates(ctx)
	if err != nil || len(cfgs) != 1 || cfgs[0].UsageCount != 1 || !cfgs[0].UseAI {
		t.Errorf("ListConfigTemplates = %+v, %v", cfgs, err)
	}
}

func TestRuleBackend(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	store := rules.NewStore(s, time.Minute)

	if err := store.SaveCustom(ctx, rules.CoaAlternateNames, []byte("{not valid")); err == nil {
		t.Fatal("Expected a decode error")
	}

	rs, err := store.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Custom[rules.CoaAlternateNames] {
		t.Error("Expected the default document")
	}

	if err := s.PutRule(ctx, string(rules.CoaAlternateNames), []byte("{not valid")); err != nil {
		t.Fatal(err)
	}
	doc, err := store.GetCustom(ctx, rules.CoaAlternateNames)
	if err != nil || doc != nil {
		t.Errorf("GetCustom(corrupt) = %v, %v", doc, err)
	}
	if raw, _ := s.GetRule(ctx, string(rules.CoaAlternateNames)); raw != nil {
		t.Error("Expected the corrupt document to be discarded")
	}
	if err := s.DeleteRule(ctx, "missing"); err != nil {
		t.Errorf("DeleteRule(missing) = %v", err)
	}
}

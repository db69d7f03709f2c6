package exchange

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
	"github.com/dvloznov/ledger-categorizer/internal/store/boltdb"
)

func openStore(t *testing.T, name string) (*boltdb.Store, *rules.Store) {
	t.Helper()
	s, err := boltdb.Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, rules.NewStore(s, time.Minute)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()

	src, srcRules := openStore(t, "src.db")
	acme, _ := src.CreateClient(ctx, "Acme Dental")
	beta, _ := src.CreateClient(ctx, "Beta Labs")
	ops, _ := src.CreateBook(ctx, acme.ID, "Operating")
	lab, _ := src.CreateBook(ctx, beta.ID, "Lab")
	if _, err := src.CreateIndustry(ctx, "Healthcare"); err != nil {
		t.Fatal(err)
	}
	if _, err := src.AddTrainingTransactions(ctx, acme.ID, ops.ID, []domain.MappedTrainingTransaction{
		{ID: "a1", Description: "Office Depot", Category: "Office Supplies"},
		{ID: "a2", Description: "Landlord LLC", Category: "Rent"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := src.AddTrainingTransactions(ctx, beta.ID, lab.ID, []domain.MappedTrainingTransaction{
		{ID: "b1", Description: "Reagents", Category: "Lab Supplies"},
	}); err != nil {
		t.Fatal(err)
	}

	exported, err := Export(ctx, src, srcRules)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(exported.TrainingTransactions) != 3 || exported.CustomRules == nil || len(exported.CustomRules.CoaAlternateNames) == 0 {
		t.Fatalf("unexpected export %+v", exported)
	}

	var buf bytes.Buffer
	if err := Write(&buf, exported); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"coaValidationRules"`) {
		t.Error("Expected the rule documents under their export keys")
	}
	decoded, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}

	dst, dstRules := openStore(t, "dst.db")
	existing, _ := dst.CreateClient(ctx, "ACME DENTAL")
	existingBook, _ := dst.CreateBook(ctx, existing.ID, "operating")
	if _, err := dst.CreateIndustry(ctx, "healthcare"); err != nil {
		t.Fatal(err)
	}

	res, err := Import(ctx, dst, dstRules, decoded)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if res.ClientsCreated != 1 || res.BooksCreated != 1 || res.IndustriesCreated != 0 {
		t.Errorf("unexpected counts %+v", res)
	}
	if res.TransactionsImported != 3 || res.RulesImported != 3 {
		t.Errorf("unexpected import counts %+v", res)
	}

	merged, err := dst.TrainingTransactions(ctx, existing.ID, existingBook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != 2 || merged[0].ClientID != existing.ID || merged[0].BookID != existingBook.ID {
		t.Errorf("Expected rows remapped onto the existing book, got %+v", merged)
	}

	rs, err := dstRules.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !rs.Custom[rules.CoaAlternateNames] {
		t.Error("Expected imported rules to become custom overrides")
	}

	// Importing again changes nothing but replaces rows in place.
	again, err := Import(ctx, dst, dstRules, decoded)
	if err != nil {
		t.Fatal(err)
	}
	if again.ClientsCreated != 0 || again.BooksCreated != 0 || again.TransactionsImported != 0 {
		t.Errorf("Expected an idempotent re-import, got %+v", again)
	}
}

func TestImport_UnmappedRows(t *testing.T) {
	ctx := context.Background()
	dst, _ := openStore(t, "dst.db")

	c := &Container{
		Clients: []domain.Client{{ID: "c1", Name: "Acme"}},
		Books:   []domain.Book{{ID: "b1", Name: "Operating", ClientID: "c1"}, {ID: "b2", Name: "Orphan", ClientID: "gone"}},
		TrainingTransactions: []domain.MappedTrainingTransaction{
			{ID: "t1", Description: "Office Depot", Category: "Office Supplies", ClientID: "c1", BookID: "b1"},
			{ID: "t2", Description: "A very long description of an orphan", Category: "Rent", ClientID: "c1", BookID: "b2"},
		},
		CustomRules: &CustomRules{CoaValidationRules: []byte(`{"broken": `)},
	}

	res, err := Import(ctx, dst, nil, c)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.TransactionsImported != 1 {
		t.Errorf("TransactionsImported = %d, want 1", res.TransactionsImported)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("Expected 2 errors, got %v", res.Errors)
	}
	if !strings.Contains(res.Errors[0], `Book "Orphan" skipped`) || !strings.Contains(res.Errors[1], "Desc: A very long descript...") {
		t.Errorf("unexpected errors %v", res.Errors)
	}
}

package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

type mockCategorizer struct {
	CategorizeFunc func(ctx context.Context, description, industry string) (*Guess, error)
	ReadyFunc      func() bool
}

func (m *mockCategorizer) Categorize(ctx context.Context, description, industry string) (*Guess, error) {
	return m.CategorizeFunc(ctx, description, industry)
}

func (m *mockCategorizer) Ready() bool {
	if m.ReadyFunc == nil {
		return true
	}
	return m.ReadyFunc()
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Guess
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"category": "Software Subscription", "confidence": 0.95, "vendorCustomerName": "Netflix"}`,
			want: Guess{Category: "Software Subscription", Confidence: 0.95, VendorCustomerName: "Netflix"},
		},
		{
			name: "fenced with chatter",
			raw:  "```json\nHere you go: {\"category\": \"Rent\", \"confidence\": 1.4, \"suggestedCategory\": null}\n```",
			want: Guess{Category: "Rent", Confidence: 1},
		},
		{name: "missing confidence", raw: `{"category": "Rent"}`, wantErr: true},
		{name: "confidence as string", raw: `{"category": "Rent", "confidence": "high"}`, wantErr: true},
		{name: "not json", raw: "I cannot help with that", wantErr: true},
		{name: "empty", raw: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("Expected ErrMalformedResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResponse failed: %v", err)
			}
			if *got != tt.want {
				t.Errorf("ParseResponse = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	rs, err := rules.DefaultRuleSet()
	if err != nil {
		t.Fatal(err)
	}

	low := Resolve(&Guess{Category: "office supply", Confidence: 0.6, SuggestedCategory: "Rent"}, rs)
	if low.SpecificCategory != "Office Supplies" || low.BroadCategory != domain.CategoryExpenses {
		t.Errorf("unexpected primary %+v", low)
	}
	if low.SuggestedSpecificCategory != "Rent Expense" || low.PredictionSource != domain.SourceAIModel {
		t.Errorf("unexpected suggestion %+v", low)
	}

	high := Resolve(&Guess{Category: "Rent", Confidence: 0.9, SuggestedCategory: "Office Supplies"}, rs)
	if high.SuggestedSpecificCategory != "" || high.SuggestedBroadCategory != "" {
		t.Errorf("Expected the suggestion to be dropped at 0.9, got %+v", high)
	}
}

func TestBuildInstruction(t *testing.T) {
	got := BuildInstruction("Healthcare", []string{"Dental Supplies", "Rent Expense"})
	for _, want := range []string{"'Healthcare' industry", "Dental Supplies, Rent Expense", "Assets, Liabilities, Equity, Income, Expenses."} {
		if !strings.Contains(got, want) {
			t.Errorf("instruction missing %q", want)
		}
	}
	if strings.Contains(BuildInstruction("", nil), "industry.") {
		t.Error("Expected no industry line without an industry")
	}
	if got := BuildPrompt(`Say "hi"`); got != `Transaction Description: "Say \"hi\""` {
		t.Errorf("BuildPrompt = %s", got)
	}
}

func TestGeminiCategorizer(t *testing.T) {
	var prompt string
	g := &GeminiCategorizer{model: DefaultGeminiModel}
	g.generate = func(ctx context.Context, p string) (string, error) {
		prompt = p
		return `{"category": "Travel", "confidence": 0.7}`, nil
	}

	guess, err := g.Categorize(context.Background(), "Uber ride", "Technology")
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}
	if guess.Category != "Travel" || !strings.Contains(prompt, `"Uber ride"`) {
		t.Errorf("unexpected guess %+v for prompt %q", guess, prompt)
	}

	g.generate = func(ctx context.Context, p string) (string, error) {
		return "", errors.New("quota exceeded")
	}
	if _, err := g.Categorize(context.Background(), "Uber ride", ""); err == nil {
		t.Error("Expected transport error to be returned")
	}

	var notReady *GeminiCategorizer
	if _, err := notReady.Categorize(context.Background(), "x", ""); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestAnthropicCategorizer_NotReadyWithoutKey(t *testing.T) {
	a := NewAnthropicCategorizer("", "", nil)
	if a.Ready() {
		t.Error("Expected not ready without an API key")
	}
	if _, err := a.Categorize(context.Background(), "x", ""); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}

	a.send = func(ctx context.Context, system, prompt string) (string, error) {
		if !strings.Contains(system, "Chart of Account") {
			t.Errorf("system prompt missing instructions: %q", system)
		}
		return "```\n{\"category\": \"Bank Fees\", \"confidence\": 0.8}\n```", nil
	}
	guess, err := a.Categorize(context.Background(), "Monthly service fee", "")
	if err != nil || guess.Category != "Bank Fees" {
		t.Errorf("Categorize = %+v, %v", guess, err)
	}
}

func TestBayesCategorizer(t *testing.T) {
	corpus := []domain.MappedTrainingTransaction{
		{Description: "Uber trip downtown", Category: "Travel", TransactionType: "Expense"},
		{Description: "Lyft ride airport", Category: "Travel", TransactionType: "Expense"},
		{Description: "Staples printer paper", Category: "Office Supplies", TransactionType: "Expense"},
		{Description: "Office Depot toner paper", Category: "Office Supplies", TransactionType: "Expense"},
	}
	b := NewBayesCategorizer(corpus)
	if !b.Ready() {
		t.Fatal("Expected a trained classifier")
	}

	guess, err := b.Categorize(context.Background(), "paper and toner from staples", "")
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}
	if guess.Category != "Office Supplies" || guess.SuggestedCategory != "Travel" || guess.TransactionType != "Expense" {
		t.Errorf("unexpected guess %+v", guess)
	}

	if NewBayesCategorizer(corpus[:2]).Ready() {
		t.Error("Expected a single-class corpus to leave the classifier not ready")
	}
}

func TestRateLimited(t *testing.T) {
	calls := 0
	inner := &mockCategorizer{
		CategorizeFunc: func(ctx context.Context, description, industry string) (*Guess, error) {
			calls++
			if _, ok := ctx.Deadline(); !ok {
				t.Error("Expected a deadline on the call")
			}
			return &Guess{Category: "Rent", Confidence: 0.5}, nil
		},
	}
	r := NewRateLimited(inner, 0, 1, time.Second)
	for i := 0; i < 3; i++ {
		if _, err := r.Categorize(context.Background(), "rent", ""); err != nil {
			t.Fatalf("Categorize failed: %v", err)
		}
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	// One token per hour: the second call cannot get a token before its deadline.
	slow := NewRateLimited(inner, time.Hour, 1, 10*time.Millisecond)
	if _, err := slow.Categorize(context.Background(), "rent", ""); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := slow.Categorize(context.Background(), "rent", ""); err == nil {
		t.Error("Expected the limiter to give up at the deadline")
	}

	notReady := NewRateLimited(&mockCategorizer{ReadyFunc: func() bool { return false }}, 0, 1, 0)
	if _, err := notReady.Categorize(context.Background(), "rent", ""); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

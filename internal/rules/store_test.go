package rules

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const customCoa = `{
  "chart_of_accounts_validation": {
    "version": "9.0",
    "categories": {
      "expenses": {"primary_name": "Expenses", "custom": {"primary_name": "Studio Rent"}}
    }
  }
}`

func TestStore_ResolveDefaults(t *testing.T) {
	store := NewStore(NewMemoryBackend(), time.Minute)
	rs, err := store.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rs.Accounting == nil || rs.CoaValidation == nil || rs.CoaAlternateNames == nil {
		t.Fatal("Expected every document to resolve")
	}
	for _, rt := range RuleTypes {
		if rs.Custom[rt] {
			t.Errorf("Expected %s to be the default", rt)
		}
	}
	if got := rs.Accounting.AccountingRules.FixedAssets.Rules.ThresholdValidation.DefaultThreshold; got != 2500 {
		t.Errorf("default threshold = %v, want 2500", got)
	}
	if rs.AlternateNames().Child("assets") == nil {
		t.Error("Expected assets node in default alternate names tree")
	}
}

func TestStore_CustomReplacesWholeDocument(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), time.Minute)

	if err := store.SaveCustom(ctx, CoaAlternateNames, []byte(customCoa)); err != nil {
		t.Fatalf("SaveCustom failed: %v", err)
	}
	rs, err := store.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !rs.Custom[CoaAlternateNames] {
		t.Error("Expected alternate names to be custom")
	}
	if rs.Custom[CoaValidation] || rs.Custom[AccountingRules] {
		t.Error("Expected the other documents to stay default")
	}
	tree := rs.AlternateNames()
	if tree.Child("assets") != nil {
		t.Error("Expected no default content merged into the custom tree")
	}
	if tree.Child("expenses").Child("custom").PrimaryName != "Studio Rent" {
		t.Error("Expected custom node to be present")
	}
}

func TestStore_SaveCustomRejectsInvalid(t *testing.T) {
	store := NewStore(NewMemoryBackend(), time.Minute)
	tests := []struct {
		name string
		rt   RuleType
		data string
	}{
		{"malformed json", CoaValidation, `{"chart_of_accounts_validation": `},
		{"missing root", AccountingRules, `metadata: {version: "1"}`},
		{"missing tree", CoaAlternateNames, `chart_of_accounts_validation: {version: "1"}`},
		{"unknown type", RuleType("payees"), `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.SaveCustom(context.Background(), tt.rt, []byte(tt.data)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestStore_CorruptOverrideIsDiscarded(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	if err := backend.PutRule(ctx, string(AccountingRules), []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	store := NewStore(backend, time.Minute)

	rs, err := store.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rs.Custom[AccountingRules] {
		t.Error("Expected corrupt override to fall back to default")
	}
	raw, _ := backend.GetRule(ctx, string(AccountingRules))
	if raw != nil {
		t.Errorf("Expected corrupt override to be deleted, still have %q", raw)
	}
}

func TestStore_ResetAndCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), time.Hour)

	first, err := store.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again, _ := store.Resolve(ctx); again != first {
		t.Error("Expected cached snapshot on second resolve")
	}

	if err := store.SaveCustom(ctx, CoaValidation, []byte(customCoa)); err != nil {
		t.Fatal(err)
	}
	afterSave, _ := store.Resolve(ctx)
	if !afterSave.Custom[CoaValidation] {
		t.Error("Expected save to invalidate the cached snapshot")
	}

	if err := store.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll failed: %v", err)
	}
	afterReset, _ := store.Resolve(ctx)
	if afterReset.Custom[CoaValidation] {
		t.Error("Expected reset to restore the default")
	}
}

// writeDuringRead saves an override while the store is reading the same key.
type writeDuringRead struct {
	*MemoryBackend
	onRead func(key string)
}

func (b *writeDuringRead) GetRule(ctx context.Context, key string) ([]byte, error) {
	data, err := b.MemoryBackend.GetRule(ctx, key)
	if b.onRead != nil {
		b.onRead(key)
	}
	return data, err
}

func TestStore_WriteDuringResolveIsNotLost(t *testing.T) {
	ctx := context.Background()
	backend := &writeDuringRead{MemoryBackend: NewMemoryBackend()}
	store := NewStore(backend, time.Minute)

	fired := false
	backend.onRead = func(key string) {
		if key != string(CoaValidation) || fired {
			return
		}
		fired = true
		if err := store.SaveCustom(ctx, CoaValidation, []byte(customCoa)); err != nil {
			t.Errorf("SaveCustom failed: %v", err)
		}
	}

	rs, err := store.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !fired {
		t.Fatal("Expected the override to be saved during Resolve")
	}
	if rs.Custom[CoaValidation] {
		t.Error("Expected the in-flight snapshot to predate the override")
	}

	rs, err = store.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !rs.Custom[CoaValidation] {
		t.Error("Expected the next Resolve to see the override, got a stale cached snapshot")
	}

	// Without intervening writes the snapshot is cached.
	again, err := store.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if again != rs {
		t.Error("Expected the second snapshot to be served from cache")
	}
}

func TestParseRuleType(t *testing.T) {
	if rt, err := ParseRuleType("CoaValidation"); err != nil || rt != CoaValidation {
		t.Errorf("ParseRuleType = %v, %v", rt, err)
	}
	if _, err := ParseRuleType("vendors"); !errors.Is(err, ErrUnknownRuleType) {
		t.Errorf("Expected ErrUnknownRuleType, got %v", err)
	}
}

func TestNode_JSONRoundTripKeepsOrder(t *testing.T) {
	doc, err := Decode(CoaAlternateNames, []byte(`{"chart_of_accounts_validation":{"version":"1","categories":{
		"zeta":{"primary_name":"Zeta Income","notes":"keep me"},
		"alpha":{"primary_name":"Alpha Expense","alternative_names":["A1","A2"],"items":[{"primary_name":"Listed Asset"}]}
	}}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	out, err := EncodeJSON(doc)
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}
	s := string(out)
	if strings.Index(s, "zeta") > strings.Index(s, "alpha") {
		t.Errorf("Expected document order to be kept, got %s", s)
	}
	for _, want := range []string{`"notes":"keep me"`, `"alternative_names":["A1","A2"]`, `"items":[{"primary_name":"Listed Asset"}]`} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected %s in %s", want, s)
		}
	}

	again, err := Decode(CoaAlternateNames, out)
	if err != nil {
		t.Fatalf("Decode of encoded output failed: %v", err)
	}
	var names []string
	again.(*CoaDocument).Tree().Walk(func(n *Node, depth int) bool {
		if n.PrimaryName != "" {
			names = append(names, n.PrimaryName)
		}
		return true
	})
	want := []string{"Zeta Income", "Alpha Expense", "Listed Asset"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("walk order = %v, want %v", names, want)
	}
}

func TestNode_YAMLRoundTrip(t *testing.T) {
	raw, err := DefaultRaw(CoaAlternateNames)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := Decode(CoaAlternateNames, raw)
	if err != nil {
		t.Fatal(err)
	}
	out, err := EncodeYAML(doc)
	if err != nil {
		t.Fatalf("EncodeYAML failed: %v", err)
	}
	again, err := Decode(CoaAlternateNames, out)
	if err != nil {
		t.Fatalf("Decode of YAML output failed: %v", err)
	}
	office := again.(*CoaDocument).Tree().Child("expenses").Child("subcategories").
		Child("operating_expenses").Child("accounts").Child("office_supplies")
	if office == nil || !office.Matches("ofFICE supply") {
		t.Error("Expected office supplies node with alternative names after round trip")
	}
}

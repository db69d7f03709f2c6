package categorize

import (
	"context"

	"github.com/dvloznov/ledger-categorizer/internal/ai"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
	"github.com/dvloznov/ledger-categorizer/internal/matcher"
	"github.com/dvloznov/ledger-categorizer/internal/rulebased"
)

// MinRuleBasedConfidence is the confidence a rule-based result must exceed to end the cascade.
const MinRuleBasedConfidence = 0.3

// RecordState is what every stage sees for one record.
type RecordState struct {
	Raw      domain.RawTransactionRecord
	Snapshot *Snapshot
	Industry *domain.Industry
	UseAI    bool
}

// Stage is one step of the categorization cascade. A nil result passes the record on.
type Stage interface {
	Name() string
	Execute(ctx context.Context, state *RecordState) *domain.CategorizationResult
}

// BookHistoryStage matches against the current book's labeled transactions.
type BookHistoryStage struct{}

func (BookHistoryStage) Name() string { return "book_history" }

func (BookHistoryStage) Execute(ctx context.Context, state *RecordState) *domain.CategorizationResult {
	return matcher.FindMatch(state.Raw, state.Snapshot.BookCorpus, state.Snapshot.Rules, domain.SourceBookHistory)
}

// ClientHistoryStage matches against the client's other books, one book at a time.
// The first book with an accepted match wins.
type ClientHistoryStage struct{}

func (ClientHistoryStage) Name() string { return "client_history" }

func (ClientHistoryStage) Execute(ctx context.Context, state *RecordState) *domain.CategorizationResult {
	for _, corpus := range state.Snapshot.OtherBooks {
		if res := matcher.FindMatch(state.Raw, corpus.Transactions, state.Snapshot.Rules, domain.SourceClientHistory); res != nil {
			return res
		}
	}
	return nil
}

// IndustryRulesStage applies the industry-tagged sections of the accounting rules.
type IndustryRulesStage struct{}

func (IndustryRulesStage) Name() string { return "industry_rules" }

func (IndustryRulesStage) Execute(ctx context.Context, state *RecordState) *domain.CategorizationResult {
	return matcher.MatchIndustryRules(state.Raw, state.Industry, state.Snapshot.Rules)
}

// GlobalRulesStage applies the general sections of the accounting rules.
type GlobalRulesStage struct{}

func (GlobalRulesStage) Name() string { return "global_rules" }

func (GlobalRulesStage) Execute(ctx context.Context, state *RecordState) *domain.CategorizationResult {
	return matcher.MatchGlobalRules(state.Raw, state.Snapshot.Rules)
}

// RuleBasedStage accepts the rule-based categorizer's answer above MinRuleBasedConfidence.
type RuleBasedStage struct {
	Categorizer *rulebased.Categorizer
}

func (RuleBasedStage) Name() string { return "rule_based" }

func (s RuleBasedStage) Execute(ctx context.Context, state *RecordState) *domain.CategorizationResult {
	res := s.Categorizer.Categorize(state.Raw, state.Industry)
	if res.Confidence > MinRuleBasedConfidence {
		return &res
	}
	return nil
}

// AIStage asks the model fallback when the caller opted in and the model is ready.
// On failure the rule cascade is re-run; a re-run below the bar yields an Uncategorized result.
type AIStage struct {
	Fallback  ai.Categorizer
	RuleBased *rulebased.Categorizer
}

func (AIStage) Name() string { return "ai_model" }

func (s AIStage) Execute(ctx context.Context, state *RecordState) *domain.CategorizationResult {
	if !state.UseAI || s.Fallback == nil || !s.Fallback.Ready() || state.Raw.Description == "" {
		return nil
	}
	industry := ""
	if state.Industry != nil {
		industry = state.Industry.Name
	}

	guess, err := s.Fallback.Categorize(ctx, state.Raw.Description, industry)
	if err == nil && guess == nil {
		err = ai.ErrMalformedResponse
	}
	if err == nil {
		res := ai.Resolve(guess, state.Snapshot.Rules)
		return &res
	}

	log := logger.FromContext(ctx)
	log.Warn().Err(err).Str("description", state.Raw.Description).Msg("AI categorization failed, using rule-based fallback")

	rerun := s.RuleBased.Categorize(state.Raw, state.Industry)
	if rerun.Confidence > MinRuleBasedConfidence {
		return &rerun
	}
	return &domain.CategorizationResult{
		SpecificCategory: "Uncategorized",
		BroadCategory:    domain.CategoryUnknown,
		Confidence:       0.1,
		TransactionType:  rulebased.TypeExpense,
		PredictionSource: domain.SourceUnknown,
	}
}

// DefaultStages returns the cascade in priority order.
func DefaultStages(rb *rulebased.Categorizer, fallback ai.Categorizer) []Stage {
	return []Stage{
		BookHistoryStage{},
		ClientHistoryStage{},
		IndustryRulesStage{},
		GlobalRulesStage{},
		RuleBasedStage{Categorizer: rb},
		AIStage{Fallback: fallback, RuleBased: rb},
	}
}

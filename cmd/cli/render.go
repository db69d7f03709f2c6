package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/dvloznov/ledger-categorizer/internal/categorize"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/jobs"
	"github.com/dvloznov/ledger-categorizer/internal/normalizer"
	"github.com/dvloznov/ledger-categorizer/internal/quality"
)

var (
	errc  = color.New(color.BgRed, color.FgWhite).PrintfFunc()
	warnc = color.New(color.FgYellow).PrintfFunc()
	okc   = color.New(color.FgGreen).PrintfFunc()
	bold  = color.New(color.Bold).PrintfFunc()
)

// sourceColor gives each prediction source its own badge.
var sourceColor = map[domain.PredictionSource]*color.Color{
	domain.SourceBookHistory:   color.New(color.BgGreen, color.FgBlack),
	domain.SourceClientHistory: color.New(color.BgCyan, color.FgBlack),
	domain.SourceIndustryRule:  color.New(color.BgBlue, color.FgWhite),
	domain.SourceGlobalRule:    color.New(color.BgMagenta, color.FgWhite),
	domain.SourceAIModel:       color.New(color.BgYellow, color.FgBlack),
	domain.SourceUnknown:       color.New(color.BgRed, color.FgWhite),
}

func sourceBadge(s domain.PredictionSource) *color.Color {
	if c, ok := sourceColor[s]; ok {
		return c
	}
	return sourceColor[domain.SourceUnknown]
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}

func printTransactions(txs []domain.Transaction) {
	for _, tx := range txs {
		color.New(color.BgYellow, color.FgBlack).Printf(" %10s ", shorten(tx.Date, 10))
		if tx.Amount < 0 {
			color.New(color.BgRed, color.FgWhite).Printf(" %10.2f %3s ", tx.Amount, tx.Currency)
		} else {
			color.New(color.BgGreen, color.FgBlack).Printf(" %10.2f %3s ", tx.Amount, tx.Currency)
		}
		fmt.Printf(" %-40s ", shorten(tx.Description, 40))
		sourceBadge(tx.PredictionSource).Printf(" %-14s ", tx.PredictionSource)
		fmt.Printf(" %-28s %3.0f%%", shorten(tx.EffectiveCategory(), 28), tx.ConfidenceScore*100)
		if tx.IsFlagged {
			warnc("  review")
		}
		fmt.Println()
	}
}

func printSummary(s categorize.Summary) {
	bold("\nTransactions: %d  flagged: %d  overridden: %d  avg confidence: %.0f%%\n",
		s.Total, s.Flagged, s.Overridden, s.AverageConfidence*100)

	sources := make([]string, 0, len(s.BySource))
	for src := range s.BySource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		sourceBadge(domain.PredictionSource(src)).Printf(" %-14s ", src)
		fmt.Printf(" %d\n", s.BySource[domain.PredictionSource(src)])
	}

	broad := make([]string, 0, len(s.ByBroadCategory))
	for c := range s.ByBroadCategory {
		broad = append(broad, string(c))
	}
	sort.Strings(broad)
	for _, c := range broad {
		fmt.Printf("  %-12s %d\n", c, s.ByBroadCategory[domain.AccountingCategory(c)])
	}
}

func printReport(r *domain.ValidationReport) {
	if r == nil {
		return
	}
	if r.SkippedRowCount > 0 {
		warnc("Skipped rows: %d\n", r.SkippedRowCount)
		reasons := make([]string, 0, len(r.Summary))
		for reason := range r.Summary {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Printf("  %-40s %d\n", reason, r.Summary[reason])
		}
	}
	for _, e := range r.Errors {
		fmt.Printf("  row %d: %s  [%s]\n", e.RowIndex, e.Message, e.RowDataPreview)
	}
	if r.WarningRowCount > 0 {
		warnc("Warnings: %d\n", r.WarningRowCount)
		for _, e := range r.Warnings {
			fmt.Printf("  row %d: %s\n", e.RowIndex, e.Message)
		}
	}
	for _, n := range r.Notes {
		fmt.Printf("  note: %s\n", n)
	}
}

func printTable(headers []string, rows [][]string) {
	bold("%s\n", strings.Join(headers, " | "))
	for _, row := range rows {
		fmt.Println(strings.Join(row, " | "))
	}
}

func printJob(job *jobs.Job) {
	switch job.Status {
	case jobs.JobStatusCompleted:
		okc("%s", job.Status)
	case jobs.JobStatusFailed:
		errc(" %s ", job.Status)
	default:
		warnc("%s", job.Status)
	}
	fmt.Printf("  rows: %d valid of %d, processed %d\n", job.ValidRows, job.TotalRows, job.ProcessedRows)
	if job.Error != "" {
		fmt.Println(job.Error)
	}
}

func printQuality(res *quality.Result) {
	m := res.Metrics
	score := okc
	if m.QualityScore < 60 {
		score = errc
	} else if m.QualityScore < 80 {
		score = warnc
	}
	score("Quality score: %d\n", m.QualityScore)
	fmt.Printf("  rows %d, valid %d, duplicates %d, missing data %d, bad format %d, outliers %d\n",
		m.TotalRows, m.ValidRows, m.DuplicateRows, m.MissingDataRows, m.InvalidFormatRows, m.OutlierRows)
	for _, is := range res.Issues {
		row := "file"
		if is.RowIndex > 0 {
			row = fmt.Sprintf("row %d", is.RowIndex)
		}
		fmt.Printf("  [%s/%s] %s: %s\n", is.Type, is.Category, row, is.Message)
	}
	for _, s := range res.Suggestions {
		fmt.Printf("  * %s: %s\n", s.Title, s.Description)
	}
}

func printCatalog(entries []normalizer.CatalogEntry) {
	for _, e := range entries {
		indent := ""
		if e.IsSubCategory {
			indent = "  "
		}
		fmt.Printf("%-12s %s%s\n", e.BroadCategory, indent, e.SpecificName)
	}
}

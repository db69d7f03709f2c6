package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/mapping"
)

// Property names of the review database.
const (
	PropDescription       = "Description"
	PropTransactionID     = "Transaction ID"
	PropDate              = "Date"
	PropAmount            = "Amount"
	PropCurrency          = "Currency"
	PropCategory          = "Category"
	PropBroadCategory     = "Broad Category"
	PropConfidence        = "Confidence"
	PropSource            = "Source"
	PropSuggestion        = "Suggested Category"
	PropClient            = "Client"
	PropBook              = "Book"
	PropNotes             = "Notes"
	PropStatus            = "Status"
	PropCorrectedCategory = "Corrected Category"
)

// Review statuses. Reviewers move pages from StatusNeedsReview to StatusReviewed;
// pulling decisions moves them to StatusApplied.
const (
	StatusNeedsReview = "Needs Review"
	StatusReviewed    = "Reviewed"
	StatusApplied     = "Applied"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// TransactionProperties converts a flagged transaction to review page properties.
func TransactionProperties(client domain.Client, book domain.Book, tx domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		PropDescription:   notionapi.TitleProperty{Title: richText(tx.Description)},
		PropTransactionID: notionapi.RichTextProperty{RichText: richText(tx.ID)},
		PropAmount:        notionapi.NumberProperty{Number: tx.Amount},
		PropConfidence:    notionapi.NumberProperty{Number: tx.ConfidenceScore},
		PropCategory:      notionapi.SelectProperty{Select: notionapi.Option{Name: selectName(tx.SpecificCategory)}},
		PropBroadCategory: notionapi.SelectProperty{Select: notionapi.Option{Name: string(tx.BroadCategory)}},
		PropStatus:        notionapi.SelectProperty{Select: notionapi.Option{Name: StatusNeedsReview}},
		PropClient:        notionapi.SelectProperty{Select: notionapi.Option{Name: selectName(client.Name)}},
		PropBook:          notionapi.SelectProperty{Select: notionapi.Option{Name: selectName(book.Name)}},
	}

	if t, ok := mapping.ParseDate(tx.Date); ok {
		d := notionapi.Date(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
		props[PropDate] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
	}
	if tx.Currency != "" {
		props[PropCurrency] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Currency}}
	}
	if tx.PredictionSource != "" {
		props[PropSource] = notionapi.SelectProperty{Select: notionapi.Option{Name: string(tx.PredictionSource)}}
	}
	if tx.SuggestedSpecificCategory != "" {
		suggestion := tx.SuggestedSpecificCategory
		if tx.SuggestedBroadCategory != "" {
			suggestion = fmt.Sprintf("%s (%s)", suggestion, tx.SuggestedBroadCategory)
		}
		props[PropSuggestion] = notionapi.RichTextProperty{RichText: richText(suggestion)}
	}
	if tx.Notes != "" {
		props[PropNotes] = notionapi.RichTextProperty{RichText: richText(tx.Notes)}
	}
	return props
}

// selectName strips commas, which Notion rejects in select options.
func selectName(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", " "))
	if s == "" {
		return "-"
	}
	return s
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		if r.PlainText != "" {
			b.WriteString(r.PlainText)
		} else if r.Text != nil {
			b.WriteString(r.Text.Content)
		}
	}
	return b.String()
}

func textProperty(page notionapi.Page, name string) string {
	switch p := page.Properties[name].(type) {
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case notionapi.RichTextProperty:
		return plainText(p.RichText)
	case *notionapi.TitleProperty:
		return plainText(p.Title)
	case notionapi.TitleProperty:
		return plainText(p.Title)
	}
	return ""
}

func selectProperty(page notionapi.Page, name string) string {
	switch p := page.Properties[name].(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	}
	return ""
}

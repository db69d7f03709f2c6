// Package exchange moves clients, books, industries, training data and the active rule set
// between installations as one JSON document.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

// Repository is the entity and training storage an export reads and an import writes.
type Repository interface {
	ListClients(ctx context.Context) ([]domain.Client, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	ListIndustries(ctx context.Context) ([]domain.Industry, error)
	AllTrainingTransactions(ctx context.Context) ([]domain.MappedTrainingTransaction, error)

	CreateClient(ctx context.Context, name string) (domain.Client, error)
	CreateBook(ctx context.Context, clientID, name string) (domain.Book, error)
	CreateIndustry(ctx context.Context, name string) (domain.Industry, error)
	AddTrainingTransactions(ctx context.Context, clientID, bookID string, txs []domain.MappedTrainingTransaction) (int, error)
}

// RuleStore resolves the active rules and accepts custom overrides.
type RuleStore interface {
	Resolve(ctx context.Context) (*rules.RuleSet, error)
	SaveCustom(ctx context.Context, t rules.RuleType, data []byte) error
}

// CustomRules holds rule documents as raw JSON.
type CustomRules struct {
	AccountingRules    json.RawMessage `json:"accountingRules,omitempty"`
	CoaValidationRules json.RawMessage `json:"coaValidationRules,omitempty"`
	CoaAlternateNames  json.RawMessage `json:"coaAlternateNames,omitempty"`
}

func (c *CustomRules) byType() map[rules.RuleType]json.RawMessage {
	return map[rules.RuleType]json.RawMessage{
		rules.AccountingRules:   c.AccountingRules,
		rules.CoaValidation:     c.CoaValidationRules,
		rules.CoaAlternateNames: c.CoaAlternateNames,
	}
}

// Container is the exported document.
type Container struct {
	ExportedAt           time.Time                          `json:"exportedAt"`
	Clients              []domain.Client                    `json:"clients"`
	Books                []domain.Book                      `json:"books"`
	Industries           []domain.Industry                  `json:"industries"`
	TrainingTransactions []domain.MappedTrainingTransaction `json:"trainingTransactions"`
	CustomRules          *CustomRules                       `json:"customRules,omitempty"`
}

// Export collects everything into a Container. The active rule set is included whether it is
// custom or the default.
func Export(ctx context.Context, repo Repository, rs RuleStore) (*Container, error) {
	c := &Container{ExportedAt: time.Now().UTC()}
	var err error
	if c.Clients, err = repo.ListClients(ctx); err != nil {
		return nil, fmt.Errorf("Export: listing clients: %w", err)
	}
	if c.Books, err = repo.ListBooks(ctx); err != nil {
		return nil, fmt.Errorf("Export: listing books: %w", err)
	}
	if c.Industries, err = repo.ListIndustries(ctx); err != nil {
		return nil, fmt.Errorf("Export: listing industries: %w", err)
	}
	if c.TrainingTransactions, err = repo.AllTrainingTransactions(ctx); err != nil {
		return nil, fmt.Errorf("Export: reading training data: %w", err)
	}

	if rs != nil {
		set, err := rs.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("Export: resolving rules: %w", err)
		}
		c.CustomRules = &CustomRules{}
		for t, dst := range map[rules.RuleType]*json.RawMessage{
			rules.AccountingRules:   &c.CustomRules.AccountingRules,
			rules.CoaValidation:     &c.CustomRules.CoaValidationRules,
			rules.CoaAlternateNames: &c.CustomRules.CoaAlternateNames,
		} {
			raw, err := rules.EncodeJSON(set.Document(t))
			if err != nil {
				return nil, fmt.Errorf("Export: encoding %s: %w", t, err)
			}
			*dst = raw
		}
	}
	return c, nil
}

// Write renders c as indented JSON.
func Write(w io.Writer, c *Container) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	return nil
}

// Read decodes a Container.
func Read(r io.Reader) (*Container, error) {
	var c Container
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("Read: could not parse export file: %w", err)
	}
	return &c, nil
}

// Result reports what an import did. Errors are per item; an import with errors has still
// applied everything else.
type Result struct {
	ClientsCreated       int      `json:"clientsCreated"`
	BooksCreated         int      `json:"booksCreated"`
	IndustriesCreated    int      `json:"industriesCreated"`
	TransactionsImported int      `json:"transactionsImported"`
	RulesImported        int      `json:"rulesImported"`
	Summary              []string `json:"summary"`
	Errors               []string `json:"errors"`
}

func (r *Result) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Import merges c into the repository. Clients, industries and books are matched by name,
// ignoring case, and created when missing; books are matched within their remapped client.
// Training rows are remapped to the local IDs. Rule documents become custom overrides.
func Import(ctx context.Context, repo Repository, rs RuleStore, c *Container) (*Result, error) {
	res := &Result{Summary: []string{}, Errors: []string{}}
	log := logger.FromContext(ctx)

	if c.CustomRules != nil && rs != nil {
		for _, t := range rules.RuleTypes {
			raw := c.CustomRules.byType()[t]
			if len(raw) == 0 || string(raw) == "null" {
				continue
			}
			if err := rs.SaveCustom(ctx, t, raw); err != nil {
				res.errorf("Error importing custom rules %s: %v", t, err)
				continue
			}
			res.RulesImported++
		}
		if res.RulesImported > 0 {
			res.Summary = append(res.Summary, "Custom accounting rules imported/updated.")
		}
	}

	clients, err := repo.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("Import: listing clients: %w", err)
	}
	books, err := repo.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("Import: listing books: %w", err)
	}
	industries, err := repo.ListIndustries(ctx)
	if err != nil {
		return nil, fmt.Errorf("Import: listing industries: %w", err)
	}

	clientIDs := make(map[string]string)
	for _, in := range c.Clients {
		if existing, ok := findClient(clients, in.Name); ok {
			clientIDs[in.ID] = existing.ID
			continue
		}
		created, err := repo.CreateClient(ctx, in.Name)
		if err != nil {
			res.errorf("Failed to add or map client %s: %v", in.Name, err)
			continue
		}
		clients = append(clients, created)
		clientIDs[in.ID] = created.ID
		res.ClientsCreated++
	}
	if res.ClientsCreated > 0 {
		res.Summary = append(res.Summary, fmt.Sprintf("Imported %d new clients.", res.ClientsCreated))
	}

	for _, in := range c.Industries {
		if _, ok := findIndustry(industries, in.Name); ok {
			continue
		}
		created, err := repo.CreateIndustry(ctx, in.Name)
		if err != nil {
			res.errorf("Failed to add industry %s: %v", in.Name, err)
			continue
		}
		industries = append(industries, created)
		res.IndustriesCreated++
	}
	if res.IndustriesCreated > 0 {
		res.Summary = append(res.Summary, fmt.Sprintf("Imported %d new industries.", res.IndustriesCreated))
	}

	bookIDs := make(map[string]string)
	for _, in := range c.Books {
		owner, ok := clientIDs[in.ClientID]
		if !ok {
			res.errorf("Book %q skipped: Original client ID %s not found or mapped.", in.Name, in.ClientID)
			continue
		}
		if existing, ok := findBook(books, owner, in.Name); ok {
			bookIDs[in.ID] = existing.ID
			continue
		}
		created, err := repo.CreateBook(ctx, owner, in.Name)
		if err != nil {
			res.errorf("Failed to add or map book %s: %v", in.Name, err)
			continue
		}
		books = append(books, created)
		bookIDs[in.ID] = created.ID
		res.BooksCreated++
	}
	if res.BooksCreated > 0 {
		res.Summary = append(res.Summary, fmt.Sprintf("Imported %d new books.", res.BooksCreated))
	}

	type scope struct{ client, book string }
	var order []scope
	grouped := make(map[scope][]domain.MappedTrainingTransaction)
	for _, tx := range c.TrainingTransactions {
		clientID, okClient := clientIDs[tx.ClientID]
		bookID, okBook := bookIDs[tx.BookID]
		if !okClient || !okBook {
			res.errorf("Transaction %s (Desc: %s...) skipped: Client/Book ID mapping failed.", tx.ID, truncate(tx.Description, 20))
			continue
		}
		key := scope{clientID, bookID}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], tx)
	}
	for _, key := range order {
		n, err := repo.AddTrainingTransactions(ctx, key.client, key.book, grouped[key])
		if err != nil {
			res.errorf("Failed to import training data for book %s: %v", key.book, err)
			continue
		}
		res.TransactionsImported += n
	}
	if res.TransactionsImported > 0 {
		res.Summary = append(res.Summary, fmt.Sprintf("Imported %d training transactions.", res.TransactionsImported))
	}

	log.Info().
		Int("clients_created", res.ClientsCreated).
		Int("books_created", res.BooksCreated).
		Int("industries_created", res.IndustriesCreated).
		Int("transactions_imported", res.TransactionsImported).
		Int("errors", len(res.Errors)).
		Msg("Import finished")
	return res, nil
}

func findClient(clients []domain.Client, name string) (domain.Client, bool) {
	for _, c := range clients {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return domain.Client{}, false
}

func findIndustry(industries []domain.Industry, name string) (domain.Industry, bool) {
	for _, ind := range industries {
		if strings.EqualFold(ind.Name, strings.TrimSpace(name)) {
			return ind, true
		}
	}
	return domain.Industry{}, false
}

func findBook(books []domain.Book, clientID, name string) (domain.Book, bool) {
	for _, b := range books {
		if b.ClientID == clientID && strings.EqualFold(b.Name, strings.TrimSpace(name)) {
			return b, true
		}
	}
	return domain.Book{}, false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-categorizer/internal/app"
	"github.com/dvloznov/ledger-categorizer/internal/categorize"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/exchange"
	"github.com/dvloznov/ledger-categorizer/internal/jobs"
	"github.com/dvloznov/ledger-categorizer/internal/mapping"
	"github.com/dvloznov/ledger-categorizer/internal/quality"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
	"github.com/dvloznov/ledger-categorizer/internal/source"
	"github.com/dvloznov/ledger-categorizer/internal/store/boltdb"
)

// parseMapping reads "date=Posted On,description=Memo,amount=Amount" into a column mapping.
func parseMapping(s string) (domain.ColumnMapping, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	m := make(domain.ColumnMapping)
	for _, pair := range strings.Split(s, ",") {
		key, header, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(header) == "" {
			return nil, fmt.Errorf("invalid mapping entry %q, want field=Header", pair)
		}
		f, err := domain.ParseTargetField(key)
		if err != nil {
			return nil, err
		}
		m[f] = strings.TrimSpace(header)
	}
	return m, nil
}

// scopeFlags are the flags shared by commands that work on one client's book.
type scopeFlags struct {
	client string
	book   string
	create *bool
}

func (s *scopeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.client, "client", "", "Client name (required)")
	fs.StringVar(&s.book, "book", "", "Book name (required)")
	s.create = fs.Bool("create", false, "Create the client and book when missing")
}

func (s *scopeFlags) resolve(ctx context.Context, st *boltdb.Store) (domain.Client, domain.Book, error) {
	if s.client == "" || s.book == "" {
		return domain.Client{}, domain.Book{}, errors.New("-client and -book are required")
	}
	client, err := st.FindClientByName(ctx, s.client)
	if errors.Is(err, boltdb.ErrNotFound) && *s.create {
		client, err = st.CreateClient(ctx, s.client)
	}
	if err != nil {
		return domain.Client{}, domain.Book{}, fmt.Errorf("client %q: %w", s.client, err)
	}
	book, err := st.FindBookByName(ctx, client.ID, s.book)
	if errors.Is(err, boltdb.ErrNotFound) && *s.create {
		book, err = st.CreateBook(ctx, client.ID, s.book)
	}
	if err != nil {
		return domain.Client{}, domain.Book{}, fmt.Errorf("book %q: %w", s.book, err)
	}
	return client, book, nil
}

// fileFlags describe an input file and how to read it.
type fileFlags struct {
	file         string
	mapping      string
	template     string
	headerRow    int
	lenientDates bool
}

func (f *fileFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "file", "", "Input file path or gs://bucket/object (required)")
	fs.StringVar(&f.mapping, "mapping", "", "Column mapping, e.g. date=Date,description=Memo,amount=Amount")
	fs.StringVar(&f.template, "template", "", "ID of a saved mapping template to use")
	fs.IntVar(&f.headerRow, "header-row", 0, "Number of lines before the header line")
	fs.BoolVar(&f.lenientDates, "lenient-dates", false, "Keep rows with unparsable dates and report them as warnings")
}

func (f *fileFlags) columnMapping(ctx context.Context, st *boltdb.Store) (domain.ColumnMapping, error) {
	if f.template != "" {
		t, err := st.UseMappingTemplate(ctx, f.template)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", f.template, err)
		}
		return t.Mapping, nil
	}
	return parseMapping(f.mapping)
}

func (f *fileFlags) read(ctx context.Context, a *app.App) (string, error) {
	if f.file == "" {
		return "", errors.New("-file is required")
	}
	data, err := a.Source.Fetch(ctx, f.file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// runJob builds a job for a file and runs it in the foreground.
func runJob(ctx context.Context, a *app.App, sf *scopeFlags, ff *fileFlags, training bool, configure func(*jobs.Job)) (*jobs.Job, error) {
	client, book, err := sf.resolve(ctx, a.Store)
	if err != nil {
		return nil, err
	}
	m, err := ff.columnMapping(ctx, a.Store)
	if err != nil {
		return nil, err
	}
	content, err := ff.read(ctx, a)
	if err != nil {
		return nil, err
	}

	job := &jobs.Job{
		ID:             uuid.New().String(),
		FileName:       source.FileName(ff.file),
		Content:        content,
		ClientID:       client.ID,
		BookID:         book.ID,
		IsTrainingData: training,
		Mapping:        m,
		HeaderRow:      ff.headerRow,
		LenientDates:   ff.lenientDates,
		Status:         jobs.JobStatusQueued,
		CreatedAt:      time.Now(),
	}
	if configure != nil {
		configure(job)
	}
	if err := a.Processor(nil).Handle(ctx, job); err != nil {
		return job, err
	}

	printJob(job)
	printReport(job.ValidationReport)
	if job.Status == jobs.JobStatusAwaitingMapping {
		fmt.Println("\nNo column mapping is saved for this book. Headers and first rows:")
		printTable(job.Headers, job.SampleRows)
		fmt.Println("\nRerun with -mapping field=Header,... (see 'cli preview -fields').")
	}
	if job.Status == jobs.JobStatusValidationWarning {
		fmt.Println("\nSome rows were skipped. Rerun with -proceed to categorize the remaining rows.")
	}
	return job, nil
}

func runCategorize(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	var sf scopeFlags
	var ff fileFlags
	sf.register(fs)
	ff.register(fs)
	industry := fs.String("industry", "", "Industry name for industry rules")
	useAI := fs.Bool("ai", false, "Consult the AI fallback for unmatched transactions")
	proceed := fs.Bool("proceed", false, "Continue when some rows fail validation")
	out := fs.String("out", "", "Write the categorized transactions as JSON to this file")
	fs.Parse(args)

	var industryID string
	if *industry != "" {
		ind, err := a.Store.FindIndustryByName(ctx, *industry)
		if err != nil {
			return fmt.Errorf("industry %q: %w", *industry, err)
		}
		industryID = ind.ID
	}

	job, err := runJob(ctx, a, &sf, &ff, false, func(j *jobs.Job) {
		j.IndustryID = industryID
		j.UseAI = *useAI
		j.ProceedWithWarnings = *proceed
	})
	if err != nil {
		return err
	}
	if len(job.Transactions) == 0 {
		return nil
	}

	fmt.Println()
	printTransactions(job.Transactions)
	printSummary(categorize.Summarize(job.Transactions))

	if *out != "" {
		data, err := json.MarshalIndent(job.Transactions, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return fmt.Errorf("writing results: %w", err)
		}
		okc("Results written to %s\n", *out)
	}
	return nil
}

func runTrain(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	var sf scopeFlags
	var ff fileFlags
	sf.register(fs)
	ff.register(fs)
	fs.Parse(args)

	job, err := runJob(ctx, a, &sf, &ff, true, nil)
	if err != nil {
		return err
	}
	if job.Status == jobs.JobStatusCompleted {
		okc("Added %d training transactions\n", job.ProcessedRows)
	}
	return nil
}

func runPreview(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	var ff fileFlags
	ff.register(fs)
	rows := fs.Int("rows", 5, "Number of rows to show")
	fields := fs.Bool("fields", false, "List the mappable fields instead of previewing a file")
	training := fs.Bool("training", false, "With -fields, list the training file fields")
	fs.Parse(args)

	if *fields {
		configs := mapping.StandardProcessingFields
		if *training {
			configs = mapping.TrainingFields
		}
		for _, fc := range configs {
			req := " "
			if fc.Mandatory {
				req = "*"
			}
			fmt.Printf("%s %-22s %-36s %s\n", req, fc.Field.Key(), fc.Label, fc.Info)
		}
		return nil
	}

	text, err := ff.read(ctx, a)
	if err != nil {
		return err
	}
	headers, sample, err := mapping.Preview(text, *rows, mapping.Options{HeaderRow: ff.headerRow})
	if err != nil {
		return err
	}
	printTable(headers, sample)
	return nil
}

func runQuality(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("quality", flag.ExitOnError)
	var ff fileFlags
	ff.register(fs)
	fs.Parse(args)

	m, err := ff.columnMapping(ctx, a.Store)
	if err != nil {
		return err
	}
	if len(m) == 0 {
		return errors.New("-mapping or -template is required")
	}
	text, err := ff.read(ctx, a)
	if err != nil {
		return err
	}

	res, err := mapping.ParseWithMapping(text, m, mapping.StandardProcessingFields, mapping.Options{HeaderRow: ff.headerRow, LenientDates: ff.lenientDates})
	if err != nil {
		var cfgErr *mapping.ConfigError
		if errors.As(err, &cfgErr) {
			printReport(cfgErr.Report)
		}
		return err
	}
	printReport(res.Report)
	printQuality(quality.Analyze(res.Records, res.Report))
	return nil
}

func runRules(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	format := fs.String("format", "yaml", "Output format for show: yaml or json")
	fs.Usage = func() {
		fmt.Println("Usage: cli rules [list | show TYPE | set TYPE FILE | reset TYPE | reset-all]")
		fmt.Printf("Rule types: %v\n", rules.RuleTypes)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	action := fs.Arg(0)
	switch action {
	case "", "list":
		rs, err := a.Rules.Resolve(ctx)
		if err != nil {
			return err
		}
		for _, t := range rules.RuleTypes {
			if rs.Custom[t] {
				warnc("%-18s custom\n", t)
			} else {
				fmt.Printf("%-18s default\n", t)
			}
		}
		return nil
	case "reset-all":
		if err := a.Rules.ResetAll(ctx); err != nil {
			return err
		}
		okc("All rules reset to defaults\n")
		return nil
	case "show", "set", "reset":
	default:
		fs.Usage()
		return fmt.Errorf("unknown rules action %q", action)
	}

	t, err := rules.ParseRuleType(fs.Arg(1))
	if err != nil {
		return err
	}
	switch action {
	case "show":
		rs, err := a.Rules.Resolve(ctx)
		if err != nil {
			return err
		}
		var data []byte
		if *format == "json" {
			data, err = rules.EncodeJSON(rs.Document(t))
			if err == nil {
				var buf bytes.Buffer
				if json.Indent(&buf, data, "", "  ") == nil {
					data = buf.Bytes()
				}
			}
		} else {
			data, err = rules.EncodeYAML(rs.Document(t))
		}
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		fmt.Println()
	case "set":
		if fs.Arg(2) == "" {
			return errors.New("usage: cli rules set TYPE FILE")
		}
		data, err := os.ReadFile(fs.Arg(2))
		if err != nil {
			return err
		}
		if err := a.Rules.SaveCustom(ctx, t, data); err != nil {
			return err
		}
		okc("Custom %s saved\n", t)
	case "reset":
		if err := a.Rules.Reset(ctx, t); err != nil {
			return err
		}
		okc("%s reset to default\n", t)
	}
	return nil
}

func runCatalog(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	broad := fs.String("broad", "", "Only list categories under this broad category, e.g. Expenses")
	fs.Parse(args)

	entries, err := a.Catalog(ctx)
	if err != nil {
		return err
	}
	if *broad != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if strings.EqualFold(string(e.BroadCategory), *broad) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	printCatalog(entries)
	return nil
}

func runExport(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "Write the export to this file (default stdout)")
	upload := fs.Bool("upload", false, "Upload the export to the configured GCS bucket")
	fs.Parse(args)

	c, err := exchange.Export(ctx, a.Store, a.Rules)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := exchange.Write(&buf, c); err != nil {
		return err
	}

	if *upload {
		if a.Config.GCSBucket == "" {
			return errors.New("GCS_BUCKET is not configured")
		}
		object := "exports/" + c.ExportedAt.UTC().Format("2006/01/02/150405") + ".json"
		uri, err := a.Source.Upload(ctx, a.Config.GCSBucket, object, &buf)
		if err != nil {
			return err
		}
		okc("Export uploaded to %s\n", uri)
		return nil
	}
	if *out == "" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	okc("Exported %d clients, %d books, %d industries, %d training transactions to %s\n",
		len(c.Clients), len(c.Books), len(c.Industries), len(c.TrainingTransactions), *out)
	return nil
}

func runImport(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "Export file path or gs://bucket/object (required)")
	fs.Parse(args)
	if *file == "" {
		return errors.New("-file is required")
	}

	data, err := a.Source.Fetch(ctx, *file)
	if err != nil {
		return err
	}
	c, err := exchange.Read(bytes.NewReader(data))
	if err != nil {
		return err
	}
	res, err := exchange.Import(ctx, a.Store, a.Rules, c)
	if err != nil {
		return err
	}
	for _, line := range res.Summary {
		fmt.Println(line)
	}
	for _, e := range res.Errors {
		warnc("%s\n", e)
	}
	okc("Imported %d clients, %d books, %d industries, %d training transactions, %d rule documents\n",
		res.ClientsCreated, res.BooksCreated, res.IndustriesCreated, res.TransactionsImported, res.RulesImported)
	return nil
}

func runClients(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("clients", flag.ExitOnError)
	fs.Usage = func() { fmt.Println("Usage: cli clients [list | add NAME | rm NAME]") }
	fs.Parse(args)

	switch fs.Arg(0) {
	case "", "list":
		clients, err := a.Store.ListClients(ctx)
		if err != nil {
			return err
		}
		for _, c := range clients {
			fmt.Printf("%s  %s\n", c.ID, c.Name)
		}
	case "add":
		c, err := a.Store.CreateClient(ctx, fs.Arg(1))
		if err != nil {
			return err
		}
		okc("Created client %s (%s)\n", c.Name, c.ID)
	case "rm":
		c, err := a.Store.FindClientByName(ctx, fs.Arg(1))
		if err != nil {
			return err
		}
		if err := a.Store.DeleteClient(ctx, c.ID); err != nil {
			return err
		}
		okc("Deleted client %s with its books and training data\n", c.Name)
	default:
		fs.Usage()
		return fmt.Errorf("unknown clients action %q", fs.Arg(0))
	}
	return nil
}

func runBooks(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("books", flag.ExitOnError)
	clientName := fs.String("client", "", "Client name")
	fs.Usage = func() {
		fmt.Println("Usage: cli books [-client NAME] [list | add NAME | rm NAME | training NAME | clear NAME]")
	}
	fs.Parse(args)

	var client domain.Client
	if *clientName != "" {
		c, err := a.Store.FindClientByName(ctx, *clientName)
		if err != nil {
			return fmt.Errorf("client %q: %w", *clientName, err)
		}
		client = c
	}
	action, name := fs.Arg(0), fs.Arg(1)
	if action != "" && action != "list" && client.ID == "" {
		return errors.New("-client is required")
	}

	var book domain.Book
	switch action {
	case "rm", "training", "clear":
		b, err := a.Store.FindBookByName(ctx, client.ID, name)
		if err != nil {
			return fmt.Errorf("book %q: %w", name, err)
		}
		book = b
	}

	switch action {
	case "", "list":
		var books []domain.Book
		var err error
		if client.ID != "" {
			books, err = a.Store.BooksByClient(ctx, client.ID)
		} else {
			books, err = a.Store.ListBooks(ctx)
		}
		if err != nil {
			return err
		}
		for _, b := range books {
			fmt.Printf("%s  %-24s client %s\n", b.ID, b.Name, b.ClientID)
		}
	case "add":
		b, err := a.Store.CreateBook(ctx, client.ID, name)
		if err != nil {
			return err
		}
		okc("Created book %s (%s)\n", b.Name, b.ID)
	case "rm":
		if err := a.Store.DeleteBook(ctx, book.ID); err != nil {
			return err
		}
		okc("Deleted book %s\n", book.Name)
	case "training":
		n, err := a.Store.CountTrainingTransactions(ctx, client.ID, book.ID)
		if err != nil {
			return err
		}
		m, err := a.Store.GetColumnMapping(ctx, client.ID, book.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%d training transactions\n", n)
		for f, header := range m {
			fmt.Printf("  %-22s <- %s\n", f.Key(), header)
		}
	case "clear":
		if err := a.Store.ClearTrainingTransactions(ctx, client.ID, book.ID); err != nil {
			return err
		}
		if a.Warehouse != nil {
			if err := a.Warehouse.ClearTrainingTransactions(ctx, client.ID, book.ID); err != nil {
				warnc("Warehouse copy not cleared: %v\n", err)
			}
		}
		okc("Training data cleared for %s\n", book.Name)
	default:
		fs.Usage()
		return fmt.Errorf("unknown books action %q", action)
	}
	return nil
}

func runIndustries(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("industries", flag.ExitOnError)
	fs.Usage = func() { fmt.Println("Usage: cli industries [list | add NAME | rm NAME]") }
	fs.Parse(args)

	switch fs.Arg(0) {
	case "", "list":
		list, err := a.Store.ListIndustries(ctx)
		if err != nil {
			return err
		}
		for _, ind := range list {
			fmt.Printf("%s  %s\n", ind.ID, ind.Name)
		}
	case "add":
		ind, err := a.Store.CreateIndustry(ctx, fs.Arg(1))
		if err != nil {
			return err
		}
		okc("Created industry %s (%s)\n", ind.Name, ind.ID)
	case "rm":
		ind, err := a.Store.FindIndustryByName(ctx, fs.Arg(1))
		if err != nil {
			return err
		}
		if err := a.Store.DeleteIndustry(ctx, ind.ID); err != nil {
			return err
		}
		okc("Deleted industry %s\n", ind.Name)
	default:
		fs.Usage()
		return fmt.Errorf("unknown industries action %q", fs.Arg(0))
	}
	return nil
}

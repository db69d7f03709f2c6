package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/app"
	"github.com/dvloznov/ledger-categorizer/internal/config"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, a *app.App, args []string) error
}

var commands = []command{
	{"categorize", "Categorize a transaction file for a client's book", runCategorize},
	{"train", "Add a labeled file to a book's training history", runTrain},
	{"preview", "Show the headers and first rows of a file", runPreview},
	{"quality", "Report data quality of a file under a column mapping", runQuality},
	{"rules", "List, show, set or reset rule documents", runRules},
	{"catalog", "List every category of the active rules", runCatalog},
	{"export", "Export clients, books, industries, training data and rules", runExport},
	{"import", "Import an export file", runImport},
	{"clients", "List, add or remove clients", runClients},
	{"books", "List, add or remove books", runBooks},
	{"industries", "List, add or remove industries", runIndustries},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		errc("%v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel).Level(cliLevel(cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		errc("%v\n", err)
		os.Exit(1)
	}
	err = cmd.run(ctx, a, os.Args[2:])
	a.Close()
	if err != nil {
		errc("%s: %v\n", cmd.name, err)
		os.Exit(1)
	}
}

// cliLevel keeps the console quiet unless the configuration asks for debug output.
func cliLevel(level string) zerolog.Level {
	if l := logger.ParseLevel(level); l < zerolog.InfoLevel {
		return l
	}
	return zerolog.WarnLevel
}

func printUsage() {
	fmt.Println("Ledger Categorizer CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-11s %s\n", c.name, c.usage)
	}
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

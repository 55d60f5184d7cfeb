package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/pkg/db"
	"github.com/fadedpez/stemverse/pkg/db/migrations"
	_ "github.com/mattn/go-sqlite3"
)

var logger = logging.NewLogger("info", false)

func main() {
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)

	migrationsDir := createCmd.String("dir", filepath.Join("pkg", "db", "migrations", "sql"), "Directory to store migrations")

	dbPath := migrateCmd.String("db", filepath.Join("db", "stemverse.sqlite"), "Path to SQLite database")
	migrateDir := migrateCmd.String("dir", "", "Directory containing migrations (default: the embedded schema)")

	statusDBPath := statusCmd.String("db", filepath.Join("db", "stemverse.sqlite"), "Path to SQLite database")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create":
		createCmd.Parse(os.Args[2:])
		if createCmd.NArg() < 1 {
			fmt.Println("Error: Missing migration description")
			createCmd.Usage()
			os.Exit(1)
		}
		createNewMigration(*migrationsDir, createCmd.Arg(0))

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		applyMigrations(*dbPath, *migrateDir)

	case "status":
		statusCmd.Parse(os.Args[2:])
		printStatus(*statusDBPath)

	case "help":
		printUsage()

	default:
		fmt.Printf("Error: Unknown command '%s'\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/migration create DESCRIPTION  - Create a new migration")
	fmt.Println("  go run ./cmd/migration migrate             - Apply pending migrations")
	fmt.Println("  go run ./cmd/migration status              - List applied and pending migrations")
	fmt.Println("  go run ./cmd/migration help                - Show this help")
	fmt.Println("\nExamples:")
	fmt.Println("  go run ./cmd/migration create \"add badges table\"")
	fmt.Println("  go run ./cmd/migration migrate -db db/stemverse.sqlite")
}

func createNewMigration(migrationsDir, description string) {
	filePath, err := migrations.CreateMigration(migrationsDir, description)
	if err != nil {
		logger.Fatalf("Error creating migration: %v", err)
	}

	fmt.Printf("Created migration file: %s\n", filePath)
	fmt.Println("Edit this file to add your database schema changes.")
}

func applyMigrations(dbPath, migrationsDir string) {
	if migrationsDir == "" {
		// Open applies the embedded schema
		database, err := db.Open(context.Background(), dbPath, logger)
		if err != nil {
			logger.Fatalf("Error applying migrations: %v", err)
		}
		database.Close()
		fmt.Println("Migrations applied successfully!")
		return
	}

	database := openRaw(dbPath)
	defer database.Close()

	count, err := migrations.NewMigrator(database, os.DirFS(migrationsDir)).WithLogger(logger).MigrateUp()
	if err != nil {
		logger.Fatalf("Error applying migrations: %v", err)
	}

	fmt.Printf("Applied %d migration(s) successfully!\n", count)
}

func printStatus(dbPath string) {
	database := openRaw(dbPath)
	defer database.Close()

	migrator := migrations.NewMigrator(database, migrations.Embedded()).WithLogger(logger)
	if err := migrator.Initialize(); err != nil {
		logger.Fatalf("Error reading migrations: %v", err)
	}

	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		logger.Fatalf("Error reading migrations: %v", err)
	}

	all, err := migrator.LoadMigrations()
	if err != nil {
		logger.Fatalf("Error loading migrations: %v", err)
	}

	for _, m := range all {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%s  %-8s %s\n", m.Version, state, m.Description)
	}
}

func openRaw(dbPath string) *sql.DB {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Fatalf("Error creating database directory: %v", err)
	}

	database, err := sql.Open("sqlite3", db.DSN(dbPath))
	if err != nil {
		logger.Fatalf("Error opening database: %v", err)
	}
	return database
}

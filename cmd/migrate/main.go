package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"dynamic_bot/internal/storage"
	"dynamic_bot/migrations"
)

var gooseCommands = map[string]func(db *sql.DB, dir string, opts ...goose.OptionsFunc) error{
	"up":      goose.Up,
	"up-one":  goose.UpByOne,
	"down":    goose.Down,
	"status":  goose.Status,
	"version": goose.Version,
	"reset":   goose.Reset,
}

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to the delivery journal database")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	if cmd == "journal" {
		if err := printJournal(*dbPath, args[1:]); err != nil {
			log.Fatalf("journal: %v", err)
		}
		return
	}

	run, ok := gooseCommands[cmd]
	if !ok {
		log.Fatalf("unknown command: %s", cmd)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	if err := run(db, "."); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// printJournal lists the most recent deliveries, optionally for one subject.
func printJournal(path string, args []string) error {
	var subjectID int64
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid subject id %q: %w", args[0], err)
		}
		subjectID = id
	}

	journal, err := storage.NewSQLite(path)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	deliveries, err := journal.ListDeliveries(context.Background(), subjectID, 50)
	if err != nil {
		return err
	}
	for _, d := range deliveries {
		fmt.Printf("%d\t%s\t%d\t%s\t%s\t%s\n",
			d.ID, d.CreatedAt.Format("2006-01-02 15:04:05"), d.SubjectID, d.ItemID, d.Status, d.Error)
	}
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up                  Migrate to the latest version")
	fmt.Fprintln(os.Stderr, "  up-one              Migrate one version up")
	fmt.Fprintln(os.Stderr, "  down                Roll back one version")
	fmt.Fprintln(os.Stderr, "  status              Show migration status")
	fmt.Fprintln(os.Stderr, "  version             Show current version")
	fmt.Fprintln(os.Stderr, "  reset               Roll back all migrations")
	fmt.Fprintln(os.Stderr, "  journal [subject]   Print recent deliveries")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alvmarrod/opportunity-finder/internal/version"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const usage = `Usage: finder <command> [flags]

Commands:
  refresh-list   download a Tranco list into the local cache
  list-status    show the age of the cached list
  analyze        find opportunities for a publisher
  recheck        re-evaluate one skipped domain of a stored run
  annotate       attach a note to a result of a stored run
  history        list stored runs
  export         write a stored run as csv, skipped, html or xlsx
  email          email a stored run's opportunities

Run "finder <command> -h" for the flags of a command.
`

func main() {
	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "help" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logrus.Infof("Opportunity Finder v%s", version.Version)

	// Credentials may live in a local .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Failed to load .env: %v", err)
	}

	// First SIGINT/SIGTERM cancels the context; the run stops between domains
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name, args := os.Args[1], os.Args[2:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	if err := cmd(ctx, args); err != nil {
		logrus.Errorf("%s failed: %v", name, err)
		stop()
		os.Exit(1)
	}
}

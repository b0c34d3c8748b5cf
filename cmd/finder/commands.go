package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alvmarrod/opportunity-finder/internal/config"
	"github.com/alvmarrod/opportunity-finder/internal/fetch"
	"github.com/alvmarrod/opportunity-finder/internal/finder"
	"github.com/alvmarrod/opportunity-finder/internal/memory"
	"github.com/alvmarrod/opportunity-finder/internal/metrics"
	"github.com/alvmarrod/opportunity-finder/internal/notify"
	"github.com/alvmarrod/opportunity-finder/internal/rank"
	"github.com/alvmarrod/opportunity-finder/internal/report"
	"github.com/alvmarrod/opportunity-finder/internal/storage"
	"github.com/sirupsen/logrus"
)

const defaultConfigPath = "config.json"

var commands = map[string]func(ctx context.Context, args []string) error{
	"refresh-list": refreshList,
	"list-status":  listStatus,
	"analyze":      analyze,
	"recheck":      recheck,
	"annotate":     annotate,
	"history":      history,
	"export":       export,
	"email":        email,
}

// app bundles what every command needs
type app struct {
	cfg     *config.Config
	fetcher *fetch.Fetcher
	history finder.History
}

func setup(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("Unknown log_level %q, keeping info", cfg.LogLevel)
	}

	var history finder.History
	if cfg.DBPath == "" {
		logrus.Warn("db_path is not set; run history lasts only for this process")
		history = memory.NewHistory()
	} else {
		store, err := storage.NewStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		logrus.Debugf("History database: %s", cfg.DBPath)
		history = store
	}

	return &app{
		cfg: cfg,
		fetcher: fetch.New(fetch.Config{
			Timeout:   cfg.RequestTimeout(),
			Delay:     cfg.RequestDelay(),
			UserAgent: cfg.UserAgent,
		}),
		history: history,
	}, nil
}

// loadConfig falls back to defaults only when the default config file is absent
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.LoadConfig("")
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func (a *app) close() {
	if err := a.history.Close(); err != nil {
		logrus.Warnf("Failed to close history: %v", err)
	}
}

func (a *app) loader() *rank.Loader {
	return &rank.Loader{
		ListPath:      a.cfg.RankListPath,
		MetaPath:      a.cfg.RankMetaPath,
		Threshold:     a.cfg.RankThreshold,
		FreshnessDays: a.cfg.FreshnessDays,
		SourceURL:     a.cfg.RankSourceURL,
		MaxBytes:      a.cfg.MaxListBytes,
		Fetcher:       a.fetcher,
	}
}

// table loads the cached ranking list; a missing or broken cache yields an empty table
func (a *app) table() *rank.Table {
	loader := a.loader()
	if st := loader.Status(); st.Exists && !st.Fresh {
		logrus.Warnf("Ranking list is older than %d days (updated %s); run refresh-list",
			a.cfg.FreshnessDays, st.UpdatedAt.Format("2006-01-02"))
	}

	table, err := loader.Load()
	if err != nil {
		logrus.Warnf("%v; every candidate will be skipped as not ranked", err)
	}
	return table
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file, JSON or YAML")
	return fs, configPath
}

type publisherFlags struct {
	name string
	id   string
}

func (p *publisherFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.name, "publisher-name", "", "publisher name of the stored run")
	fs.StringVar(&p.id, "publisher-id", "", "publisher account id of the stored run")
}

func (p *publisherFlags) validate() error {
	if strings.TrimSpace(p.id) == "" {
		return errors.New("-publisher-id is required")
	}
	return nil
}

func refreshList(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("refresh-list")
	source := fs.String("source", "", "Tranco list URL or id; empty for the latest list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	loader := a.loader()
	previous := loader.Status()
	meta, err := loader.Refresh(ctx, *source)
	if err != nil {
		if previous.Exists {
			logrus.Warnf("Keeping cached list from %s", previous.UpdatedAt.Format(time.RFC3339))
		}
		return err
	}

	fmt.Printf("Ranking list %s refreshed at %s\n", meta.ID, meta.Timestamp.Format(time.RFC3339))
	return nil
}

func listStatus(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("list-status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	st := a.loader().Status()
	if !st.Exists {
		fmt.Printf("No ranking list cached at %s\n", a.cfg.RankListPath)
		return nil
	}

	freshness := "fresh"
	if !st.Fresh {
		freshness = "stale"
	}
	id := st.ListID
	if id == "" {
		id = "unknown"
	}
	fmt.Printf("Ranking list %s at %s: updated %s (%s)\n",
		id, a.cfg.RankListPath, st.UpdatedAt.Format("2006-01-02 15:04"), freshness)
	return nil
}

func analyze(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("analyze")
	var req finder.Request
	fs.StringVar(&req.PublisherDomain, "publisher-domain", "", "publisher domain hosting sellers.json")
	fs.StringVar(&req.PublisherName, "publisher-name", "", "publisher name")
	fs.StringVar(&req.PublisherID, "publisher-id", "", "publisher account id")
	fs.StringVar(&req.SampleDirectLine, "direct-line", "", `sample direct line, e.g. "example.com, 12345, DIRECT"`)
	fs.StringVar(&req.ManualDomains, "domains", "", "comma/newline separated domains or a sellers.json document")
	domainsFile := fs.String("domains-file", "", "read -domains from a file")
	resultsCSV := fs.String("results-csv", "", "write results as CSV")
	skippedCSV := fs.String("skipped-csv", "", "write the skip log as CSV")
	xlsx := fs.String("xlsx", "", "write results and skip log as an Excel workbook")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *domainsFile != "" {
		data, err := os.ReadFile(*domainsFile)
		if err != nil {
			return fmt.Errorf("failed to read domains file: %w", err)
		}
		req.ManualDomains = string(data)
	}

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	tracker := metrics.NewTracker()
	metricsCallback := func(discovered, checked, opportunities, skipped, fetchesFailed int, fetchTime time.Duration) {
		if discovered > 0 {
			tracker.AddDomainsDiscovered(discovered)
		}
		if checked > 0 {
			tracker.IncrementDomainsChecked()
		}
		if opportunities > 0 {
			tracker.IncrementOpportunities()
		}
		if skipped > 0 {
			tracker.IncrementSkipped()
		}
		if fetchesFailed > 0 {
			tracker.IncrementFetchesFailed()
		}
		if fetchTime > 0 {
			tracker.RecordFetchTime(fetchTime)
		}
	}

	f := finder.NewFinder(a.cfg, a.fetcher, a.table(), a.history, metricsCallback)

	// Start progress logger
	stopProgress := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	run, runErr := f.Run(ctx, req)
	close(stopProgress)

	terminationReason := "completed"
	switch {
	case errors.Is(runErr, context.Canceled):
		terminationReason = "interrupted"
	case runErr != nil:
		terminationReason = "failed"
	}

	logrus.Info("Final stats: " + tracker.LogProgress())
	if err := tracker.WriteToFile(a.cfg.MetricsPath, terminationReason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", a.cfg.MetricsPath)
	}

	if run == nil {
		return runErr
	}
	if errors.Is(runErr, context.Canceled) {
		logrus.Warn("Interrupted: showing partial results")
		runErr = nil
	}

	printRun(os.Stdout, run, a.cfg.HighlightRank)

	exports := []struct {
		path  string
		write func(io.Writer) error
	}{
		{*resultsCSV, func(w io.Writer) error { return report.WriteResultsCSV(w, run) }},
		{*skippedCSV, func(w io.Writer) error { return report.WriteSkippedCSV(w, run) }},
		{*xlsx, func(w io.Writer) error { return report.WriteXLSX(w, run, a.cfg.HighlightRank) }},
	}
	for _, e := range exports {
		if e.path == "" {
			continue
		}
		if err := writeFile(e.path, e.write); err != nil {
			return err
		}
		logrus.Infof("Wrote %s", e.path)
	}

	return runErr
}

func recheck(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("recheck")
	var pub publisherFlags
	pub.register(fs)
	domain := fs.String("domain", "", "skipped domain to re-evaluate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := pub.validate(); err != nil {
		return err
	}

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	f := finder.NewFinder(a.cfg, a.fetcher, a.table(), a.history, nil)
	_, out, err := f.Recheck(ctx, pub.name, pub.id, *domain)
	if err != nil {
		return err
	}

	if out.Opportunity != nil {
		fmt.Printf("%s now qualifies at rank %d and moved to results\n", out.Opportunity.Domain, out.Opportunity.Rank)
	} else {
		fmt.Printf("%s is still skipped: %s\n", out.Skip.Domain, out.Skip.Message())
	}
	return nil
}

func annotate(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("annotate")
	var pub publisherFlags
	pub.register(fs)
	domain := fs.String("domain", "", "result domain to annotate")
	note := fs.String("note", "", "free-text note, empty clears it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := pub.validate(); err != nil {
		return err
	}

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	f := finder.NewFinder(a.cfg, a.fetcher, nil, a.history, nil)
	if _, err := f.Annotate(pub.name, pub.id, *domain, *note); err != nil {
		return err
	}
	fmt.Printf("Note saved for %s\n", *domain)
	return nil
}

func history(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("history")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	runs, err := a.history.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PUBLISHER\tID\tOPPORTUNITIES\tSKIPPED\tUPDATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.PublisherName, r.PublisherID, r.Opportunities, r.Skipped,
			r.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func export(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("export")
	var pub publisherFlags
	pub.register(fs)
	format := fs.String("format", "csv", "csv, skipped, html or xlsx")
	out := fs.String("out", "", "output file; stdout when empty (not for xlsx)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := pub.validate(); err != nil {
		return err
	}

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	run, err := finder.NewFinder(a.cfg, a.fetcher, nil, a.history, nil).Load(pub.name, pub.id)
	if err != nil {
		return err
	}

	var write func(io.Writer) error
	switch *format {
	case "csv":
		write = func(w io.Writer) error { return report.WriteResultsCSV(w, run) }
	case "skipped":
		write = func(w io.Writer) error { return report.WriteSkippedCSV(w, run) }
	case "html":
		write = func(w io.Writer) error { return report.RenderHTML(w, run, a.cfg.HighlightRank) }
	case "xlsx":
		if *out == "" {
			return errors.New("xlsx export needs -out")
		}
		write = func(w io.Writer) error { return report.WriteXLSX(w, run, a.cfg.HighlightRank) }
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	if *out == "" {
		return write(os.Stdout)
	}
	return writeFile(*out, write)
}

func email(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("email")
	var pub publisherFlags
	pub.register(fs)
	to := fs.String("to", "", "recipient username; the domain comes from email.recipient_domain")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := pub.validate(); err != nil {
		return err
	}

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	run, err := finder.NewFinder(a.cfg, a.fetcher, nil, a.history, nil).Load(pub.name, pub.id)
	if err != nil {
		return err
	}

	creds, err := notify.CredentialsFromEnv(a.cfg.Email)
	if err != nil {
		return err
	}

	mailer := notify.NewMailer(a.cfg.Email, creds, a.cfg.HighlightRank)
	msg, err := mailer.Compose(run, *to)
	if err != nil {
		return err
	}
	if err := mailer.Send(ctx, msg); err != nil {
		return err
	}

	recipient, _ := mailer.Recipient(*to)
	fmt.Printf("Email sent to %s\n", recipient)
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

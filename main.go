package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// stringList collects a repeatable string flag
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	query          string
	queryFile      string
	saveQuery      string
	site           string
	target         string
	categories     string
	template       int
	operators      stringList
	configPath     string
	dbPath         string
	feedPath       string
	apiKey         string
	cseID          string
	proxy          string
	rps            float64
	daily          int
	safe           bool
	partial        bool
	enrich         bool
	noHistory      bool
	listCategories bool
	listTemplates  bool
	history        int
	showRun        string
	validate       bool
	saveCreds      bool
	debug          bool
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&opts.query, "q", "", "manual query to run")
	fs.StringVar(&opts.queryFile, "query-file", "", "read the manual query from this text file")
	fs.StringVar(&opts.saveQuery, "save-query", "", "save the composed manual query to this text file")
	fs.StringVar(&opts.site, "site", "", "restrict the manual query to this site")
	fs.StringVar(&opts.target, "target", "", "target name or domain for auto dorking")
	fs.StringVar(&opts.categories, "categories", "all", "comma separated category ids for auto dorking, or \"all\"")
	fs.IntVar(&opts.template, "template", 0, "use built-in template N (1-based) as the manual query")
	fs.Var(&opts.operators, "op", "append an operator to the manual query, e.g. -op filetype:pdf (repeatable)")
	fs.StringVar(&opts.configPath, "config", "", "path to the JSON config file")
	fs.StringVar(&opts.dbPath, "db", "", "path to the history database")
	fs.StringVar(&opts.feedPath, "feed", "", "write the results as an Atom feed to this file")
	fs.StringVar(&opts.apiKey, "api-key", "", "Google API key")
	fs.StringVar(&opts.cseID, "cse-id", "", "Custom Search Engine ID")
	fs.StringVar(&opts.proxy, "proxy", "", "[protocol://]host[:port] proxy for API requests")
	fs.Float64Var(&opts.rps, "rps", 0, "maximum requests per second")
	fs.IntVar(&opts.daily, "daily", 0, "maximum requests per UTC day")
	fs.BoolVar(&opts.safe, "safe", false, "enable SafeSearch")
	fs.BoolVar(&opts.partial, "partial", false, "keep results gathered before a failure")
	fs.BoolVar(&opts.enrich, "enrich", false, "fill empty descriptions from page metadata")
	fs.BoolVar(&opts.noHistory, "no-history", false, "do not record runs or quota usage")
	fs.BoolVar(&opts.listCategories, "list-categories", false, "list dork categories and exit")
	fs.BoolVar(&opts.listTemplates, "list-templates", false, "list built-in query templates and exit")
	fs.IntVar(&opts.history, "history", 0, "show the N most recent runs and exit")
	fs.StringVar(&opts.showRun, "show-run", "", "print the stored results of a run ID and exit")
	fs.BoolVar(&opts.validate, "validate", false, "validate the API credentials and exit")
	fs.BoolVar(&opts.saveCreds, "save-credentials", false, "validate and store the API credentials")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.history < 0 {
		return nil, fmt.Errorf("%w: -history must not be negative", ErrInvalidInput)
	}
	return opts, nil
}

// applyOverrides lets command line flags win over the config file and environment
func (o *options) applyOverrides(config *Config) {
	if o.apiKey != "" {
		config.APIKey = o.apiKey
	}
	if o.cseID != "" {
		config.CSEID = o.cseID
	}
	if o.proxy != "" {
		config.Proxy = o.proxy
	}
	if o.dbPath != "" {
		config.Database = o.dbPath
	}
	if o.rps > 0 {
		config.RequestsPerSecond = o.rps
	}
	if o.daily > 0 {
		config.DailyQuota = o.daily
	}
	if o.safe {
		config.SafeSearch = true
	}
	if o.partial {
		config.ReturnPartial = true
	}
}

// parseOperatorArg splits "filetype:pdf" into the longest matching operator and its value
func parseOperatorArg(arg string) (string, string, error) {
	arg = strings.TrimSpace(arg)
	best := ""
	for _, op := range Operators {
		if strings.HasPrefix(arg, op) && len(op) > len(best) {
			best = op
		}
	}
	if best == "" {
		return "", "", fmt.Errorf("%w: unknown operator in %q", ErrInvalidInput, arg)
	}
	value := strings.TrimSpace(strings.TrimPrefix(arg, best))
	if value == "" {
		return "", "", fmt.Errorf("%w: operator %q needs a value", ErrInvalidInput, best)
	}
	// Word operators are separated from their operand
	if best == "OR" || best == "AND" {
		best += " "
	}
	return best, value, nil
}

// loadQueryFile reads a query saved with -save-query
func loadQueryFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read query file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func saveQueryFile(path, query string) error {
	if err := os.WriteFile(path, []byte(query+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to save query file: %w", err)
	}
	return nil
}

// manualFlags names the manual-mode flags present on the command line
func (o *options) manualFlags() []string {
	var set []string
	if o.query != "" {
		set = append(set, "-q")
	}
	if o.queryFile != "" {
		set = append(set, "-query-file")
	}
	if o.saveQuery != "" {
		set = append(set, "-save-query")
	}
	if o.template > 0 {
		set = append(set, "-template")
	}
	if len(o.operators) > 0 {
		set = append(set, "-op")
	}
	if o.site != "" {
		set = append(set, "-site")
	}
	return set
}

// buildBatch turns the command line into a query batch
func buildBatch(o *options) ([]Query, string, string, error) {
	if o.target != "" {
		if manual := o.manualFlags(); len(manual) > 0 {
			return nil, "", "", fmt.Errorf("%w: -target cannot be combined with %s", ErrInvalidInput, strings.Join(manual, ", "))
		}
		enabled, err := ParseCategoryList(o.categories)
		if err != nil {
			return nil, "", "", err
		}
		generated, err := GenerateQueries(o.target, enabled)
		if err != nil {
			return nil, "", "", err
		}
		return generated, "auto", strings.TrimSpace(o.target), nil
	}

	sources := 0
	for _, set := range []bool{o.query != "", o.queryFile != "", o.template > 0} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return nil, "", "", fmt.Errorf("%w: use only one of -q, -query-file and -template", ErrInvalidInput)
	}

	query := o.query
	if o.queryFile != "" {
		loaded, err := loadQueryFile(o.queryFile)
		if err != nil {
			return nil, "", "", err
		}
		query = loaded
	}
	if o.template > 0 {
		tpl, err := TemplateQuery(o.template - 1)
		if err != nil {
			return nil, "", "", err
		}
		query = tpl
	}
	for _, arg := range o.operators {
		op, value, err := parseOperatorArg(arg)
		if err != nil {
			return nil, "", "", err
		}
		query = AppendOperator(query, op, value)
	}

	batch, err := ManualQuery(query, o.site)
	if err != nil {
		return nil, "", "", err
	}
	if o.saveQuery != "" {
		if err := saveQueryFile(o.saveQuery, strings.TrimSpace(query)); err != nil {
			return nil, "", "", err
		}
	}
	return batch, "manual", normalizeSite(o.site), nil
}

func printCategories(w io.Writer) {
	for _, c := range Categories() {
		fmt.Fprintf(w, "%-16s %-26s %s\n", c.ID, c.Label, c.Template)
	}
}

func printTemplates(w io.Writer) {
	for i, t := range Templates {
		fmt.Fprintf(w, "%2d. %s (%s)\n", i+1, t.Label, t.Query)
	}
}

func printRuns(w io.Writer, runs []RunRecord) {
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-6s %-9s queries=%d results=%d %s\n",
			r.StartedAt.Format(time.DateTime), r.ID, r.Mode, r.Status, r.QueryCount, r.ResultCount, r.Target)
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", r.Error)
		}
	}
}

// printResults writes one block per result
func printResults(w io.Writer, results []ResultRecord) {
	for _, r := range results {
		fmt.Fprintf(w, "%s\n%s\n%s\n[%s] %s\n\n", r.Title, r.URL, r.Description, r.Category, r.Timestamp)
	}
}

// runStatus maps a run error to the status stored in history
func runStatus(err error) string {
	switch {
	case err == nil:
		return StateCompleted.String()
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return StateFailed.String()
	}
}

func openHistory(config *Config) *sql.DB {
	path, err := config.databasePath()
	if err != nil {
		log.WithError(err).Warn("History disabled")
		return nil
	}
	db, err := openDB(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("History disabled")
		return nil
	}
	return db
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) int {
	if opts.listCategories {
		printCategories(stdout)
		return 0
	}
	if opts.listTemplates {
		printTemplates(stdout)
		return 0
	}

	config := LoadConfig(opts.configPath)
	opts.applyOverrides(config)

	if opts.history > 0 {
		db := openHistory(config)
		if db == nil {
			return 1
		}
		defer func() { _ = db.Close() }()
		runs, err := listRuns(db, opts.history)
		if err != nil {
			log.WithError(err).Error("Failed to list runs")
			return 1
		}
		printRuns(stdout, runs)
		return 0
	}

	if opts.showRun != "" {
		db := openHistory(config)
		if db == nil {
			return 1
		}
		defer func() { _ = db.Close() }()
		results, err := getRunResults(db, opts.showRun)
		if err != nil {
			log.WithError(err).WithField("run_id", opts.showRun).Error("Failed to load run results")
			return 1
		}
		printResults(stdout, results)
		return 0
	}

	store, err := NewFileCredentialStore("")
	if err != nil {
		log.WithError(err).Warn("Credential store unavailable")
	}
	var credStore CredentialStore
	if store != nil {
		credStore = store
	}

	creds, err := resolveCredentials(config, credStore)
	if err != nil {
		log.WithError(err).WithField("env", []string{envAPIKey, envCSEID}).Error("Configure API credentials first")
		return 1
	}

	httpClient, err := buildHTTPClient(config.Proxy)
	if err != nil {
		log.WithError(err).Error("Invalid proxy")
		return 1
	}
	client, err := NewGoogleClient(creds,
		WithBaseURL(config.APIURL),
		WithHTTPClient(httpClient),
		WithSafeSearch(config.SafeSearch))
	if err != nil {
		log.WithError(err).Error("Failed to create search client")
		return 1
	}

	if opts.validate || opts.saveCreds {
		var ok bool
		var msg string
		if opts.saveCreds && credStore != nil {
			ok, msg = validateAndSave(ctx, credStore, client, creds)
		} else {
			ok, msg = client.Validate(ctx)
		}
		fmt.Fprintln(stdout, msg)
		if !ok {
			return 1
		}
		return 0
	}

	batch, mode, target, err := buildBatch(opts)
	if err != nil {
		log.WithError(err).Error("Cannot build query batch")
		return 1
	}
	if mode == "auto" {
		fmt.Fprintf(stderr, "Generated %d dorks for target: %s\n", len(batch), target)
		for i, q := range batch {
			fmt.Fprintf(stderr, "%d. %s\n", i+1, q.Text)
		}
	}

	var db *sql.DB
	if !opts.noHistory {
		db = openHistory(config)
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	limiter := NewRateLimiter(config.RequestsPerSecond, config.DailyQuota)
	if db != nil {
		now := time.Now()
		if used, err := loadQuotaUsage(db, now); err != nil {
			log.WithError(err).Warn("Failed to load quota usage")
		} else {
			limiter.Restore(now, used)
		}
	}

	policy := DiscardOnFailure
	if config.ReturnPartial {
		policy = ReturnPartial
	}
	executor := NewExecutor(client, limiter, WithPolicy(policy))

	record := newRunRecord(mode, target, len(batch))
	job := executor.Start(ctx, batch)
	for pct := range job.Progress() {
		fmt.Fprintf(stderr, "\rSearching... %3d%%", pct)
	}
	outcome := <-job.Done()
	fmt.Fprintln(stderr)

	if db != nil {
		snap := limiter.Snapshot()
		if err := saveQuotaUsage(db, snap.CurrentDay, snap.CountToday); err != nil {
			log.WithError(err).Warn("Failed to persist quota usage")
		}
		record.Status = runStatus(outcome.Err)
		if outcome.Err != nil {
			record.Error = outcome.Err.Error()
		}
		record.FinishedAt = time.Now()
		if err := saveRun(db, record, outcome.Results); err != nil {
			log.WithError(err).Warn("Failed to store run")
		}
	}

	results := outcome.Results
	if opts.enrich && len(results) > 0 {
		if db != nil {
			if err := cleanupExpiredOpenGraphCache(db); err != nil {
				log.WithError(err).Warn("Failed to clean OpenGraph cache")
			}
		}
		if enriched, err := enrichResults(ctx, db, NewOpenGraphFetcher(), results); err != nil {
			log.WithError(err).Warn("Enrichment interrupted")
		} else {
			results = enriched
		}
	}

	printResults(stdout, results)

	if opts.feedPath != "" && len(results) > 0 {
		title := fmt.Sprintf("Dork results: %s", target)
		if target == "" {
			title = "Dork results"
		}
		atom, err := generateResultFeed(title, results, time.Now())
		if err != nil {
			log.WithError(err).Error("Failed to generate feed")
			return 1
		}
		if err := os.WriteFile(opts.feedPath, []byte(atom), 0o644); err != nil {
			log.WithError(err).WithField("path", opts.feedPath).Error("Error writing feed to file")
			return 1
		}
		log.WithFields(log.Fields{
			"count":    len(results),
			"filename": opts.feedPath,
		}).Info("Feed saved")
	}

	if outcome.Err != nil {
		log.WithError(outcome.Err).Error("Search failed")
		if errors.Is(outcome.Err, ErrCancelled) {
			return 130
		}
		return 1
	}

	fmt.Fprintf(stderr, "Completed. %d results\n", len(results))
	return 0
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	// Configure log
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetLevel(log.WarnLevel) // Only show warnings and above by default
	level := slog.LevelWarn
	if opts.debug {
		log.SetLevel(log.DebugLevel)
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// First signal cancels the run, a second one exits immediately
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		count := 0
		for sig := range sigCh {
			count++
			if count == 1 {
				log.WithField("signal", sig.String()).Warn("Caught signal, stopping after the current request (repeat to force)")
				cancel()
			} else {
				os.Exit(130)
			}
		}
	}()

	code := run(ctx, opts, os.Stdout, os.Stderr)
	signal.Stop(sigCh)
	cancel()
	os.Exit(code)
}

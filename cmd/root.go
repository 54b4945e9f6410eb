package cmd

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/cli/go-gh/v2/pkg/auth"
	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/jparise/gh-sift/internal/clone"
	"github.com/jparise/gh-sift/internal/config"
	"github.com/jparise/gh-sift/internal/crawler"
	"github.com/jparise/gh-sift/internal/github"
	"github.com/jparise/gh-sift/internal/logging"
	"github.com/jparise/gh-sift/internal/scanner"
	"github.com/jparise/gh-sift/internal/search"
	"github.com/jparise/gh-sift/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// colorMode represents when to use colored output.
type colorMode string

const (
	colorAuto   colorMode = "auto"
	colorAlways colorMode = "always"
	colorNever  colorMode = "never"
)

// String is used both by fmt.Print and by Cobra in help text.
func (c *colorMode) String() string {
	return string(*c)
}

// Set must have pointer receiver to validate and set the value.
func (c *colorMode) Set(v string) error {
	switch v {
	case "auto", "always", "never":
		*c = colorMode(v)
		return nil
	default:
		return fmt.Errorf("must be one of \"auto\", \"always\", or \"never\"")
	}
}

// Type is only used in help text.
func (c *colorMode) Type() string {
	return "colorMode"
}

var (
	version = "dev"

	// Flags. Settings shared with the config file only override it when
	// given explicitly.
	configPath     string
	color          = colorAuto
	hyperlinks     bool
	verbose        bool
	listRules      bool
	ruleNames      []string
	rulesFile      string
	excludes       []string
	maxExcerpt     int
	maxFileSize    string
	languages      []string
	topics         []string
	org            string
	user           string
	stars          string
	forks          string
	pushedAfter    string
	maxSize        string
	before         string
	maxEmptyMonths int
	jobs           int
	stateDir       string
	logDir         string
	workDir        string
	noCache        bool
	cacheDir       string
	cacheTTL       time.Duration
	searchInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "gh-sift [flags]",
	Short: "Scan GitHub repositories for vulnerable code patterns",
	Long: `gh-sift searches GitHub for repositories, one month of creation dates at
a time starting from the newest, clones each match and scans it with a set of
static patterns for common vulnerabilities.

Processed repositories are recorded per rule set, so an interrupted run
resumes where it left off. Findings are printed and appended to a log.

Settings are read from ~/.config/gh-sift/config.yaml (or --config), then from
GH_SIFT_* environment variables (e.g. GH_SIFT_CRAWL_JOBS), then from flags.

Ranges use a..b syntax. Dates accept YYYY-MM-DD, RFC3339, or a duration
before now such as 30d or 12months.

Examples:
  gh sift --rules php-sqlinj,php-xss --stars 75..150 --pushed-after 12months
  gh sift --rules cpp-bo --language c --max-size 10M -j 16
  gh sift --org example --before 2020-01-01 --max-empty-months 6
  gh sift --list-rules`,
	Version: version,
	Args:    cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("jobs") && (jobs < 1 || jobs > 100) {
			return fmt.Errorf("--jobs must be between 1 and 100, got %d", jobs)
		}
		if cmd.Flags().Changed("max-empty-months") && maxEmptyMonths < 0 {
			return fmt.Errorf("--max-empty-months cannot be negative")
		}
		if org != "" && user != "" {
			return fmt.Errorf("--org and --user cannot be combined")
		}
		return nil
	},
	RunE: run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "",
		"config file (default ~/.config/gh-sift/config.yaml)")
	f.Var(&color, "color",
		"colorize output: auto, always, never")
	f.BoolVar(&hyperlinks, "hyperlink", false,
		"link findings to their source on GitHub")
	f.BoolVarP(&verbose, "verbose", "v", false,
		"log search and worker progress")
	f.BoolVar(&listRules, "list-rules", false,
		"list the available rules and exit")

	f.StringSliceVar(&ruleNames, "rules", nil,
		"rules to scan for (default: all)")
	f.StringVar(&rulesFile, "rules-file", "",
		"YAML rule file replacing the built-in rules")
	f.StringSliceVarP(&excludes, "exclude", "E", nil,
		"exclude file patterns (can be specified multiple times)")
	f.IntVar(&maxExcerpt, "max-excerpt", scanner.DefaultMaxExcerpt,
		"maximum characters shown per finding")
	f.StringVar(&maxFileSize, "max-file-size", "1M",
		"skip files larger than this (e.g., 500k, 2M)")

	f.StringSliceVar(&languages, "language", nil,
		"repository languages (default: the languages of the selected rules)")
	f.StringSliceVar(&topics, "topic", nil,
		"repository topics")
	f.StringVar(&org, "org", "",
		"only repositories owned by this organization")
	f.StringVar(&user, "user", "",
		"only repositories owned by this user")
	f.StringVar(&stars, "stars", "",
		"star count range (e.g., 75..150)")
	f.StringVar(&forks, "forks", "",
		"fork count range (e.g., 0..10)")
	f.StringVar(&pushedAfter, "pushed-after", "",
		"only repositories pushed after this date or duration ago")
	f.StringVar(&maxSize, "max-size", "",
		"maximum repository size (e.g., 10M)")
	f.StringVar(&before, "before", "",
		"only repositories created on or before this date (default: today)")
	f.IntVar(&maxEmptyMonths, "max-empty-months", 0,
		"consecutive months without results tolerated before stopping")

	f.IntVarP(&jobs, "jobs", "j", 8,
		"concurrent clone and scan workers")
	f.StringVar(&stateDir, "state-dir", "processed",
		"directory of processed repository lists")
	f.StringVar(&logDir, "log-dir", "logs",
		"directory of findings logs")
	f.StringVar(&workDir, "work-dir", "",
		"directory for temporary checkouts (default: system temp dir)")

	f.BoolVar(&noCache, "no-cache", false,
		"bypass cache, always fetch fresh data")
	f.StringVar(&cacheDir, "cache-dir", "",
		"override cache directory location")
	f.DurationVar(&cacheTTL, "cache-ttl", time.Hour,
		"cache time-to-live (e.g., 1h, 30m, 24h)")
	f.DurationVar(&searchInterval, "search-interval", 2*time.Second,
		"minimum time between search requests")
}

func Execute() error {
	return rootCmd.Execute()
}

// parseByteSize parses a human-readable size string into bytes.
// Supports formats like "1M", "500k", "1.5G", "1024" (plain bytes).
// Units are case-insensitive and use binary (1024-based) multipliers.
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Find where the unit starts (last non-digit character)
	i := len(s) - 1
	for i >= 0 && !unicode.IsDigit(rune(s[i])) && s[i] != '.' {
		i--
	}

	// Parse the number part
	numStr := s[:i+1]
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative")
	}

	// Parse the unit suffix
	unit := strings.ToLower(strings.TrimSpace(s[i+1:]))
	var multiplier float64
	switch unit {
	case "", "b":
		multiplier = 1
	case "k", "kb", "kib":
		multiplier = 1024
	case "m", "mb", "mib":
		multiplier = 1024 * 1024
	case "g", "gb", "gib":
		multiplier = 1024 * 1024 * 1024
	case "t", "tb", "tib":
		multiplier = 1024 * 1024 * 1024 * 1024
	case "p", "pb", "pib":
		multiplier = 1024 * 1024 * 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown unit %q (supported: b, k, m, g, t, p)", unit)
	}

	result := num * multiplier
	if result > float64(math.MaxInt64) {
		return 0, fmt.Errorf("size too large (exceeds max int64)")
	}

	return int64(result), nil
}

// applyFlags copies explicitly given flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	set("rules", func() { cfg.Scan.Rules = ruleNames })
	set("rules-file", func() { cfg.Scan.RulesFile = rulesFile })
	set("exclude", func() { cfg.Scan.Excludes = excludes })
	set("max-excerpt", func() { cfg.Scan.MaxExcerpt = maxExcerpt })
	set("max-file-size", func() { cfg.Scan.MaxFile = maxFileSize })

	set("language", func() { cfg.Search.Languages = languages })
	set("topic", func() { cfg.Search.Topics = topics })
	set("org", func() { cfg.Search.Org = org })
	set("user", func() { cfg.Search.User = user })
	set("stars", func() { cfg.Search.Stars = stars })
	set("forks", func() { cfg.Search.Forks = forks })
	set("pushed-after", func() { cfg.Search.PushedAfter = pushedAfter })
	set("max-size", func() { cfg.Search.MaxSize = maxSize })
	set("before", func() { cfg.Search.Before = before })
	set("max-empty-months", func() { cfg.Search.MaxEmptyMonths = maxEmptyMonths })

	set("jobs", func() { cfg.Crawl.Jobs = jobs })
	set("state-dir", func() { cfg.Crawl.StateDir = stateDir })
	set("log-dir", func() { cfg.Crawl.LogDir = logDir })
	set("work-dir", func() { cfg.Crawl.WorkDir = workDir })

	set("no-cache", func() { cfg.GitHub.NoCache = noCache })
	set("cache-dir", func() { cfg.GitHub.CacheDir = cacheDir })
	set("cache-ttl", func() { cfg.GitHub.CacheTTL = cacheTTL })
	set("search-interval", func() { cfg.GitHub.SearchInterval = searchInterval })
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	rules, err := loadRules(cfg.Scan)
	if err != nil {
		return err
	}
	if listRules {
		for _, rule := range rules {
			fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", rule.Name, rule.Description)
		}
		return nil
	}

	var colorize bool
	switch color {
	case colorAlways:
		colorize = true
	case colorNever:
		colorize = false
	case colorAuto:
		terminal := term.FromEnv()
		colorize = terminal.IsColorEnabled()
	}
	out := crawler.NewOutput(cmd.OutOrStdout(), cmd.ErrOrStderr(), colorize, hyperlinks)

	logger := logging.New(cmd.ErrOrStderr(), verbose)
	defer func() { _ = logger.Sync() }()

	now := time.Now()
	filter, err := buildFilter(cfg.Search, rules, now)
	if err != nil {
		return err
	}
	var beforeDate time.Time
	if cfg.Search.Before != "" {
		if beforeDate, err = parseDate("before", cfg.Search.Before, now); err != nil {
			return err
		}
	}

	scanOpts, err := buildScanOptions(cfg.Scan)
	if err != nil {
		return err
	}
	scanOpts.Logger = logger.Named("scanner")
	sc, err := scanner.New(rules, scanOpts)
	if err != nil {
		return err
	}

	names := scanner.Names(rules)
	statePath := state.Path(cfg.Crawl.StateDir, names, ".txt")
	ignored, err := state.Load(statePath)
	if err != nil {
		return err
	}
	stateLog, err := state.OpenLog(statePath)
	if err != nil {
		return err
	}
	defer stateLog.Close()
	findingsLog, err := state.OpenFindings(state.Path(cfg.Crawl.LogDir, names, ".log"))
	if err != nil {
		return err
	}
	defer findingsLog.Close()

	client, err := github.NewClient(github.ClientOptions{
		DisableCache:   cfg.GitHub.NoCache,
		CacheDir:       cfg.GitHub.CacheDir,
		CacheTTL:       cfg.GitHub.CacheTTL,
		SearchInterval: cfg.GitHub.SearchInterval,
	})
	if err != nil {
		return err
	}

	dispenser, err := search.NewDispenser(search.NewGitHubSearcher(client), filter, ignored, search.Options{
		Before:          beforeDate,
		MaxEmptyWindows: cfg.Search.MaxEmptyMonths,
		Logger:          logger.Named("search"),
	})
	if err != nil {
		return err
	}

	host, _ := auth.DefaultHost()
	token, _ := auth.TokenForHost(host)
	processor := &crawler.RepoProcessor{
		Cloner:  &clone.Cloner{BaseDir: cfg.Crawl.WorkDir, Depth: 1, Token: token},
		Scanner: sc,
	}

	logger.Info("starting crawl",
		zap.Strings("rules", names),
		zap.Int("jobs", cfg.Crawl.Jobs),
		zap.Int("already_processed", len(ignored)),
		zap.String("state", statePath))

	summary, err := crawler.Run(ctx, dispenser, processor, crawler.Options{
		Jobs:     cfg.Crawl.Jobs,
		State:    stateLog,
		Findings: findingsLog,
		Output:   out,
		Logger:   logger.Named("crawler"),
	})

	stats := dispenser.Stats()
	out.Infof("Processed %d repositories (%d failed, %d skipped as already processed) across %d months: %d findings in %s",
		summary.Processed, summary.Failed, stats.Skipped, stats.Windows, summary.Findings, summary.Elapsed.Round(time.Second))
	if summary.Interrupted {
		out.Infof("Interrupted; run again with the same rules to resume")
	}

	if err != nil {
		return err
	}
	if summary.Processed > 0 && summary.Failed == summary.Processed {
		return fmt.Errorf("failed to process all %d repositories", summary.Processed)
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/google/subcommands"

	"equities-daily/internal/app"
	"equities-daily/internal/crawl"
	"equities-daily/internal/provider"
	"equities-daily/internal/slogx"
	"equities-daily/internal/universe"
)

// App holds application dependencies built by Wire.
type App struct {
	Config   *app.Config
	Universe *app.Universe
	Fetcher  provider.Fetcher
	Runner   *crawl.Runner
}

func init() {
	slog.SetDefault(slogx.NewDefault("info"))
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&ingestCmd{}, "")
	commander.Register(&serveCmd{}, "")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := commander.Execute(ctx)
	stop()
	os.Exit(int(code))
}

func initialize() (*App, subcommands.ExitStatus) {
	a, err := InitializeApp()
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return nil, subcommands.ExitFailure
	}
	if err := os.MkdirAll(a.Config.DataDir, 0755); err != nil {
		slog.Error("failed to create data dir", "error", err)
		a.Fetcher.Close()
		return nil, subcommands.ExitFailure
	}
	slog.Info("using data provider", "provider", a.Fetcher.GetName(), "dir", a.Config.DataDir, "workers", a.Config.Workers)
	return a, subcommands.ExitSuccess
}

type ingestCmd struct {
	symbols string
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "fetch, merge and store daily bars once" }
func (*ingestCmd) Usage() string {
	return `ingest [-symbols SPY,QQQM]

  Runs one ingestion over the universe file, or over -symbols when given.
  Exits 1 when any symbol failed; every symbol is attempted regardless.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbols, "symbols", "", "comma separated canonical symbols (default: whole universe)")
}

func (c *ingestCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, status := initialize()
	if a == nil {
		return status
	}
	defer a.Fetcher.Close()

	symbols, err := selectSymbols(a.Universe.Symbols, c.symbols)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}

	sum := app.RunOnce(ctx, a.Config, a.Runner, symbols)
	fmt.Println(sum)
	if !sum.OK() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "ingest now, then daily at RUN_HOUR:RUN_MINUTE UTC" }
func (*serveCmd) Usage() string {
	return `serve

  Runs an ingestion at startup and then once a day until SIGINT/SIGTERM.
`
}

func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (*serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, status := initialize()
	if a == nil {
		return status
	}
	defer a.Fetcher.Close()

	slog.Info("schedule", "hour", a.Config.RunHour, "minute", a.Config.RunMinute, "symbols", len(a.Universe.Symbols))
	app.RunFlow(ctx, a.Config, a.Runner, a.Universe.Symbols)
	return subcommands.ExitSuccess
}

// selectSymbols returns all when list is empty, else the sanitized,
// de-duplicated symbols of list.
func selectSymbols(all []string, list string) ([]string, error) {
	if strings.TrimSpace(list) == "" {
		return all, nil
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range strings.Split(list, ",") {
		sym, ok := universe.Sanitize(s)
		if !ok {
			return nil, fmt.Errorf("invalid symbol %q", s)
		}
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out, nil
}

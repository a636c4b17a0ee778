// Command baccarat deals provably fair baccarat shoes, scans nonce ranges for
// road patterns and serves the HTTP API.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/MJE43/baccarat-roads/internal/api"
	"github.com/MJE43/baccarat-roads/internal/config"
	"github.com/MJE43/baccarat-roads/internal/engine"
	"github.com/MJE43/baccarat-roads/internal/livehttp"
	"github.com/MJE43/baccarat-roads/internal/roads"
	"github.com/MJE43/baccarat-roads/internal/scan"
	"github.com/MJE43/baccarat-roads/internal/scriptstore"
	"github.com/MJE43/baccarat-roads/internal/store"
	"github.com/MJE43/baccarat-roads/internal/table"
)

const usage = `usage: baccarat <command> [flags]

commands:
  serve   run the HTTP API
  deal    deal one shoe and print its roads
  scan    scan a nonce range for a road metric
  version print build information`

func main() {
	logger := slog.New(pterm.NewSlogHandler(&pterm.DefaultLogger))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(logger, os.Args[2:])
	case "deal":
		err = runDeal(os.Args[2:])
	case "scan":
		err = runScan(logger, os.Args[2:])
	case "version":
		v := api.GetVersionInfo()
		commit := cmp.Or(v.GitCommit, "unknown")
		if v.Dirty {
			commit += "+dirty"
		}
		pterm.Info.Printfln("%s (commit %s, built %s, %s)", v.EngineVersion, commit, cmp.Or(v.BuildTime, "unknown"), v.GoVersion)
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func runServe(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to the YAML config")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	apiLogger := slog.NewLogLogger(logger.Handler(), slog.LevelInfo)

	opts := []api.Option{api.WithLogger(apiLogger)}

	var db store.DB
	if cfg.Database.Path != "" {
		sqlite, err := store.NewSQLiteDB(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		if err := sqlite.Migrate(); err != nil {
			return err
		}
		db = sqlite

		sessions, err := scriptstore.New(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer sessions.Close()
		if err := sessions.Migrate(); err != nil {
			return err
		}
		opts = append(opts, api.WithSessions(sessions))
	} else {
		logger.Warn("database.path is empty, scan runs and strategy sessions will not be persisted")
	}

	if cfg.Live.Path != "" {
		live, err := livehttp.NewModule(cfg.Live.Path, cfg.Live.Token, cfg.Roads.Columns, apiLogger)
		if err != nil {
			return err
		}
		defer live.Close()
		opts = append(opts, api.WithLive(live.Handler()))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(cfg, db, opts...).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "live", cfg.Live.Path != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func seedFlags(fs *flag.FlagSet) (*string, *string) {
	server := fs.String("server", "", "server seed (required)")
	client := fs.String("client", "", "client seed (required)")
	return server, client
}

func runDeal(args []string) error {
	fs := flag.NewFlagSet("deal", flag.ExitOnError)
	server, client := seedFlags(fs)
	nonce := fs.Uint64("nonce", 1, "nonce of the shoe")
	decks := fs.Int("decks", 8, "decks in the shoe")
	reshuffle := fs.Int("reshuffle-at", table.DefaultConfig().ReshuffleAt, "stop dealing when this many cards remain")
	hands := fs.Int("hands", 0, "hands to deal; zero deals the whole shoe")
	columns := fs.Int("columns", 40, "road columns to print")
	fs.Parse(args)

	if *server == "" || *client == "" {
		return errors.New("deal: -server and -client are required")
	}
	seeds := engine.Seeds{Server: *server, Client: *client}

	tbl, err := table.New(table.Config{Decks: *decks, ReshuffleAt: *reshuffle}, engine.NewShuffleSource(seeds, *nonce))
	if err != nil {
		return err
	}
	tbl = tbl.DealShoe(*hands)

	pterm.DefaultSection.Println("Shoe")
	pterm.Info.Printfln("server hash %s, client %s, nonce %d", engine.HashServerSeed(*server), *client, *nonce)
	pterm.Info.Printfln("burn card %s (%d burned), %d hands, %d of %d cards used",
		tbl.BurnCard(), tbl.Burned(), tbl.Hands(), tbl.Used(), tbl.Total())

	all := tbl.Roads(roads.WithColumns(*columns))
	renderRoads(all)
	renderSummary(all.BigRoad)
	return nil
}

func runScan(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	server, client := seedFlags(fs)
	start := fs.Uint64("start", 1, "first nonce")
	end := fs.Uint64("end", 1000, "last nonce")
	decks := fs.Int("decks", 8, "decks per shoe")
	metric := fs.String("metric", string(scan.MetricDragonTails), "metric to evaluate")
	op := fs.String("op", string(scan.OpGreaterEqual), "comparison: eq gt ge lt le between outside")
	val := fs.Float64("val", 1, "target value")
	val2 := fs.Float64("val2", 0, "upper bound for between/outside")
	limit := fs.Int("limit", 50, "maximum hits to report")
	timeout := fs.Int("timeout-ms", 30000, "scan timeout in milliseconds")
	workers := fs.Int("workers", 0, "worker goroutines; zero uses GOMAXPROCS")
	fs.Parse(args)

	if *server == "" || *client == "" {
		return errors.New("scan: -server and -client are required")
	}
	m, err := scan.ParseMetric(*metric)
	if err != nil {
		return err
	}

	scanner := scan.NewScanner(*workers)
	logger.Info("scan started", "nonces", *end-*start+1, "metric", m, "workers", scanner.Workers())

	spinner, _ := pterm.DefaultSpinner.Start("Scanning shoes...")
	result, err := scanner.Scan(context.Background(), scan.Request{
		Seeds:       engine.Seeds{Server: *server, Client: *client},
		NonceStart:  *start,
		NonceEnd:    *end,
		Decks:       *decks,
		ReshuffleAt: table.DefaultConfig().ReshuffleAt,
		Metric:      m,
		TargetOp:    scan.TargetOp(*op),
		TargetVal:   *val,
		TargetVal2:  *val2,
		Limit:       *limit,
		TimeoutMs:   *timeout,
	})
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("evaluated %d shoes, %d hits", result.Summary.TotalEvaluated, result.Summary.HitsFound))
	if result.Summary.TimedOut {
		pterm.Warning.Println("scan timed out, results are partial")
	}

	renderHits(result)
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/weegigs/wee-ledger-go/connectors/wehttp"
	"github.com/weegigs/wee-ledger-go/samples/journal"
	"github.com/weegigs/wee-ledger-go/support"
	"github.com/weegigs/wee-ledger-go/we"
)

const usage = `usage: ledger [-config file] <command> [flags]

commands:
  serve     run projections and the HTTP API
  rebuild   replay projections from the start of the log
  dump      write events as JSON lines
  stats     print storage and projection health
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ledger: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("ledger", flag.ContinueOnError)
	configPath := global.String("config", os.Getenv("LEDGER_CONFIG"), "YAML configuration file")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}

	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := support.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := support.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := InitializeApp(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	command, rest := global.Arg(0), global.Args()[1:]
	switch command {
	case "serve":
		return serve(ctx, app, rest)
	case "rebuild":
		return rebuild(ctx, app, rest, out)
	case "dump":
		return dump(ctx, app, rest, out)
	case "stats":
		return stats(ctx, app, out)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func serve(ctx context.Context, app *App, args []string) error {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := flags.String("addr", app.Config.HTTP.Addr, "listen address")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := configureRequestLog(app.Config.Log); err != nil {
		return err
	}

	provider, err := support.TracerProvider(ctx, app.Config.Telemetry, "wee-ledger")
	if err != nil {
		return err
	}
	defer func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdown)
	}()

	decoders := wehttp.CommandDecoders{}
	wehttp.Register[journal.Record](decoders)
	wehttp.Register[journal.Approve](decoders)
	wehttp.Register[journal.Reject](decoders)
	wehttp.Register[journal.Post](decoders)

	router := chi.NewRouter()
	router.Mount("/journal", wehttp.NewEntityHandler[journal.JournalEntry](app.Journal, decoders, wehttp.Logger[journal.JournalEntry](app.Log)))
	router.Mount("/", wehttp.NewLedgerHandler(wehttp.Ledger{
		Events:      app.Store,
		ReadModels:  app.ReadModels,
		Projections: app.Projections,
		Storage:     app.Env,
	}, wehttp.WithLedgerLogger(app.Log)))

	server := &http.Server{
		Addr:              *addr,
		Handler:           withLogging(wehttp.WithTelemetry(router, "ledger")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := app.Projections.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		app.Log.Info().Str("addr", *addr).Msg("listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdown)
	})

	return group.Wait()
}

func rebuild(ctx context.Context, app *App, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	name := flags.String("name", "", "projection to rebuild; all when empty")
	version := flags.Uint("version", 0, "projection version; the registered one when 0")
	if err := flags.Parse(args); err != nil {
		return err
	}

	rebuilt := 0
	for _, worker := range app.Projections.Workers() {
		if *name != "" && worker.Name() != *name {
			continue
		}
		if *version != 0 && uint(worker.Version()) != *version {
			continue
		}

		checkpoint, err := worker.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("rebuilding %s v%d: %w", worker.Name(), worker.Version(), err)
		}
		fmt.Fprintf(out, "%s v%d rebuilt to sequence %d\n", worker.Name(), worker.Version(), checkpoint)
		rebuilt++
	}

	if rebuilt == 0 {
		return fmt.Errorf("no projection named %q", *name)
	}
	return nil
}

func dump(ctx context.Context, app *App, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("dump", flag.ContinueOnError)
	from := flags.Uint64("from", 1, "first sequence")
	limit := flags.Int("limit", 0, "maximum events; all when 0")
	aggregate := flags.String("aggregate", "", "only this aggregate")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var stream we.EventStream
	if *aggregate != "" {
		stream = app.Store.AggregateStream(we.AggregateId(*aggregate), we.Sequence(*from))
	} else {
		stream = app.Store.Stream(we.Sequence(*from))
	}

	encoder := json.NewEncoder(out)
	written := 0
	for (*limit == 0 || written < *limit) && stream.Next(ctx) {
		if err := encoder.Encode(wehttp.NewEventResource(stream.Event())); err != nil {
			return err
		}
		written++
	}

	return stream.Err()
}

func stats(ctx context.Context, app *App, out io.Writer) error {
	metrics, err := app.Env.Metrics(ctx)
	if err != nil {
		return err
	}

	lags, err := app.Projections.Lags(ctx)
	if err != nil {
		return err
	}

	latest, err := app.Store.LatestSequence(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{
		"latest_sequence": latest,
		"storage":         metrics,
		"projections":     lags,
	})
}

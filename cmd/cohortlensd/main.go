// cohortlensd serves the cohort analysis API and executes queued runs.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cohortlens/cohortlens/internal/httpapi"
	"github.com/cohortlens/cohortlens/pkg/cohortlens"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/config"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/embed"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/queue"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/storage"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store/memstore"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store/sqlite"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "Config file (optional)")
		addr    = flag.String("addr", "", "Listen address (overrides config)")
	)
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := log.New(os.Stderr, "cohortlensd ", log.LstdFlags)

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	var st store.Store
	var err error
	if cfg.DatabasePath == "" {
		st = memstore.New()
	} else {
		st, err = sqlite.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return err
		}
	}

	files, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		st.Close()
		return err
	}

	var embedder embed.Provider
	switch cfg.Embedding.Provider {
	case "fake":
		embedder = embed.Fake{Dim: cfg.Embedding.FakeDim}
	default:
		embedder, err = embed.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), cfg.Embedding.BaseURL)
		if err != nil {
			st.Close()
			return err
		}
	}

	var q *queue.Queue
	app := cohortlens.New(cohortlens.Options{
		Store:         st,
		Files:         files,
		Embedder:      embedder,
		Queue:         enqueuerFunc(func(id int64) { q.Enqueue(id) }),
		DefaultModel:  cfg.Embedding.Model,
		DefaultParams: cfg.Params(),
	})
	defer app.Close()

	q = queue.New(app.Runner(), cfg.Queue.Depth)
	q.Log = logger

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: (&httpapi.Server{App: app, Log: logger}).Handler(),
	}

	eg, gctx := errgroup.WithContext(ctx)
	waitWorkers := q.Start(gctx, cfg.Queue.Workers)

	eg.Go(func() error {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			return serr
		}
		return nil
	})
	eg.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		q.Close()
		return srv.Shutdown(shutdownCtx)
	})

	err = eg.Wait()
	if werr := waitWorkers(); werr != nil && !errors.Is(werr, context.Canceled) && err == nil {
		err = werr
	}
	return err
}

type enqueuerFunc func(int64)

func (f enqueuerFunc) Enqueue(runID int64) { f(runID) }

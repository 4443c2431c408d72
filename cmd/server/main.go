package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/csg33k/catering-docgen/internal/adapters/acroform"
	"github.com/csg33k/catering-docgen/internal/adapters/httpsource"
	"github.com/csg33k/catering-docgen/internal/adapters/objectstore"
	"github.com/csg33k/catering-docgen/internal/adapters/postgres"
	sqliteadapter "github.com/csg33k/catering-docgen/internal/adapters/sqlite"
	"github.com/csg33k/catering-docgen/internal/config"
	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/generation"
	"github.com/csg33k/catering-docgen/internal/handlers"
	"github.com/csg33k/catering-docgen/internal/logger"
	"github.com/csg33k/catering-docgen/internal/ports"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	storage, filesDir, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}

	source := httpsource.New(httpsource.Options{
		Timeout:  cfg.Template.FetchTimeout,
		MaxBytes: cfg.Template.MaxBytes,
		CacheTTL: cfg.Template.CacheTTL,
	}, lg)

	gen := generation.NewGenerator(generation.Deps{
		Documents: repo,
		Templates: repo,
		Source:    source,
		Engine:    acroform.New(),
		Storage:   storage,
	}, generation.Options{Name: objectName, Log: lg})

	runner := generation.NewRunner(gen, repo, generation.RunnerOptions{
		Timeout:     cfg.Gen.Timeout,
		MaxAttempts: cfg.Gen.MaxAttempts,
		Backoff:     cfg.Gen.RetryBackoff,
		Log:         lg,
	})

	sweeper := generation.NewSweeper(repo, runner, cfg.Gen.StaleAfter, lg)
	if err := sweeper.Start(cfg.Gen.SweepSpec); err != nil {
		log.Fatalf("invalid GEN_SWEEP_SPEC %q: %v", cfg.Gen.SweepSpec, err)
	}

	h := handlers.New(repo, runner, handlers.Options{
		StaleAfter: cfg.Gen.StaleAfter,
		FilesDir:   filesDir,
		Log:        lg,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.WithCORS(h.Routes(), cfg.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// ?wait=1 generations run inside the request
		WriteTimeout: cfg.Gen.RetryBudget() + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("catering docgen running", "addr", "http://localhost:"+cfg.Port,
			"db", cfg.Database.Driver, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	if err := shutdown(srv, sweeper, runner, repo); err != nil {
		lg.Error("unclean shutdown", "err", err)
		os.Exit(1)
	}
}

// shutdown stops intake first, then lets in-flight generations finish
// before the database goes away.
func shutdown(srv *http.Server, sweeper *generation.Sweeper, runner *generation.Runner, repo ports.Repository) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := srv.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	sweeper.Stop()
	if err := runner.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := repo.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func openRepository(ctx context.Context, cfg config.Database) (ports.Repository, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.New(ctx, cfg.URL)
	default:
		slog.Info("using sqlite", "path", cfg.Path)
		return sqliteadapter.New(cfg.Path)
	}
}

// openStorage returns the storage collaborator and, for the local driver,
// the directory the API should serve under /files/.
func openStorage(ctx context.Context, cfg config.Storage) (ports.Storage, string, error) {
	switch cfg.Driver {
	case "minio":
		m, err := objectstore.NewMinio(objectstore.MinioConfig{
			Endpoint:      cfg.Minio.Endpoint,
			AccessKey:     cfg.Minio.AccessKey,
			SecretKey:     cfg.Minio.SecretKey,
			Bucket:        cfg.Minio.Bucket,
			UseSSL:        cfg.Minio.UseSSL,
			PublicBaseURL: cfg.Minio.PublicBaseURL,
		})
		if err != nil {
			return nil, "", err
		}
		bctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := m.EnsureBucket(bctx); err != nil {
			return nil, "", err
		}
		return m, "", nil
	default:
		l, err := objectstore.NewLocal(cfg.Dir, cfg.BaseURL)
		if err != nil {
			return nil, "", err
		}
		return l, l.Dir(), nil
	}
}

// objectName files PDFs by kind and month under a slug of the client or
// event name.
func objectName(doc *domain.FilledDocument, at time.Time) string {
	hint, _ := doc.FilledData.Get("contratante_nome")
	if hint == "" {
		hint, _ = doc.FilledData.Get("nome_evento")
	}
	return objectstore.ObjectName(string(doc.Kind), hint, at)
}

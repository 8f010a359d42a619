package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finance-ledger-backend/internal/api"
	"finance-ledger-backend/internal/config"
	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/ingest"
	"finance-ledger-backend/internal/ledger"
	"finance-ledger-backend/internal/logging"
	"finance-ledger-backend/internal/store"
	"finance-ledger-backend/internal/store/memstore"
	"finance-ledger-backend/internal/store/sqlstore"
)

const shutdownTimeout = 10 * time.Second

type flags struct {
	migrate     bool
	seedDemo    bool
	importFiles string
	institution string
	exportFile  string
	format      string
	cleanup     bool
	envFile     string
}

func main() {
	var f flags
	flag.BoolVar(&f.migrate, "migrate", false, "Apply database migrations and exit")
	flag.BoolVar(&f.seedDemo, "seed-demo", false, "Seed demo transactions when the ledger is empty (idempotent)")
	flag.StringVar(&f.importFiles, "import", "", "Comma-separated CSV files to import, then exit")
	flag.StringVar(&f.institution, "institution", string(ingest.Custom), "Format of the -import files: discover, schwab or custom")
	flag.StringVar(&f.exportFile, "export", "", "Export every transaction to this file, then exit")
	flag.StringVar(&f.format, "format", string(ledger.FormatCSV), "Format of -export: csv or json")
	flag.BoolVar(&f.cleanup, "cleanup", false, "Remove orphaned cost centers and spend categories, then exit")
	flag.StringVar(&f.envFile, "env-file", ".env", "Optional file of environment variables")
	flag.Parse()

	cfg, err := config.Load(f.envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{Level: cfg.Level(), JSON: cfg.LogJSON})
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, f flags, logger *slog.Logger) error {
	st, migrate, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if f.migrate {
		logger.Info("migration completed successfully")
		return nil
	}

	svc := ledger.New(st, logger, ledger.WithAutoCleanup(cfg.AutoCleanup))

	switch {
	case f.seedDemo:
		n, err := svc.SeedDemo(ctx)
		if err != nil {
			return fmt.Errorf("seeding demo data failed: %w", err)
		}
		logger.Info("demo data seeded", "transactions", n)
		return nil
	case f.importFiles != "":
		return importFiles(ctx, svc, f.importFiles, f.institution, logger)
	case f.exportFile != "":
		return exportFile(ctx, svc, f.exportFile, f.format, logger)
	case f.cleanup:
		report, err := svc.CleanupOrphans(ctx)
		if err != nil {
			return err
		}
		logger.Info("cleanup finished",
			"spend_categories_deleted", report.Deleted(store.KindSpendCategory),
			"cost_centers_deleted", report.Deleted(store.KindCostCenter),
			"failed", report.Failed())
		return nil
	}

	return serve(ctx, cfg, svc, logger)
}

// openStore returns the configured backend and a function applying its
// schema migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func() error, error) {
	var sc sqlstore.Config
	switch cfg.DataBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage, data is lost on exit")
		return memstore.New(), func() error { return nil }, nil
	case config.BackendSQLite:
		sc = sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: cfg.SQLiteDBPath}
	default:
		sc = sqlstore.Config{Driver: sqlstore.DriverPostgres, DSN: cfg.DatabaseURL}
	}
	sc.ConnectAttempts = cfg.DBConnectAttempts
	sc.ConnectDelay = cfg.DBConnectDelay

	st, err := sqlstore.Open(ctx, sc, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return st, st.Migrate, nil
}

// importFiles parses every file concurrently, then imports them one by one
// so that each file is stored entirely or not at all.
func importFiles(ctx context.Context, svc *ledger.Service, list, institution string, logger *slog.Logger) error {
	inst, err := ingest.ParseInstitution(institution)
	if err != nil {
		return err
	}
	var paths []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}

	results := make([]*ingest.Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			res, err := ingest.Parse(file, inst)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := 0
	for i, res := range results {
		for _, skipped := range res.Skipped {
			logger.Warn("row skipped", "file", paths[i], "line", skipped.Line, "error", skipped.Err)
		}
		n, err := svc.Import(ctx, res.Records)
		if err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
		logger.Info("file imported", "file", paths[i], "institution", inst, "imported", n, "skipped", len(res.Skipped))
		total += n
	}
	logger.Info("import completed", "files", len(paths), "imported", total)
	return nil
}

func exportFile(ctx context.Context, svc *ledger.Service, path, format string, logger *slog.Logger) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	n, err := svc.Export(ctx, filter.Criteria{}, ledger.ExportFormat(strings.ToLower(format)), file)
	if err != nil {
		return err
	}
	logger.Info("export completed", "file", path, "format", format, "transactions", n)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, svc *ledger.Service, logger *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	router := api.New(svc, api.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

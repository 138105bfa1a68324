package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-radar/internal/model"
	"github.com/sells-group/deal-radar/internal/monitoring"
	"github.com/sells-group/deal-radar/internal/report"
	"github.com/sells-group/deal-radar/internal/store"
)

var servePort int

// scanMu serializes scans: the cron trigger and the HTTP trigger share it, so
// a run still in flight causes the next request to be rejected instead of
// racing the upsert path.
var scanMu sync.Mutex

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and trigger server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		if err := backend.Ping(ctx); err != nil {
			return err
		}

		startScheduler(ctx, backend)

		checker := monitoring.NewChecker(
			backend.Health(),
			cfg.Health.EvidenceCeiling,
			time.Duration(cfg.Health.StaleAfterHours)*time.Hour,
		)
		go checker.Run(ctx, time.Duration(cfg.Health.CadenceHours)*time.Hour)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, backend, checker),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func startScheduler(ctx context.Context, backend store.Backend) {
	c := cron.New()

	if cfg.Schedule.Scan != "" {
		if _, err := c.AddFunc(cfg.Schedule.Scan, func() {
			triggerScan(ctx, backend, "cron")
		}); err != nil {
			zap.L().Error("invalid scan schedule", zap.String("cron", cfg.Schedule.Scan), zap.Error(err))
		}
	}
	if cfg.Schedule.Report != "" {
		if _, err := c.AddFunc(cfg.Schedule.Report, func() {
			gen := report.NewGenerator(backend.Ingest(), cfg.Report.TopN)
			if _, err := gen.Generate(ctx, time.Now().UTC()); err != nil {
				zap.L().Error("scheduled report failed", zap.Error(err))
			}
		}); err != nil {
			zap.L().Error("invalid report schedule", zap.String("cron", cfg.Schedule.Report), zap.Error(err))
		}
	}

	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	zap.L().Info("scheduler started",
		zap.String("scan_cron", cfg.Schedule.Scan),
		zap.String("report_cron", cfg.Schedule.Report),
	)
}

// triggerScan runs one scan if none is in flight. Returns false when a run
// already holds the lock.
func triggerScan(ctx context.Context, backend store.Backend, source string) bool {
	if !scanMu.TryLock() {
		zap.L().Warn("scan already running, skipping trigger", zap.String("source", source))
		return false
	}

	go func() {
		defer scanMu.Unlock()
		if _, err := runScan(ctx, backend); err != nil {
			zap.L().Error("scan failed",
				zap.String("source", source),
				zap.Error(err),
			)
		}
	}()
	return true
}

func newRouter(ctx context.Context, backend store.Backend, checker *monitoring.Checker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		report, err := checker.Check(req.Context())
		if err != nil {
			http.Error(w, `{"error":"health check failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	})

	r.Post("/scan", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !triggerScan(ctx, backend, "http") {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"status": "already running"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	})

	r.Get("/deals", func(w http.ResponseWriter, req *http.Request) {
		filter := store.DealFilter{
			Topic: req.URL.Query().Get("topic"),
		}
		if s := req.URL.Query().Get("status"); s != "" {
			status := model.DealStatus(s)
			if !status.Valid() {
				http.Error(w, `{"error":"unknown status"}`, http.StatusBadRequest)
				return
			}
			filter.Status = status
		}

		deals, err := backend.Operator().ListDeals(req.Context(), filter)
		if err != nil {
			zap.L().Error("list deals failed", zap.Error(err))
			http.Error(w, `{"error":"list deals failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deals)
	})

	return r
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/aeo-cli/internal/audit"
	"github.com/sells-group/aeo-cli/internal/metrics"
	"github.com/sells-group/aeo-cli/internal/model"
	"github.com/sells-group/aeo-cli/internal/normalize"
	"github.com/sells-group/aeo-cli/internal/store"
)

const maxBodyBytes = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the audit HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		env, err := initAudit(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.WebhookURL != "" {
			collector := metrics.NewCollector(env.Store, estimateCost)
			checker := metrics.NewChecker(collector, metrics.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		router := newRouter(serverDeps{
			Runner:         env.Service,
			Engine:         env.Service.Engine(),
			Audits:         env.Store,
			Metrics:        env.Metrics.Handler(),
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Strings("allowed_origins", cfg.Server.AllowedOrigins),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type auditRunner interface {
	Run(ctx context.Context, url string) (*audit.Result, error)
}

type auditReader interface {
	GetAudit(ctx context.Context, id string) (*model.Audit, error)
	ListAudits(ctx context.Context, filter store.AuditFilter) ([]model.Audit, error)
}

// serverDeps are the collaborators behind the HTTP API. Audits and Metrics
// are optional; their routes are not mounted when nil.
type serverDeps struct {
	Runner         auditRunner
	Engine         *normalize.Engine
	Audits         auditReader
	Metrics        http.Handler
	AllowedOrigins []string
}

type analyzeRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

type normalizeRequest struct {
	URL    string `json:"url"`
	Report any    `json:"report"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Snippet string `json:"snippet,omitempty"`
}

func newRouter(deps serverDeps) http.Handler {
	if deps.Engine == nil {
		deps.Engine = normalize.New()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "aeo-cli API", "status": "running"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/analyze", analyzeHandler(deps.Runner))
	r.Post("/normalize", normalizeHandler(deps.Engine))

	if deps.Audits != nil {
		r.Get("/audits", listAuditsHandler(deps.Audits))
		r.Get("/audits/{id}", getAuditHandler(deps.Audits))
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}

func analyzeHandler(runner auditRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		if req.Mode == "" {
			req.Mode = "full"
		}
		if req.Mode != "full" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported mode %q", req.Mode))
			return
		}
		if runner == nil {
			writeError(w, http.StatusServiceUnavailable, "audits are not configured")
			return
		}

		result, err := runner.Run(r.Context(), req.URL)
		if err != nil {
			status := auditErrorStatus(err)
			zap.L().Error("analyze failed",
				zap.String("url", req.URL),
				zap.Int("status", status),
				zap.Error(err),
			)
			writeError(w, status, err.Error())
			return
		}

		if result.AuditID != "" {
			w.Header().Set("X-Audit-ID", result.AuditID)
		}
		writeJSON(w, http.StatusOK, result.Report)
	}
}

// auditErrorStatus maps an audit failure to an HTTP status.
func auditErrorStatus(err error) int {
	switch {
	case errors.Is(err, audit.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, audit.ErrScrapeFailed), errors.Is(err, audit.ErrModelFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func normalizeHandler(engine *normalize.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req normalizeRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		report, err := engine.NormalizeValue(req.Report, req.URL)
		if err != nil {
			var mie *normalize.MalformedInputError
			if errors.As(err, &mie) {
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: mie.Error(), Snippet: mie.Snippet})
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func listAuditsHandler(audits auditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.AuditFilter{
			Status: model.AuditStatus(q.Get("status")),
			URL:    q.Get("url"),
		}
		if filter.Status != "" && !validStatus(filter.Status) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", filter.Status))
			return
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			filter.Limit = n
		}

		list, err := audits.ListAudits(r.Context(), filter)
		if err != nil {
			zap.L().Error("list audits", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list audits failed")
			return
		}
		if list == nil {
			list = []model.Audit{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getAuditHandler(audits auditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		a, err := audits.GetAudit(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "audit not found")
			return
		}
		if err != nil {
			zap.L().Error("get audit", zap.String("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get audit failed")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func validStatus(s model.AuditStatus) bool {
	switch s {
	case model.AuditStatusQueued, model.AuditStatusScraping, model.AuditStatusAnalyzing,
		model.AuditStatusComplete, model.AuditStatusFailed:
		return true
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

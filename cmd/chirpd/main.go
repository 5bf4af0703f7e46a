// Entry point for the chirp document service: HTTP upload + enrichment
// API over chi, SQLite storage, optional MCP stdio transport for the
// enrichment tools.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chirp/dbopen"
	"github.com/hazyhaar/chirp/enrich"
	"github.com/hazyhaar/chirp/guard"
	"github.com/hazyhaar/chirp/ingest"
	"github.com/hazyhaar/chirp/observability"
)

func main() {
	configPath := flag.String("config", env("CHIRP_CONFIG", "chirp.yaml"), "path to YAML config")
	flag.Parse()

	cfg, err := ingest.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Observability DB, separate from the document store.
	obsDB, err := dbopen.Open(cfg.ObsDBPath, dbopen.WithMkdirAll(),
		dbopen.WithSchema(observability.Schema))
	if err != nil {
		slog.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()

	auditLogger := observability.NewAuditLogger(obsDB, 256)
	defer auditLogger.Close()
	events := observability.NewEventLogger(obsDB)
	metrics := observability.NewMetricsManager(obsDB, 512, 10*time.Second)
	defer metrics.Close()

	ing, err := ingest.NewIngester(cfg,
		ingest.WithLogger(logger),
		ingest.WithAudit(auditLogger),
		ingest.WithEvents(events),
		ingest.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("ingester", "error", err)
		os.Exit(1)
	}
	defer ing.Close()

	svc := enrich.New(ing.Store.DB(), logger)

	// Optional MCP stdio transport for the enrichment tools.
	if os.Getenv("MCP_TRANSPORT") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "chirp",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)

		slog.Info("MCP stdio serving")
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("MCP stdio", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := guard.Init(ing.Store.DB()); err != nil {
		slog.Error("guard init", "error", err)
		os.Exit(1)
	}
	limiter := guard.NewRateLimiter(ing.Store.DB(), "/v1/health")
	limiter.StartReloader(ctx.Done())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(guard.SecurityHeaders(guard.DefaultHeaders()))
	r.Use(guard.MaxBody(cfg.MaxFileBytes() + 1<<20))
	r.Use(guard.RequestLog)
	r.Use(limiter.Middleware)

	r.Get("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/documents", handleUpload(ing, cfg))
	r.Delete("/v1/documents/{id}", handleDelete(ing))
	r.Mount("/v1", svc.Routes())

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		srv.Shutdown(shutCtx)
	}()

	slog.Info("chirp listening", "addr", cfg.Listen, "db", cfg.DBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("serve", "error", err)
		os.Exit(1)
	}
	slog.Info("chirp stopped")
}

// handleUpload accepts a multipart "file" field (or a raw body with a
// filename query param) and runs the ingest pipeline.
func handleUpload(ing *ingest.Ingester, cfg *ingest.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, filename, err := readUpload(r, cfg.MaxFileBytes())
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		res, err := ing.Ingest(r.Context(), data, "upload", filename)
		switch {
		case errors.Is(err, ingest.ErrDuplicateContent):
			writeJSON(w, http.StatusConflict, res)
		case errors.Is(err, ingest.ErrNoExtractableText):
			writeError(w, http.StatusUnprocessableEntity, err)
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusCreated, res)
		}
	}
}

func handleDelete(ing *ingest.Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := ing.Store.DeleteDocument(r.Context(), id)
		switch {
		case errors.Is(err, ingest.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
		}
	}
}

func readUpload(r *http.Request, maxBytes int64) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	if mr, err := r.MultipartReader(); err == nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, "", fmt.Errorf("multipart: %w", err)
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return nil, "", fmt.Errorf("read upload: %w", err)
			}
			return data, part.FileName(), nil
		}
		return nil, "", errors.New("missing multipart field \"file\"")
	}

	// Raw body fallback.
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty upload")
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "upload.pdf"
	}
	return data, filename, nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

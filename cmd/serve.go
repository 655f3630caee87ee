package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/engine"
	"github.com/sells-group/branch-insights/internal/model"
)

var servePort int

const requestIDHeader = "X-Request-ID"

// snapshotStore is the part of the snapshot holder the server uses.
type snapshotStore interface {
	Current() *model.Snapshot
	Reload(ctx context.Context) (*model.Snapshot, error)
	SourceName() string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Holder, env.Registry, cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("source", env.Holder.SourceName()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the API routes and middleware.
func buildRouter(store snapshotStore, reg *engine.Registry, sc config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: sc.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	r.Use(accessLog)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]string{"status": "ok"}
		if snap := store.Current(); snap != nil {
			body["snapshot"] = snap.Version
		}
		writeJSON(w, http.StatusOK, body)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(sc.RateLimit, sc.Burst))
		r.Get("/snapshot", snapshotHandler(store))
		r.Post("/reload", reloadHandler(store))
		r.Post("/{kind}", engineHandler(reg))
	})
	return r
}

type ctxKey struct{}

// requestID tags each request with a uuid, reusing a caller-supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// rateLimit applies one token bucket to every API request.
func rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func snapshotHandler(store snapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := store.Current()
		if snap == nil {
			writeError(w, http.StatusServiceUnavailable, "no snapshot loaded", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":   snap.Version,
			"loaded_at": snap.LoadedAt,
			"source":    store.SourceName(),
			"rows":      snap.RowCounts(),
			"coverage":  snap.Coverage(),
		})
	}
}

func reloadHandler(store snapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := store.Reload(r.Context())
		if err != nil {
			zap.L().Error("reload failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
			body := map[string]any{}
			if cur := store.Current(); cur != nil {
				body["version"] = cur.Version
			}
			writeError(w, http.StatusInternalServerError, "reload failed; previous snapshot kept", body)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": snap.Version, "loaded_at": snap.LoadedAt})
	}
}

// engineHandler runs POST /v1/{kind}. The body is an engine.Request; the
// all_branches query parameter fans out over every branch.
func engineHandler(reg *engine.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := engine.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		var req engine.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body", nil)
			return
		}
		if req.Branch != "" {
			b, err := model.ParseBranch(string(req.Branch))
			if err != nil {
				writeEngineError(w, r, err)
				return
			}
			req.Branch = b
		}

		all, _ := strconv.ParseBool(r.URL.Query().Get("all_branches"))
		if all {
			res, err := reg.RunAllBranches(r.Context(), kind, req)
			if err != nil {
				writeEngineError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "branches": res})
			return
		}

		res, err := reg.Run(r.Context(), kind, req)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// writeEngineError maps caller input errors to 400, a missing snapshot to
// 503 and anything else to 500.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if ie, ok := model.AsInputError(err); ok {
		writeError(w, http.StatusBadRequest, ie.Error(), map[string]any{"kind": ie.Kind, "field": ie.Field})
		return
	}
	if errors.Is(err, engine.ErrNoSnapshot) {
		writeError(w, http.StatusServiceUnavailable, "no snapshot loaded", nil)
		return
	}
	zap.L().Error("engine request failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error", nil)
}

func writeError(w http.ResponseWriter, status int, msg string, extra map[string]any) {
	body := map[string]any{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

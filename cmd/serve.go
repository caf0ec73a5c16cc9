package main

import (
	"context"
	"encoding/json"
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

	"github.com/balidash/detective-cli/internal/analysis"
	"github.com/balidash/detective-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAnalyzer(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *analyzerEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", handleAnalyze(env))
		r.Get("/runs", handleRuns(env))
	})

	return r
}

type analyzeRequest struct {
	RestaurantID string `json:"restaurant_id"`
	Start        string `json:"start"`
	End          string `json:"end"`
	TopN         int    `json:"top_n,omitempty"`
	All          bool   `json:"all,omitempty"`
	Narrative    bool   `json:"narrative,omitempty"`
}

func handleAnalyze(env *analyzerEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.RestaurantID == "" {
			writeError(w, http.StatusBadRequest, "restaurant_id is required")
			return
		}
		start, end, err := parsePeriod(req.Start, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		report, err := env.Analyzer.AnalyzeAndRecord(r.Context(), analysis.Request{
			RestaurantID: req.RestaurantID,
			Start:        start,
			End:          end,
			TopN:         req.TopN,
			All:          req.All,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if eris.Is(err, analysis.ErrUnknownRestaurant) {
				status = http.StatusNotFound
			}
			zap.L().Error("analyze request failed",
				zap.String("restaurant", req.RestaurantID),
				zap.Error(err),
			)
			writeError(w, status, eris.ToString(err, false))
			return
		}

		if req.Narrative && env.Narrative != nil {
			summary, err := env.Narrative.Summarize(r.Context(), report)
			if err != nil {
				zap.L().Warn("narrative generation failed", zap.Error(err))
			} else {
				report.Narrative = summary
			}
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func handleRuns(env *analyzerEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.RunFilter{
			RestaurantID: r.URL.Query().Get("restaurant"),
			Status:       r.URL.Query().Get("status"),
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			filter.Limit = limit
		}

		runs, err := env.Store.ListRuns(r.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

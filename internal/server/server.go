package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"b5-trader/internal/export"
	"b5-trader/internal/logger"
	"b5-trader/internal/market"
	"b5-trader/internal/paper"
	"b5-trader/internal/store"
	"b5-trader/internal/views"
)

// Server owns the HTTP surface over the read-only views and the export
// endpoint. All handlers are safe to run concurrently with the engine.
type Server struct {
	cfg    *store.Config
	views  *views.Service
	trades *paper.Store
}

func New(cfg *store.Config, vs *views.Service, trades *paper.Store) *Server {
	return &Server{cfg: cfg, views: vs, trades: trades}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/api/trades", s.handleTrades).Methods(http.MethodGet)
	r.HandleFunc("/api/broker-limits", s.handleBrokerLimits).Methods(http.MethodGet)
	r.HandleFunc("/api/export", s.handleExport).Methods(http.MethodGet)
	r.PathPrefix("/exports/").Handler(
		http.StripPrefix("/exports/", http.FileServer(http.Dir(s.cfg.Paths.ExportDir))))
	return r
}

// HTTPServer wraps the router in a configured http.Server.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func jsonOK(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(ctx context.Context, w http.ResponseWriter, err error) {
	logger.ErrorWithErr(ctx, "view handler failed", err)
	jsonOK(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func queryBool(r *http.Request, key string, def bool) bool {
	switch r.URL.Query().Get(key) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return def
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := market.Now()
	jsonOK(w, http.StatusOK, map[string]any{
		"ok":           true,
		"trade_mode":   s.cfg.Trade.Mode,
		"live_enabled": s.cfg.LiveEnabled(),
		"ist_time":     now.Format("15:04:05"),
		"ist_datetime": now.Format("2006-01-02 15:04:05"),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := views.DashboardParams{
		Timeframe:    q.Get("tf"),
		Factor:       q.Get("factor"),
		Query:        q.Get("q"),
		CompleteOnly: queryBool(r, "complete", false),
		TriggerOnly:  queryBool(r, "trigger_only", true),
		Limit:        queryInt(r, "limit", 0),
	}
	view, err := s.views.Dashboard(r.Context(), p)
	if err != nil {
		jsonError(r.Context(), w, err)
		return
	}
	jsonOK(w, http.StatusOK, view)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	p := views.TradesParams{
		OpenLimit:   queryInt(r, "open_limit", 0),
		ClosedLimit: queryInt(r, "closed_limit", 0),
		Query:       r.URL.Query().Get("q"),
	}
	view, err := s.views.Trades(r.Context(), p)
	if err != nil {
		jsonError(r.Context(), w, err)
		return
	}
	jsonOK(w, http.StatusOK, view)
}

func (s *Server) handleBrokerLimits(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, http.StatusOK, s.views.BrokerLimits(r.Context()))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	trades, err := s.trades.AllTrades(r.Context())
	if err != nil {
		jsonError(r.Context(), w, err)
		return
	}
	res, err := export.Trades(s.cfg.Paths.ExportDir, format, trades)
	if err != nil {
		jsonError(r.Context(), w, err)
		return
	}
	logger.Info(r.Context(), "trade history exported",
		"filename", res.Filename, "count", res.Count, "format", format)
	jsonOK(w, http.StatusOK, res)
}

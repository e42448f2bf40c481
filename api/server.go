// Package api serves a small read-only HTTP surface over the market
// store and feed, for dashboards and the terminal UI to poll.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gtmarket/polyscope/pkg/feed"
	"github.com/gtmarket/polyscope/pkg/models"
	"github.com/gtmarket/polyscope/pkg/store"
)

type Server struct {
	store      *store.Store
	feed       *feed.Feed
	logger     *logrus.Logger
	port       string
	maxAgeREST time.Duration
	maxAgeWS   time.Duration
}

func NewServer(st *store.Store, f *feed.Feed, logger *logrus.Logger, port string, maxAgeREST, maxAgeWS time.Duration) *Server {
	return &Server{
		store:      st,
		feed:       f,
		logger:     logger,
		port:       port,
		maxAgeREST: maxAgeREST,
		maxAgeWS:   maxAgeWS,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/feed", s.handleFeed)
	mux.HandleFunc("/api/markets", s.handleMarkets)
	mux.HandleFunc("/api/markets/", s.handleMarket)

	handler := corsMiddleware(mux)

	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

type feedStatus struct {
	State         string     `json:"state"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := feedStatus{State: s.feed.State().String()}
	if last := s.feed.LastMessageAt(); !last.IsZero() {
		status.LastMessageAt = &last
	}
	s.writeJSON(w, http.StatusOK, status)
}

type marketView struct {
	ConditionID    string     `json:"condition_id"`
	Question       string     `json:"question,omitempty"`
	Slug           string     `json:"slug,omitempty"`
	Outcomes       []string   `json:"outcomes,omitempty"`
	BestBid        *float64   `json:"best_bid,omitempty"`
	BestAsk        *float64   `json:"best_ask,omitempty"`
	LastTrade      *float64   `json:"last_trade,omitempty"`
	BidLevels      int        `json:"bid_levels"`
	AskLevels      int        `json:"ask_levels"`
	LastRESTUpdate *time.Time `json:"last_rest_update,omitempty"`
	LastWSUpdate   *time.Time `json:"last_ws_update,omitempty"`
	Stale          bool       `json:"stale"`
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := s.store.List()
	views := make([]marketView, 0, len(entries))
	for _, e := range entries {
		views = append(views, s.view(e))
	}
	s.writeJSON(w, http.StatusOK, views)
}

type marketDetail struct {
	marketView
	Bids []models.OrderbookLevel `json:"bids"`
	Asks []models.OrderbookLevel `json:"asks"`
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conditionID := strings.TrimPrefix(r.URL.Path, "/api/markets/")
	entry, ok := s.store.Get(conditionID)
	if !ok {
		http.Error(w, "Market not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, marketDetail{
		marketView: s.view(entry),
		Bids:       entry.Book.Bids,
		Asks:       entry.Book.Asks,
	})
}

func (s *Server) view(e store.Entry) marketView {
	v := marketView{
		ConditionID: e.Market.ConditionID,
		Question:    e.Market.Question,
		Slug:        e.Market.Slug,
		Outcomes:    e.Market.Outcomes,
		BestBid:     e.Market.BestBid,
		BestAsk:     e.Market.BestAsk,
		LastTrade:   e.Market.LastTrade,
		BidLevels:   len(e.Book.Bids),
		AskLevels:   len(e.Book.Asks),
		Stale:       s.store.IsStale(e.Market.ConditionID, s.maxAgeREST, s.maxAgeWS),
	}
	if !e.LastRESTUpdate.IsZero() {
		t := e.LastRESTUpdate
		v.LastRESTUpdate = &t
	}
	if !e.LastWSUpdate.IsZero() {
		t := e.LastWSUpdate
		v.LastWSUpdate = &t
	}
	return v
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

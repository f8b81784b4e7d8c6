// Package dashboard serves the web UI: a server-rendered overview page, a
// JSON API over storage and the engine, and a WebSocket feed of scan results.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/schrute_spreads/internal/marketdata"
	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
)

//go:embed web/templates/*
var templateFS embed.FS

//go:embed web/static/*
var staticFS embed.FS

// staticRoot re-roots the embedded tree so /static/style.css resolves.
var staticRoot = mustSub(staticFS, "web/static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Config carries the server's listen and auth settings.
type Config struct {
	Port      int
	AuthToken string
}

// Server is the dashboard HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	provider  marketdata.Provider
	engine    *spread.Engine
	hub       *Hub
	logger    *logrus.Logger
	port      int
	authToken string
}

// PositionView is a position shaped for the UI.
type PositionView struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	LongStrike  float64   `json:"long_strike"`
	ShortStrike float64   `json:"short_strike"`
	Expiration  time.Time `json:"expiration"`
	DTE         int       `json:"dte"`
	Contracts   int       `json:"contracts"`
	CostBasis   float64   `json:"cost_basis"`
	CostDollars float64   `json:"cost_dollars"`
	MaxProfit   float64   `json:"max_profit"`
	EntryDate   time.Time `json:"entry_date"`
}

// AssessmentView pairs a position with its freshly computed assessment.
type AssessmentView struct {
	Position   PositionView      `json:"position"`
	Spot       float64           `json:"spot"`
	Assessment spread.Assessment `json:"assessment"`
}

// DashboardData feeds the server-rendered overview page.
type DashboardData struct {
	Positions    []PositionView
	Stats        *storage.Statistics
	Recent       []models.ScanRecord
	LastUpdate   time.Time
	MarketStatus string
}

// NewServer wires the routes. hub may be nil; the /ws route is then absent.
func NewServer(cfg Config, store storage.Interface, provider marketdata.Provider, engine *spread.Engine, hub *Hub, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		provider:  provider,
		engine:    engine,
		hub:       hub,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticRoot))))

	s.router.Get("/", s.handleDashboard)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/recommendations", s.handleGetRecommendations)
	s.router.Get("/api/positions", s.handleGetPositions)
	s.router.Get("/api/positions/{id}", s.handleGetPosition)
	s.router.Get("/api/positions/{id}/assessment", s.handleGetAssessment)
	s.router.Get("/api/stats", s.handleGetStats)

	if s.hub != nil {
		s.router.Get("/ws", s.hub.HandleWS)
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/dashboard.html")
	if err != nil {
		s.logger.WithError(err).Error("Failed to parse dashboard template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data, err := s.getDashboardData(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to get dashboard data")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := tmpl.Execute(w, data); err != nil {
		s.logger.WithError(err).Error("Failed to execute dashboard template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	scans, err := s.storage.GetRecentScans(r.Context(), 20)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load recent scans")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, scans)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.storage.GetOpenPositions(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, toViews(positions))
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	pos, ok := s.loadPosition(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, toView(pos))
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	pos, ok := s.loadPosition(w, r)
	if !ok {
		return
	}

	quote, err := s.provider.GetQuote(r.Context(), pos.Symbol)
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to quote %s for assessment", pos.Symbol)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	assessment := s.engine.EvaluatePosition(pos.ToSpreadInput(time.Now(), nil), quote.Last)
	s.writeJSON(w, AssessmentView{
		Position:   toView(pos),
		Spot:       quote.Last,
		Assessment: assessment,
	})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.GetStatistics(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load statistics")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) loadPosition(w http.ResponseWriter, r *http.Request) (*models.Position, bool) {
	id := chi.URLParam(r, "id")
	pos, err := s.storage.GetPositionByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrPositionNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
		} else {
			s.logger.WithError(err).Error("Failed to load position")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return nil, false
	}
	return pos, true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) getDashboardData(ctx context.Context) (*DashboardData, error) {
	positions, err := s.storage.GetOpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.storage.GetStatistics(ctx)
	if err != nil {
		return nil, err
	}
	scans, err := s.storage.GetRecentScans(ctx, 10)
	if err != nil {
		return nil, err
	}

	marketStatus := "Closed"
	if isMarketOpen() {
		marketStatus = "Open"
	}

	return &DashboardData{
		Positions:    toViews(positions),
		Stats:        stats,
		Recent:       scans,
		LastUpdate:   time.Now(),
		MarketStatus: marketStatus,
	}, nil
}

func toViews(positions []models.Position) []PositionView {
	views := make([]PositionView, 0, len(positions))
	for i := range positions {
		views = append(views, toView(&positions[i]))
	}
	return views
}

func toView(pos *models.Position) PositionView {
	return PositionView{
		ID:          pos.ID,
		Symbol:      pos.Symbol,
		LongStrike:  pos.LongStrike,
		ShortStrike: pos.ShortStrike,
		Expiration:  pos.Expiration,
		DTE:         pos.CalculateDTE(time.Now()),
		Contracts:   pos.Contracts,
		CostBasis:   pos.CostBasis,
		CostDollars: pos.CostDollars(),
		MaxProfit:   pos.MaxProfit(),
		EntryDate:   pos.EntryDate,
	}
}

func isMarketOpen() bool {
	now := time.Now()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("ET", -5*60*60)
	}
	nyTime := now.In(loc)

	if nyTime.Weekday() == time.Saturday || nyTime.Weekday() == time.Sunday {
		return false
	}

	totalMinutes := nyTime.Hour()*60 + nyTime.Minute()

	marketOpen := 9*60 + 30
	marketClose := 16 * 60

	return totalMinutes >= marketOpen && totalMinutes < marketClose
}

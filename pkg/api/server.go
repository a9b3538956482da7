package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/metrics"
	"github.com/mimir-aip/tire-wear-predictor/pkg/mlmodel"
	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// Lifecycle is the model service the API drives
type Lifecycle interface {
	Initialize(ctx context.Context) (*mlmodel.State, error)
	Retrain(ctx context.Context, trigger models.TrainingTrigger) (*mlmodel.State, error)
	Predict(input models.PredictionInput) (*mlmodel.PredictionResult, error)
	IsInitialized() bool
}

// HistoryLister reads the training history
type HistoryLister interface {
	ListTrainingRuns(ctx context.Context, limit int) ([]*models.TrainingRun, error)
}

// Options configures a Server
type Options struct {
	Lifecycle   Lifecycle
	History     HistoryLister    // optional
	Metrics     *metrics.Metrics // optional
	Logger      *zap.Logger      // optional
	Title       string
	Version     string
	CORSOrigins []string
}

// Server provides the HTTP API
type Server struct {
	lifecycle Lifecycle
	history   HistoryLister
	metrics   *metrics.Metrics
	logger    *zap.Logger
	title     string
	version   string
	origins   []string
	router    *mux.Router
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		lifecycle: opts.Lifecycle,
		history:   opts.History,
		metrics:   opts.Metrics,
		logger:    logger.Named("http"),
		title:     opts.Title,
		version:   opts.Version,
		origins:   origins,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes registers middleware and routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.errorRecoveryMiddleware)
	s.router.Use(s.versionMiddleware(s.version))

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/initialize", s.handleInitialize).Methods(http.MethodGet)
	api.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/retrain", s.handleRetrain).Methods(http.MethodPost)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorResponse(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// Handler returns the router wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		// Browsers reject credentials with a wildcard origin
		AllowCredentials: !containsWildcard(s.origins),
	})
	return c.Handler(s.router)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sendaka/sendaka/internal/access"
	"github.com/sendaka/sendaka/internal/auth"
	"github.com/sendaka/sendaka/internal/cases"
	"github.com/sendaka/sendaka/internal/config"
	"github.com/sendaka/sendaka/internal/idgen"
	"github.com/sendaka/sendaka/internal/logging"
	"github.com/sendaka/sendaka/internal/metrics"
	"github.com/sendaka/sendaka/internal/pagination"
	"github.com/sendaka/sendaka/internal/ratelimit"
	"github.com/sendaka/sendaka/internal/realtime"
	"github.com/sendaka/sendaka/internal/risk"
	"github.com/sendaka/sendaka/internal/security"
	"github.com/sendaka/sendaka/internal/traces"
	"github.com/sendaka/sendaka/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	authMgr      *auth.Manager
	riskStore    risk.Store
	caseSvc      *cases.Service
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRiskStore sets a custom assessment store (for testing)
func WithRiskStore(store risk.Store) Option {
	return func(s *Server) {
		s.riskStore = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set stores/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		// API keys with Postgres
		authStore := auth.NewPostgresStore(db)
		if err := authStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		s.authMgr = auth.NewManager(authStore)

		// Assessments with Postgres
		if s.riskStore == nil {
			riskStore := risk.NewPostgresStore(db)
			if err := riskStore.Migrate(ctx); err != nil {
				s.logger.Warn("failed to migrate assessment store", "error", err)
			}
			s.riskStore = riskStore
		}
		s.logger.Info("assessment audit trail enabled")

		// Review cases with Postgres
		caseStore := cases.NewPostgresStore(db)
		if err := caseStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate case store", "error", err)
		}
		s.caseSvc = cases.NewService(caseStore)
		s.logger.Info("review cases enabled")
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		// API keys with in-memory store
		s.authMgr = auth.NewManager(auth.NewMemoryStore())

		// In-memory assessment trail for demo mode
		if s.riskStore == nil {
			s.riskStore = risk.NewMemoryStore()
		}

		// Review cases with in-memory store
		s.caseSvc = cases.NewService(cases.NewMemoryStore())
		s.logger.Info("review cases enabled (in-memory)")
	}

	// Seed the bootstrap super_admin key on fresh deployments
	if cfg.BootstrapKey != "" {
		if _, err := s.authMgr.SeedKey(ctx, cfg.BootstrapKey); err != nil {
			s.logger.Warn("failed to seed bootstrap key", "error", err)
		} else {
			s.logger.Info("bootstrap admin key registered")
		}
	}

	s.logger.Info("API authentication enabled")

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	if cfg.TrustedProxies != "" {
		_ = s.router.SetTrustedProxies(strings.Split(cfg.TrustedProxies, ","))
	} else {
		_ = s.router.SetTrustedProxies(nil)
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group. All routes see auth.Middleware, which installs the
	// caller identity when a valid key is presented; the per-route group
	// gates decide what that identity may do.
	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr))

	// Risk evaluation (wallet-facing decision point)
	v1.POST("/risk/evaluate", access.Require(access.GroupWalletUser), s.evaluateHandler)

	// Access introspection: any authenticated caller may ask what it can do
	v1.GET("/access/check", auth.RequireAuth(), s.accessCheckHandler)

	// Assessment audit trail (audit console)
	v1.GET("/assessments", access.Require(access.GroupAuditAdmin), s.listAssessmentsHandler)

	// Review case workflow (compliance console)
	compliance := v1.Group("")
	compliance.Use(access.Require(access.GroupCompliance))
	compliance.Use(validation.IDParamMiddleware("id"))
	cases.NewHandler(s.caseSvc).RegisterRoutes(compliance)

	// Key management (senior admin console)
	admin := v1.Group("/admin")
	admin.Use(access.Require(access.GroupSeniorAdmin))
	auth.NewHandler(s.authMgr).RegisterAdminRoutes(admin)

	// WebSocket decision stream (operational dashboards)
	v1.GET("/stream", access.Require(access.GroupBroadcast), func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
}

// -----------------------------------------------------------------------------
// Decision handler
// -----------------------------------------------------------------------------

// evaluateRequest is the wire shape for POST /v1/risk/evaluate
type evaluateRequest struct {
	ActorID string     `json:"actorId" binding:"required"`
	Region  string     `json:"region"`
	Input   risk.Input `json:"input"`
}

// evaluateHandler runs one transaction through the scoring engine, records
// the assessment, and opens a review case when the decision is block.
func (s *Server) evaluateHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	req.ActorID = validation.SanitizeIdentifier(req.ActorID)
	if verrs := validation.Validate(
		validation.ValidIdentifier("actorId", req.ActorID),
		validation.ValidRegion("region", req.Region),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": verrs.Error(),
			"details": verrs,
		})
		return
	}

	if err := risk.ValidateInput(req.Input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_input",
			"message": err.Error(),
		})
		return
	}

	ctx, span := traces.StartSpan(ctx, "risk.Evaluate",
		traces.ActorID(req.ActorID), traces.Region(req.Region))
	defer span.End()

	result := risk.Evaluate(req.Input)
	span.SetAttributes(traces.RiskScore(result.Score), traces.DecisionAction(string(result.Action)))

	assessment := &risk.Assessment{
		ID:          idgen.WithPrefix("risk_"),
		ActorID:     req.ActorID,
		Region:      req.Region,
		Input:       req.Input,
		Score:       result.Score,
		Level:       result.Level,
		Signals:     result.Signals,
		Action:      result.Action,
		EvaluatedAt: time.Now().UTC(),
	}

	if err := s.riskStore.Record(ctx, assessment); err != nil {
		logging.L(ctx).Error("failed to record assessment", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to record assessment",
		})
		return
	}

	metrics.RiskDecisionsTotal.WithLabelValues(string(result.Action)).Inc()
	metrics.RiskScore.Observe(float64(result.Score))
	for _, sig := range result.Signals {
		metrics.RiskSignalsTotal.WithLabelValues(string(sig)).Inc()
	}

	resp := gin.H{
		"assessmentId": assessment.ID,
		"score":        result.Score,
		"level":        result.Level,
		"signals":      result.Signals,
		"action":       result.Action,
	}

	// A blocked transaction always lands in the review queue
	if result.Action == risk.ActionBlock {
		reviewCase, err := s.caseSvc.OpenForAssessment(ctx, assessment)
		if err != nil {
			logging.L(ctx).Error("failed to open review case",
				"assessmentId", assessment.ID, "error", err)
		} else {
			resp["caseId"] = reviewCase.ID
			s.realtimeHub.BroadcastCaseOpened(map[string]interface{}{
				"caseId":  reviewCase.ID,
				"actorId": reviewCase.ActorID,
				"region":  reviewCase.Region,
				"score":   float64(reviewCase.Score),
			})
		}
	}

	s.realtimeHub.BroadcastDecision(map[string]interface{}{
		"assessmentId": assessment.ID,
		"actorId":      assessment.ActorID,
		"region":       assessment.Region,
		"score":        float64(assessment.Score),
		"level":        string(assessment.Level),
		"action":       string(assessment.Action),
	})

	logging.L(ctx).Info("transaction evaluated",
		"actorId", assessment.ActorID,
		"score", assessment.Score,
		"action", assessment.Action,
	)

	c.JSON(http.StatusOK, resp)
}

// accessCheckHandler answers "can I do this" for the calling credential.
// GET /v1/access/check?group=AUDIT_ADMIN
func (s *Server) accessCheckHandler(c *gin.Context) {
	caller, _ := access.CallerFrom(c)

	group := access.Group(c.Query("group"))
	if group == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_group",
			"message": "group query parameter is required",
		})
		return
	}
	if !access.KnownGroup(group) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown_group",
			"message": fmt.Sprintf("unknown permission group %q", group),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"role":      caller.Role,
		"group":     group,
		"permitted": access.IsPermitted(caller.Role, group),
	})
}

// listAssessmentsHandler returns the assessment audit trail, narrowed to the
// caller's region when the caller is region-scoped.
func (s *Server) listAssessmentsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	caller, _ := access.CallerFrom(c)

	filter, err := access.RegionFilterFor(caller)
	if err != nil {
		metrics.RegionScopeDenialsTotal.WithLabelValues("missing_assignment").Inc()
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "missing_region_assignment",
			"message": "regional credentials must carry a region assignment",
		})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is malformed",
		})
		return
	}

	f := risk.ListFilter{
		ActorID: c.Query("actorId"),
		Action:  risk.Action(c.Query("action")),
		Limit:   limit + 1, // fetch one extra to detect the next page
	}
	if cursor != nil {
		f.BeforeTime = cursor.CreatedAt
		f.BeforeID = cursor.ID
	}
	if filter.Restricted() {
		f.Region = filter.Region
	} else if region := c.Query("region"); region != "" {
		f.Region = region
	}

	assessments, err := s.riskStore.List(ctx, f)
	if err != nil {
		logging.L(ctx).Error("failed to list assessments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list assessments",
		})
		return
	}

	page, next, hasMore := pagination.ComputePage(assessments, limit, func(a *risk.Assessment) (time.Time, string) {
		return a.EvaluatedAt, a.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"assessments": page,
		"count":       len(page),
		"nextCursor":  next,
		"hasMore":     hasMore,
	})
}

// -----------------------------------------------------------------------------
// Info & health handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Sendaka",
		"description": "Risk scoring and access control for money movement",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Export connection pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// AuthManager returns the auth manager for testing
func (s *Server) AuthManager() *auth.Manager {
	return s.authMgr
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

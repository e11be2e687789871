package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/david/market-ledger/internal/db"
	"github.com/david/market-ledger/internal/ingest"
	"github.com/david/market-ledger/internal/models"
	"github.com/david/market-ledger/internal/report"
	"github.com/david/market-ledger/internal/run"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const defaultJobTimeout = 30 * time.Minute

// DocumentStore serves the most recently published document.
type DocumentStore interface {
	Latest(ctx context.Context) (*models.Document, error)
}

// snapshotter is implemented by stores that can report the stored document's
// header without decoding it.
type snapshotter interface {
	Snapshot(ctx context.Context) (*db.Snapshot, error)
}

// Runner executes one ledger run.
type Runner interface {
	Run(ctx context.Context, codes []string) (*run.Report, error)
}

type Options struct {
	Store       DocumentStore
	Runner      Runner
	Registry    *ingest.Registry
	DataFile    string
	AdminSecret string
	CORSOrigins []string
	JobTimeout  time.Duration
	Logger      *zap.Logger
}

type Server struct {
	Echo *echo.Echo

	store       DocumentStore
	runner      Runner
	registry    *ingest.Registry
	dataFile    string
	adminSecret string
	jobTimeout  time.Duration
	logger      *zap.Logger

	// Background run tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string
	Status    string // running, completed, failed
	Codes     []string
	StartedAt time.Time
	EndedAt   time.Time
	Result    *runResult
	Error     string
}

type runResult struct {
	RunID              string   `json:"run_id"`
	TotalOpportunities int      `json:"total_opportunities"`
	News               int      `json:"news"`
	OverallScore       float64  `json:"overall_score"`
	OverallStatus      string   `json:"overall_status"`
	Stubbed            []string `json:"stubbed"`
}

func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	secret := strings.TrimSpace(opts.AdminSecret)
	if secret == "" {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate admin secret fallback: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(buf)
		logger.Warn("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	}

	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))

	allowedOrigins := []string{"http://localhost:4200"}
	for _, o := range opts.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowedOrigins = append(allowedOrigins, o)
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Echo:        e,
		store:       opts.Store,
		runner:      opts.Runner,
		registry:    opts.Registry,
		dataFile:    opts.DataFile,
		adminSecret: secret,
		jobTimeout:  jobTimeout,
		logger:      logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/data", s.handleGetData)
	api.GET("/lettings", s.handleListLettings)
	api.GET("/jurisdictions", s.handleListJurisdictions)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/runs", s.handleTriggerRun)
	admin.GET("/runs/:id", s.handleRunStatus)
}

func (s *Server) Start(addr string) error {
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status": "ok",
		"store":  s.store != nil,
	}
	if snap, ok := s.store.(snapshotter); ok {
		latest, err := snap.Snapshot(c.Request().Context())
		switch {
		case err == nil:
			body["latest"] = latest
		case errors.Is(err, db.ErrNoDocument):
			body["latest"] = nil
		default:
			body["store_error"] = err.Error()
		}
	}
	return c.JSON(http.StatusOK, body)
}

// latest prefers the store and falls back to the last written file.
func (s *Server) latest(ctx context.Context) (*models.Document, error) {
	if s.store != nil {
		doc, err := s.store.Latest(ctx)
		if err == nil {
			return doc, nil
		}
		s.logger.Warn("store unavailable, falling back to data file",
			zap.String("op", "api.Server.latest"), zap.Error(err))
	}
	if s.dataFile == "" {
		return nil, os.ErrNotExist
	}
	doc, err := report.ReadFile(s.dataFile)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Server) handleGetData(c echo.Context) error {
	doc, err := s.latest(c.Request().Context())
	if errors.Is(err, os.ErrNotExist) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no ledger document available"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load ledger document"})
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleListLettings(c echo.Context) error {
	doc, err := s.latest(c.Request().Context())
	if errors.Is(err, os.ErrNotExist) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no ledger document available"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load ledger document"})
	}

	states := splitCSV(strings.ToUpper(c.QueryParam("state")))
	line := strings.TrimSpace(c.QueryParam("business_line"))

	out := []models.Opportunity{}
	for _, opp := range doc.DotLettings {
		if len(states) > 0 && !contains(states, opp.Jurisdiction) {
			continue
		}
		if line != "" && !contains(opp.BusinessLines, line) {
			continue
		}
		out = append(out, opp)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"generated":     doc.Generated,
		"total":         len(out),
		"opportunities": out,
	})
}

type jurisdictionView struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	BidURL     string `json:"bid_url"`
	PortalURL  string `json:"portal_url"`
	Format     string `json:"format"`
	UpdateFreq string `json:"update_freq,omitempty"`
}

func (s *Server) handleListJurisdictions(c echo.Context) error {
	out := []jurisdictionView{}
	if s.registry != nil {
		for _, j := range s.registry.Jurisdictions {
			out = append(out, jurisdictionView{
				Code:       j.Code,
				Name:       j.Name,
				BidURL:     j.BidURL,
				PortalURL:  j.PortalURL,
				Format:     string(j.Format),
				UpdateFreq: j.UpdateFreq,
			})
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleTriggerRun(c echo.Context) error {
	if s.runner == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "runs are not enabled on this server"})
	}

	codes := splitCSV(c.QueryParam("only"))
	if s.registry != nil {
		if _, err := s.registry.Select(codes); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A run is already in progress",
			"job_id": job.ID,
		})
	}

	// Detached from the request so the run outlives the 202 response.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), s.jobTimeout,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		Codes:     codes,
		StartedAt: time.Now(),
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		logger := s.logger.With(zap.String("job_id", jobID))

		rep, err := s.runner.Run(jobCtx, codes)
		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			logger.Error("run job failed", zap.Error(err))
			return
		}
		job.Status = "completed"
		job.Result = &runResult{
			RunID:              rep.RunID,
			TotalOpportunities: rep.Document.Summary.TotalOpportunities,
			News:               len(rep.Document.News),
			OverallScore:       rep.Document.MarketHealth.OverallScore,
			OverallStatus:      rep.Document.MarketHealth.OverallStatus,
			Stubbed:            rep.Stubbed(),
		}
		logger.Info("run job completed", zap.String("run_id", rep.RunID))
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Run started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/runs/%s", jobID),
	})
}

func (s *Server) handleRunStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if len(job.Codes) > 0 {
		resp["jurisdictions"] = job.Codes
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if s.secretMatches(adminHeader) {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if s.secretMatches(authHeader[7:]) {
				return next(c)
			}
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func (s *Server) secretMatches(candidate string) bool {
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.adminSecret)) == 1
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

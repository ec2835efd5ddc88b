package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/modullar/violations-tracker-backend/internal/consolidate"
	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/dedup"
	"github.com/modullar/violations-tracker-backend/internal/geo"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// Store is the persistence surface the API handlers need. *db.Pool satisfies
// it; tests substitute a stub.
type Store interface {
	Ping(ctx context.Context) error
	QueryTrackerStats(ctx context.Context) (*db.TrackerStats, error)
	ListViolations(ctx context.Context, opts db.ViolationListOptions) ([]db.Violation, int64, error)
	GetViolationByUUID(ctx context.Context, violationUUID string) (*db.Violation, error)
	ListMergesInto(ctx context.Context, canonicalUUID string) ([]db.ViolationMerge, error)
	InsertViolation(ctx context.Context, violation *db.Violation) error
	SaveViolation(ctx context.Context, violation *db.Violation) error
	FindCandidates(ctx context.Context, window db.CandidateWindow) ([]db.Violation, error)
	FindByContentHash(ctx context.Context, contentHash string) (*db.Violation, error)
	CountActive(ctx context.Context) (int64, error)
	ListCorpus(ctx context.Context, filter db.CorpusFilter) ([]db.Violation, error)
	ApplyMerge(ctx context.Context, app db.MergeApplication) error
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	AllowedOrigins []string

	// MergeOnCreation merges similarity-class duplicates into the existing
	// record instead of rejecting the submission for review.
	MergeOnCreation bool

	CheckConfig dedup.CheckConfig

	ConsolidationMinCorpus    int
	ConsolidationMaxDeletions int
}

type Server struct {
	store    Store
	geocoder geo.Resolver
	checker  *dedup.Service
	logger   zerolog.Logger
	opts     Options
}

func NewServer(store Store, geocoder geo.Resolver, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	if opts.CheckConfig.CandidateLimit <= 0 {
		opts.CheckConfig = dedup.DefaultCheckConfig()
	}

	opts.Host = host
	opts.Port = port
	opts.ReadTimeout = readTimeout
	opts.WriteTimeout = writeTimeout
	opts.ShutdownTimeout = shutdownTimeout

	return &Server{
		store:    store,
		geocoder: geocoder,
		checker:  dedup.NewService(store, opts.CheckConfig, logger),
		logger:   logger,
		opts:     opts,
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("tracker API server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("tracker API server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	allowOrigins := s.opts.AllowedOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/violations", s.handleViolationList)
	api.GET("/violations/:violation_uuid", s.handleViolationDetail)
	api.GET("/violations/:violation_uuid/source-preview", s.handleSourcePreview)
	api.POST("/violations", s.handleCreateViolation)
	api.POST("/consolidation/dry-run", s.handleConsolidationDryRun)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health ping failed")
		return internalError(c, "Database unreachable")
	}
	return success(c, map[string]any{
		"service": "violations-tracker",
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.QueryTrackerStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleViolationList(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}

	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	from, err := parseTimeFilter(c.QueryParam("from"), false)
	if err != nil {
		return failValidation(c, map[string]string{"from": "must be RFC3339 or YYYY-MM-DD"})
	}
	to, err := parseTimeFilter(c.QueryParam("to"), true)
	if err != nil {
		return failValidation(c, map[string]string{"to": "must be RFC3339 or YYYY-MM-DD"})
	}
	if from != nil && to != nil && from.After(*to) {
		return failValidation(c, map[string]string{"time_range": "from must be <= to"})
	}

	opts := db.ViolationListOptions{
		Type:     db.ViolationType(strings.TrimSpace(strings.ToLower(c.QueryParam("type")))),
		Page:     page,
		PageSize: pageSize,
	}
	if from != nil {
		opts.From = *from
	}
	if to != nil {
		opts.To = *to
	}
	if raw := strings.TrimSpace(c.QueryParam("verified")); raw != "" {
		verified, err := strconv.ParseBool(raw)
		if err != nil {
			return failValidation(c, map[string]string{"verified": "must be a boolean"})
		}
		opts.Verified = &verified
	}

	items, total, err := s.store.ListViolations(c.Request().Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("list violations failed")
		return internalError(c, "Failed to load violations")
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total_items": total,
			"total_pages": totalPages,
		},
	})
}

func (s *Server) handleViolationDetail(c echo.Context) error {
	violationUUID := strings.TrimSpace(c.Param("violation_uuid"))
	if violationUUID == "" {
		return failValidation(c, map[string]string{"violation_uuid": "is required"})
	}

	violation, err := s.store.GetViolationByUUID(c.Request().Context(), violationUUID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Violation not found")
		}
		s.logger.Error().Err(err).Str("violation_uuid", violationUUID).Msg("get violation failed")
		return internalError(c, "Failed to load violation")
	}

	merges, err := s.store.ListMergesInto(c.Request().Context(), violationUUID)
	if err != nil {
		s.logger.Error().Err(err).Str("violation_uuid", violationUUID).Msg("list merges failed")
		return internalError(c, "Failed to load merge history")
	}

	return success(c, map[string]any{
		"violation": violation,
		"merges":    merges,
	})
}

func (s *Server) handleConsolidationDryRun(c echo.Context) error {
	// The HTTP surface never mutates the corpus; applying a consolidation
	// run stays a CLI operation.
	runner := consolidate.NewRunner(s.store, s.logger, consolidate.Options{
		DryRun:              true,
		MinCorpusSize:       s.opts.ConsolidationMinCorpus,
		MaxDeletionsPerRun:  s.opts.ConsolidationMaxDeletions,
		SimilarityThreshold: s.opts.CheckConfig.Thresholds.BatchTotal,
		Weights:             s.opts.CheckConfig.Scorer.Weights,
	})

	report, err := runner.Run(c.Request().Context())
	if err != nil {
		if errors.Is(err, consolidate.ErrCorpusTooSmall) || errors.Is(err, consolidate.ErrDeletionCapExceeded) {
			return fail(c, http.StatusUnprocessableEntity, err.Error(), nil)
		}
		s.logger.Error().Err(err).Msg("consolidation dry run failed")
		return internalError(c, "Consolidation dry run failed")
	}

	return success(c, report)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseTimeFilter(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}

	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		if endOfDay {
			utc = utc.Add((24 * time.Hour) - time.Nanosecond)
		}
		return &utc, nil
	}

	return nil, fmt.Errorf("invalid time format")
}

// Package http exposes the triage core over a small JSON API.
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driving"
	"github.com/custodia-labs/triage/internal/logger"
)

const (
	defaultKnowledgeLimit = 3
	defaultHistoryLimit   = 5
	maxLimit              = 50
)

// ErrMissingKnowledgeSearch is returned when the knowledge search is not provided.
var ErrMissingKnowledgeSearch = errors.New("http: knowledge search is required")

// Ports groups the services the API serves. History and Pipeline are optional;
// their routes answer 503 when unset.
type Ports struct {
	Knowledge driving.KnowledgeSearch
	History   driving.HistoryService
	Pipeline  driving.ResponsePipeline
}

// Server is the HTTP API server.
type Server struct {
	ports  Ports
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(ports Ports) (*Server, error) {
	if ports.Knowledge == nil {
		return nil, ErrMissingKnowledgeSearch
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{ports: ports, router: router}

	router.GET("/healthz", s.health)
	api := router.Group("/v1")
	{
		api.GET("/knowledge/search", s.searchKnowledge)
		api.GET("/history/similar", s.searchHistory)
		api.POST("/drafts", s.draft)
	}
	return s, nil
}

// Handler returns the router for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("http api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

type knowledgeHit struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Dense   float64 `json:"dense"`
	Lexical float64 `json:"lexical"`
	Content string  `json:"content"`
}

type historyHit struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	Sender   string    `json:"sender"`
	Subject  string    `json:"subject"`
	Date     time.Time `json:"date"`
	Score    float64   `json:"score"`
}

type draftRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Sender  string `json:"sender"`
}

type draftResponse struct {
	Query  string   `json:"query"`
	Text   string   `json:"text"`
	Words  int      `json:"words"`
	Stages []string `json:"stages"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"history":  s.ports.History != nil,
		"pipeline": s.ports.Pipeline != nil,
	})
}

func (s *Server) searchKnowledge(c *gin.Context) {
	query, k, ok := searchParams(c, defaultKnowledgeLimit)
	if !ok {
		return
	}

	hits, err := s.ports.Knowledge.Search(c.Request.Context(), query, k)
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]knowledgeHit, len(hits))
	for i, h := range hits {
		out[i] = knowledgeHit{
			ID:      h.Chunk.ID,
			Source:  h.Chunk.SourceID,
			Score:   h.Score,
			Dense:   h.Dense,
			Lexical: h.Lexical,
			Content: h.Chunk.Content,
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "count": len(out)})
}

func (s *Server) searchHistory(c *gin.Context) {
	if s.ports.History == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "email history is not configured"})
		return
	}
	query, k, ok := searchParams(c, defaultHistoryLimit)
	if !ok {
		return
	}

	matches, err := s.ports.History.SearchSimilar(c.Request.Context(), query, k)
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]historyHit, len(matches))
	for i, m := range matches {
		out[i] = historyHit{
			ID:       m.Record.ID,
			ThreadID: m.Record.ThreadID,
			Sender:   m.Record.Sender,
			Subject:  m.Record.Subject,
			Date:     m.Record.Timestamp,
			Score:    m.Score,
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "count": len(out)})
}

func (s *Server) draft(c *gin.Context) {
	if s.ports.Pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "no LLM configured"})
		return
	}

	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Subject) == "" && strings.TrimSpace(req.Body) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "subject or body is required"})
		return
	}

	state, err := s.ports.Pipeline.Run(c.Request.Context(), domain.PipelineInput{
		Subject: req.Subject,
		Body:    req.Body,
		Sender:  req.Sender,
	})
	if err != nil {
		fail(c, err)
		return
	}

	resp := draftResponse{
		Query: state.Query,
		Text:  state.FinalDraft.Render(),
		Words: state.FinalDraft.WordCount(),
	}
	for _, st := range state.Completed {
		resp.Stages = append(resp.Stages, string(st))
	}
	c.JSON(http.StatusOK, resp)
}

// searchParams reads q and k. It writes a 400 and returns false when they are invalid.
func searchParams(c *gin.Context, defaultK int) (string, int, bool) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query parameter q is required"})
		return "", 0, false
	}

	k := defaultK
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLimit {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "k must be between 1 and " + strconv.Itoa(maxLimit)})
			return "", 0, false
		}
		k = n
	}
	return query, k, true
}

func fail(c *gin.Context, err error) {
	resp := errorResponse{Error: err.Error()}
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		resp.Stage = string(pe.Stage)
	}
	c.JSON(statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLLMUnavailable), errors.Is(err, domain.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

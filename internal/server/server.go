package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"bookmentor/internal/bookclient"
	"bookmentor/internal/forms"
	"bookmentor/internal/ratelimit"
	"bookmentor/internal/util"
	"bookmentor/internal/webhooktoken"
	"bookmentor/pkg/domain"
	"bookmentor/pkg/llm"
)

// Reasoner answers free-form questions over the book hierarchy.
type Reasoner interface {
	Answer(ctx context.Context, question string) (domain.Answer, error)
}

// TokenInformer reports the state of the held provider token.
type TokenInformer interface {
	Info() llm.TokenInfo
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	Reasoner        Reasoner
	Tokens          TokenInformer
	Store           forms.Store
	Processor       *forms.Processor
	IgnoredFields   []string
	Limiter         *ratelimit.FixedWindowLimiter
	WebhookVerifier *webhooktoken.Verifier
}

// Server exposes HTTP endpoints for the mentoring service.
type Server struct {
	reasoner        Reasoner
	tokens          TokenInformer
	store           forms.Store
	processor       *forms.Processor
	ignoredFields   []string
	limiter         *ratelimit.FixedWindowLimiter
	webhookVerifier *webhooktoken.Verifier
	mux             *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		reasoner:        cfg.Reasoner,
		tokens:          cfg.Tokens,
		store:           cfg.Store,
		processor:       cfg.Processor,
		ignoredFields:   cfg.IgnoredFields,
		limiter:         cfg.Limiter,
		webhookVerifier: cfg.WebhookVerifier,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("bookmentor", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/llm/full-reasoning", s.withRateLimit(http.HandlerFunc(s.handleFullReasoning)))
	s.mux.HandleFunc("/auth/token-info", s.handleTokenInfo)
	s.mux.Handle("/sheets/receive-data", s.withWebhookAuth(http.HandlerFunc(s.handleReceiveData)))
	s.mux.Handle("/sheets/process-form/", s.withRateLimit(http.HandlerFunc(s.handleProcessForm)))
	s.mux.HandleFunc("/sheets/form-data/", s.handleFormData)
	s.mux.HandleFunc("/sheets/check-processing/", s.handleCheckProcessing)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withWebhookAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.webhookVerifier != nil {
			token, ok := webhooktoken.BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, err := s.webhookVerifier.Verify(token); err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type reasoningRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleFullReasoning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.reasoner == nil {
		writeError(w, http.StatusInternalServerError, "reasoner not configured")
		return
	}
	var req reasoningRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	answer, err := s.reasoner.Answer(r.Context(), req.Question)
	if err != nil {
		writeReasoningError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.tokens == nil {
		writeError(w, http.StatusInternalServerError, "token guard not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.tokens.Info())
}

func (s *Server) handleReceiveData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "form store not configured")
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	submission, err := forms.ParseSubmission(raw, s.ignoredFields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rowID, err := s.store.Save(submission)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save submission failed")
		return
	}
	if s.processor != nil {
		s.processInBackground(r, rowID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "received",
		"message":        "form data stored",
		"row_id":         rowID,
		"qa_pairs_count": len(submission.QAPairs),
	})
}

// processInBackground launches a processing pass detached from the
// request. Evaluation takes multiple LLM round-trips per answer, so
// handlers ack immediately and processing continues behind them.
func (s *Server) processInBackground(r *http.Request, rowID string) {
	logger := slog.Default().With("row_id", rowID, "request_id", util.RequestIDFromRequest(r))
	go func() {
		if err := s.processor.Process(context.Background(), rowID); err != nil {
			logger.Error("background form processing failed", "error", err)
		}
	}()
}

func (s *Server) handleProcessForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.processor == nil || s.store == nil {
		writeError(w, http.StatusInternalServerError, "processor not configured")
		return
	}
	rowID := strings.TrimPrefix(r.URL.Path, "/sheets/process-form/")
	if rowID == "" || strings.Contains(rowID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	submission, ok, err := s.store.Get(rowID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load submission failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "form submission not found")
		return
	}
	if submission.Processed {
		writeJSON(w, http.StatusOK, map[string]any{"row_id": rowID, "processed": true})
		return
	}
	s.processInBackground(r, rowID)
	writeJSON(w, http.StatusOK, map[string]any{"row_id": rowID, "processed": false, "status": "processing"})
}

func (s *Server) handleFormData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "form store not configured")
		return
	}
	rowID := strings.TrimPrefix(r.URL.Path, "/sheets/form-data/")
	if rowID == "" || strings.Contains(rowID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	submission, ok, err := s.store.Get(rowID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load submission failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "form submission not found")
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

func (s *Server) handleCheckProcessing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "form store not configured")
		return
	}
	rowID := strings.TrimPrefix(r.URL.Path, "/sheets/check-processing/")
	if rowID == "" || strings.Contains(rowID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	submission, ok, err := s.store.Get(rowID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load submission failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "form submission not found")
		return
	}
	out := map[string]any{"row_id": rowID, "processed": submission.Processed}
	if submission.UpdatedAt != nil {
		out["last_updated"] = submission.UpdatedAt
	}
	writeJSON(w, http.StatusOK, out)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeReasoningError(w http.ResponseWriter, err error) {
	var authErr *llm.AuthError
	if errors.As(err, &authErr) {
		writeError(w, http.StatusBadGateway, "language model authentication failed")
		return
	}
	var schemaErr *llm.SchemaError
	if errors.As(err, &schemaErr) {
		writeError(w, http.StatusBadGateway, "language model returned an unusable response")
		return
	}
	var apiErr *bookclient.APIError
	if errors.As(err, &apiErr) {
		writeError(w, http.StatusBadGateway, "book parser unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

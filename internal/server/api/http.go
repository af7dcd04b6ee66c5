package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/allenzhangsg/rbac/internal/logging"
)

// Server adapts the typed request/response contract to net/http.
type Server struct {
	address string
	handler *Handler
	logger  logging.Logger
}

func NewServer(address string, handler *Handler, logger logging.Logger) *Server {
	return &Server{
		address: address,
		handler: handler,
		logger:  logger.With("module", "http_server"),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log := s.logger.With("request_id", requestID)
	ctx := r.Context()

	req, err := fromHTTPRequest(r)
	if err != nil {
		log.Error(ctx, "failed to read request body", "error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp := s.handler.Dispatch(ctx, req)

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("X-Request-Id", requestID)
	for key, value := range resp.Headers {
		header.Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.WriteString(w, resp.Body); err != nil {
		log.Error(ctx, "failed to write response", "error", err.Error())
	}

	log.Info(ctx, "request handled",
		"method", req.Method, "path", req.Path, "status", resp.StatusCode)
}

func fromHTTPRequest(r *http.Request) (*Request, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(r.Header))
	for key := range r.Header {
		headers[key] = r.Header.Get(key)
	}
	// net/http folds repeated Cookie headers into one; the resolver expects
	// the full "; "-joined list.
	if cookies := r.Header.Values("Cookie"); len(cookies) > 1 {
		headers["Cookie"] = joinCookies(cookies)
	}

	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	return &Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: headers,
		Query:   query,
		Body:    body,
	}, nil
}

func joinCookies(values []string) string {
	joined := values[0]
	for _, v := range values[1:] {
		joined += "; " + v
	}
	return joined
}

// Run starts the listener and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

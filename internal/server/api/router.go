package api

import (
	"context"
	"net/http"
	"strings"
)

// Dispatch routes a request to its handler. Paths are normalized to start at
// the "/api" segment so the backend works both behind a gateway stage prefix
// and when addressed directly.
func (h *Handler) Dispatch(ctx context.Context, req *Request) *Response {
	path := req.Path
	if idx := strings.Index(path, "/api"); idx > 0 {
		path = path[idx:]
	}

	switch {
	case path == "/api/v1/auth/login" && req.Method == http.MethodPost:
		return h.handleLogin(ctx, req)
	case path == "/api/v1/auth/check" && req.Method == http.MethodGet:
		return h.handleCheck(ctx, req)
	case path == "/api/v1/auth/logout" && req.Method == http.MethodPost:
		return h.handleLogout(ctx, req)
	}

	if strings.HasPrefix(path, "/api/v1/users") {
		switch req.Method {
		case http.MethodPost:
			return h.handleCreateUser(ctx, req)
		case http.MethodGet:
			return h.handleReadUser(ctx, req)
		case http.MethodPut:
			return h.handleUpdateUser(ctx, req)
		case http.MethodDelete:
			return h.handleDeleteUser(ctx, req)
		}
	}

	return errorBody(http.StatusNotFound, "Not Found")
}

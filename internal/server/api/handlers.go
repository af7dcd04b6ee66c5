package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/allenzhangsg/rbac/internal/apperror"
	"github.com/allenzhangsg/rbac/internal/logging"
	"github.com/allenzhangsg/rbac/internal/server/auth"
	"github.com/allenzhangsg/rbac/internal/server/users"
)

// Handler converts inbound requests into directory and auth operations and
// their results back into responses. All error-to-status mapping happens
// here; nothing propagates past Dispatch.
type Handler struct {
	users    *users.Service
	resolver *auth.Resolver
	tokens   *auth.TokenService
	logger   logging.Logger
}

func NewHandler(us *users.Service, resolver *auth.Resolver, tokens *auth.TokenService, logger logging.Logger) *Handler {
	return &Handler{
		users:    us,
		resolver: resolver,
		tokens:   tokens,
		logger:   logger.With("module", "api"),
	}
}

func errorResponse(err error) *Response {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return errorBody(appErr.StatusCode(), appErr.Message)
	}
	return errorBody(http.StatusInternalServerError, err.Error())
}

// resolveIdentity maps every session resolution failure to 401; anything
// else coming out of the resolver is an unexpected store failure.
func (h *Handler) resolveIdentity(ctx context.Context, req *Request) (*auth.Identity, *Response) {
	identity, err := h.resolver.Resolve(ctx, req.Headers)
	if err == nil {
		return identity, nil
	}
	switch {
	case errors.Is(err, auth.ErrNoToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrIncompletePayload),
		errors.Is(err, auth.ErrUserNotFound):
		return nil, errorBody(http.StatusUnauthorized, err.Error())
	default:
		return nil, errorBody(http.StatusInternalServerError, err.Error())
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func accessTokenCookie(token string, maxAge int) string {
	return fmt.Sprintf("access_token=%s; HttpOnly; Secure; SameSite=None; Path=/; Max-Age=%d", token, maxAge)
}

func (h *Handler) handleLogin(ctx context.Context, req *Request) *Response {
	var body loginRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return errorBody(http.StatusBadRequest, "invalid request body")
	}

	token, err := h.users.Login(ctx, body.Username, body.Password)
	if err != nil {
		return errorResponse(err)
	}

	resp := jsonResponse(http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
	resp.Headers = map[string]string{
		"Set-Cookie": accessTokenCookie(token, int(h.tokens.TTL().Seconds())),
	}
	return resp
}

func (h *Handler) handleLogout(ctx context.Context, req *Request) *Response {
	resp := messageBody(http.StatusOK, "Logged out successfully")
	resp.Headers = map[string]string{
		"Set-Cookie": accessTokenCookie("", 0),
	}
	return resp
}

func (h *Handler) handleCheck(ctx context.Context, req *Request) *Response {
	identity, errResp := h.resolveIdentity(ctx, req)
	if errResp != nil {
		return errResp
	}

	permissions := identity.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"username":    identity.Username,
		"role":        identity.Role,
		"permissions": permissions,
	})
}

func (h *Handler) handleCreateUser(ctx context.Context, req *Request) *Response {
	identity, errResp := h.resolveIdentity(ctx, req)
	if errResp != nil {
		return errResp
	}

	var body users.CreateRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return errorBody(http.StatusBadRequest, "invalid request body")
	}

	id, err := h.users.Create(ctx, identity, body)
	if err != nil {
		return errorResponse(err)
	}

	return jsonResponse(http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"userId":  id,
	})
}

// idParam extracts the optional integer id query parameter. The bool reports
// presence; a present but non-numeric id is an error.
func idParam(req *Request) (int, bool, error) {
	raw, ok := req.Query["id"]
	if !ok || raw == "" {
		return 0, false, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, err
	}
	return id, true, nil
}

func (h *Handler) handleReadUser(ctx context.Context, req *Request) *Response {
	identity, errResp := h.resolveIdentity(ctx, req)
	if errResp != nil {
		return errResp
	}

	id, present, err := idParam(req)
	if err != nil {
		return errorBody(http.StatusBadRequest, "invalid id")
	}

	if present {
		user, err := h.users.Get(ctx, identity, id)
		if err != nil {
			return errorResponse(err)
		}
		return jsonResponse(http.StatusOK, user)
	}

	list, err := h.users.List(ctx, identity)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(http.StatusOK, list)
}

func (h *Handler) handleUpdateUser(ctx context.Context, req *Request) *Response {
	identity, errResp := h.resolveIdentity(ctx, req)
	if errResp != nil {
		return errResp
	}

	id, present, err := idParam(req)
	if err != nil || !present {
		return errorBody(http.StatusBadRequest, "invalid id")
	}

	var attrs map[string]any
	if err := json.Unmarshal(req.Body, &attrs); err != nil {
		return errorBody(http.StatusBadRequest, "invalid request body")
	}

	changed, err := h.users.Update(ctx, identity, id, attrs)
	if err != nil {
		return errorResponse(err)
	}

	return jsonResponse(http.StatusOK, map[string]any{
		"message":           "User updated successfully",
		"updatedAttributes": changed,
	})
}

func (h *Handler) handleDeleteUser(ctx context.Context, req *Request) *Response {
	identity, errResp := h.resolveIdentity(ctx, req)
	if errResp != nil {
		return errResp
	}

	id, present, err := idParam(req)
	if err != nil || !present {
		return errorBody(http.StatusBadRequest, "invalid id")
	}

	if err := h.users.Delete(ctx, identity, id); err != nil {
		return errorResponse(err)
	}

	return messageBody(http.StatusOK, "User deleted successfully")
}

package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allenzhangsg/rbac/internal/logging"
	"github.com/allenzhangsg/rbac/internal/server/auth"
	"github.com/allenzhangsg/rbac/internal/server/store"
	"github.com/allenzhangsg/rbac/internal/server/users"
)

const testSecret = "api-test-secret"

type testEnv struct {
	handler *Handler
	store   *store.MemoryStore
	tokens  *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	tokens := auth.NewTokenService([]byte(testSecret), 30*time.Minute)
	gate := auth.NewGate(auth.ModeCapability)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	resolver := auth.NewResolver(tokens, st, logger)
	us := users.NewService(st, tokens, gate, logger)

	return &testEnv{
		handler: NewHandler(us, resolver, tokens, logger),
		store:   st,
		tokens:  tokens,
	}
}

// seedAdmin writes an Admin record with every capability directly to the
// store and returns its credentials.
func (e *testEnv) seedAdmin(t *testing.T) (username, password string) {
	t.Helper()

	username, password = "root", "adminpw"
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	ctx := context.Background()
	id, err := e.store.NextID(ctx)
	require.NoError(t, err)

	require.NoError(t, e.store.Put(ctx, &store.UserItem{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		Role:         users.RoleAdmin,
		Permissions: []string{
			users.CanCreateUser, users.CanReadUser,
			users.CanUpdateUser, users.CanDeleteUser,
		},
	}))
	return username, password
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()

	resp := e.dispatch(t, &Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/login",
		Body:   []byte(`{"username":"` + username + `","password":"` + password + `"}`),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login failed: %s", resp.Body)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	return body["access_token"]
}

func (e *testEnv) dispatch(t *testing.T, req *Request) *Response {
	t.Helper()
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if req.Query == nil {
		req.Query = map[string]string{}
	}
	return e.handler.Dispatch(context.Background(), req)
}

func withToken(token string) map[string]string {
	return map[string]string{"Cookie": "access_token=" + token}
}

func TestLogin_SetsCookieAndReturnsToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)

	resp := env.dispatch(t, &Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/login",
		Body:   []byte(`{"username":"` + username + `","password":"` + password + `"}`),
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "bearer", body["token_type"])
	assert.NotEmpty(t, body["access_token"])

	cookie := resp.Headers["Set-Cookie"]
	assert.Contains(t, cookie, "access_token="+body["access_token"])
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "Max-Age=1800")

	claims, err := env.tokens.Verify(body["access_token"])
	require.NoError(t, err)
	assert.Equal(t, username, claims.Username)
	assert.Equal(t, users.RoleAdmin, claims.Role)
}

func TestLogin_WrongPassword_NoCookie(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, _ := env.seedAdmin(t)

	resp := env.dispatch(t, &Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/login",
		Body:   []byte(`{"username":"` + username + `","password":"wrong"}`),
	})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, resp.Headers["Set-Cookie"])
}

func TestLogin_MalformedBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.dispatch(t, &Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/login",
		Body:   []byte("{not json"),
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheck_ReturnsIdentity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)
	token := env.login(t, username, password)

	resp := env.dispatch(t, &Request{
		Method:  http.MethodGet,
		Path:    "/api/v1/auth/check",
		Headers: withToken(token),
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Username    string   `json:"username"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, username, body.Username)
	assert.Equal(t, users.RoleAdmin, body.Role)
	assert.Contains(t, body.Permissions, users.CanDeleteUser)
}

func TestCheck_NoToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.dispatch(t, &Request{Method: http.MethodGet, Path: "/api/v1/auth/check"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheck_ExpiredToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedAdmin(t)

	expiredIssuer := auth.NewTokenService([]byte(testSecret), -1*time.Second)
	token, err := expiredIssuer.Issue(1, "root", users.RoleAdmin)
	require.NoError(t, err)

	resp := env.dispatch(t, &Request{
		Method:  http.MethodGet,
		Path:    "/api/v1/auth/check",
		Headers: withToken(token),
	})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogout_ClearsCookie(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.dispatch(t, &Request{Method: http.MethodPost, Path: "/api/v1/auth/logout"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Headers["Set-Cookie"], "access_token=;")
	assert.Contains(t, resp.Headers["Set-Cookie"], "Max-Age=0")
}

func TestUserLifecycle_CreateReadDeleteRead(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)
	token := env.login(t, username, password)

	// Create.
	resp := env.dispatch(t, &Request{
		Method:  http.MethodPost,
		Path:    "/api/v1/users",
		Headers: withToken(token),
		Body:    []byte(`{"username":"alice","password":"p@ss","role":"Admin","permissions":["CanReadUser"]}`),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create failed: %s", resp.Body)

	var created struct {
		UserID int `json:"userId"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &created))
	assert.Greater(t, created.UserID, 0)

	// Read by id: username is present, the password hash never is.
	resp = env.dispatch(t, &Request{
		Method:  http.MethodGet,
		Path:    "/api/v1/users",
		Headers: withToken(token),
		Query:   map[string]string{"id": strconv.Itoa(created.UserID)},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, `"username":"alice"`)
	assert.NotContains(t, resp.Body, "password_hash")
	assert.NotContains(t, resp.Body, "p@ss")

	// Delete.
	resp = env.dispatch(t, &Request{
		Method:  http.MethodDelete,
		Path:    "/api/v1/users",
		Headers: withToken(token),
		Query:   map[string]string{"id": strconv.Itoa(created.UserID)},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Read again: gone.
	resp = env.dispatch(t, &Request{
		Method:  http.MethodGet,
		Path:    "/api/v1/users",
		Headers: withToken(token),
		Query:   map[string]string{"id": strconv.Itoa(created.UserID)},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)
	token := env.login(t, username, password)

	body := []byte(`{"username":"alice","password":"x"}`)

	resp := env.dispatch(t, &Request{
		Method: http.MethodPost, Path: "/api/v1/users", Headers: withToken(token), Body: body,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.dispatch(t, &Request{
		Method: http.MethodPost, Path: "/api/v1/users", Headers: withToken(token), Body: body,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateUser_InsufficientPermissions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)
	token := env.login(t, username, password)

	// A user that can only read.
	resp := env.dispatch(t, &Request{
		Method:  http.MethodPost,
		Path:    "/api/v1/users",
		Headers: withToken(token),
		Body:    []byte(`{"username":"viewer","password":"viewerpw","permissions":["CanReadUser"]}`),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	viewerToken := env.login(t, "viewer", "viewerpw")

	resp = env.dispatch(t, &Request{
		Method:  http.MethodPost,
		Path:    "/api/v1/users",
		Headers: withToken(viewerToken),
		Body:    []byte(`{"username":"eve","password":"x"}`),
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReadUsers_CollectionRedactsHashes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)
	token := env.login(t, username, password)

	resp := env.dispatch(t, &Request{
		Method:  http.MethodGet,
		Path:    "/api/v1/users",
		Headers: withToken(token),
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &list))
	require.NotEmpty(t, list)
	for _, user := range list {
		assert.NotContains(t, user, "password_hash")
	}
}

func TestUpdateUser_ReturnsChangedAttributes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)
	token := env.login(t, username, password)

	resp := env.dispatch(t, &Request{
		Method:  http.MethodPost,
		Path:    "/api/v1/users",
		Headers: withToken(token),
		Body:    []byte(`{"username":"alice","password":"x","email":"old@example.com"}`),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		UserID int `json:"userId"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &created))

	resp = env.dispatch(t, &Request{
		Method:  http.MethodPut,
		Path:    "/api/v1/users",
		Headers: withToken(token),
		Query:   map[string]string{"id": strconv.Itoa(created.UserID)},
		Body:    []byte(`{"id":999,"email":"new@example.com"}`),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		UpdatedAttributes map[string]any `json:"updatedAttributes"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, map[string]any{"email": "new@example.com"}, body.UpdatedAttributes)
}

func TestUpdateUser_MissingID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)
	token := env.login(t, username, password)

	resp := env.dispatch(t, &Request{
		Method:  http.MethodPut,
		Path:    "/api/v1/users",
		Headers: withToken(token),
		Body:    []byte(`{"email":"x@example.com"}`),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteUser_UnknownIDStillSucceeds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)
	token := env.login(t, username, password)

	resp := env.dispatch(t, &Request{
		Method:  http.MethodDelete,
		Path:    "/api/v1/users",
		Headers: withToken(token),
		Query:   map[string]string{"id": "424242"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDispatch_UnknownRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.dispatch(t, &Request{Method: http.MethodGet, Path: "/api/v1/unknown"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDispatch_StagePrefixStripped(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	username, password := env.seedAdmin(t)

	resp := env.dispatch(t, &Request{
		Method: http.MethodPost,
		Path:   "/prod/api/v1/auth/login",
		Body:   []byte(`{"username":"` + username + `","password":"` + password + `"}`),
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

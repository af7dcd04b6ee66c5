package users

import (
	"context"
	"errors"

	"github.com/allenzhangsg/rbac/internal/apperror"
	"github.com/allenzhangsg/rbac/internal/logging"
	"github.com/allenzhangsg/rbac/internal/server/auth"
	"github.com/allenzhangsg/rbac/internal/server/store"
)

// Per-operation requirements: the capability consulted in capability mode and
// the allowed roles consulted in role mode.
var (
	createRequirement = auth.Requirement{Capability: CanCreateUser, Roles: []string{RoleAdmin}}
	readRequirement   = auth.Requirement{Capability: CanReadUser, Roles: []string{RoleStaff, RoleAdmin}}
	updateRequirement = auth.Requirement{Capability: CanUpdateUser, Roles: []string{RoleAdmin}}
	deleteRequirement = auth.Requirement{Capability: CanDeleteUser, Roles: []string{RoleAdmin}}
)

// updatableAttrs is the set of record attributes a partial update may touch.
// The record id is immutable and silently skipped.
var updatableAttrs = map[string]struct{}{
	"username":    {},
	"role":        {},
	"permissions": {},
	"name":        {},
	"email":       {},
	"phone":       {},
	"website":     {},
}

// Service implements the directory operations. Every operation passes through
// the permission gate before touching the store.
type Service struct {
	store  store.Store
	tokens *auth.TokenService
	gate   *auth.Gate
	logger logging.Logger
}

func NewService(s store.Store, tokens *auth.TokenService, gate *auth.Gate, logger logging.Logger) *Service {
	return &Service{store: s, tokens: tokens, gate: gate, logger: logger}
}

func storeError(err error) *apperror.Error {
	return apperror.NewStore(err.Error(), err)
}

// Login verifies the credentials and issues a bearer token carrying the
// subject id, username and role. Unknown user and wrong password are not
// distinguished for the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	item, err := s.store.QueryByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperror.NewAuth("Invalid username or password", nil)
		}
		return "", storeError(err)
	}

	if !auth.VerifyPassword(password, item.PasswordHash) {
		return "", apperror.NewAuth("Invalid username or password", nil)
	}

	token, err := s.tokens.Issue(item.ID, item.Username, item.Role)
	if err != nil {
		return "", storeError(err)
	}

	s.logger.Info(ctx, "login succeeded", "username", username)
	return token, nil
}

// Create allocates a fresh id from the atomic counter, hashes the password
// and writes the record. A username matching an existing record is a
// conflict and nothing is written.
func (s *Service) Create(ctx context.Context, caller *auth.Identity, req CreateRequest) (int, error) {
	if !s.gate.Allowed(caller, createRequirement) {
		return 0, apperror.NewForbidden("Insufficient permissions", nil)
	}

	if req.Username == "" {
		return 0, apperror.NewValidation("username is required", nil)
	}

	_, err := s.store.QueryByUsername(ctx, req.Username)
	if err == nil {
		return 0, apperror.NewConflict("username already exists", nil)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, storeError(err)
	}

	id, err := s.store.NextID(ctx)
	if err != nil {
		return 0, storeError(err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return 0, storeError(err)
	}

	role := req.Role
	if role == "" {
		role = RoleStaff
	}
	permissions := req.Permissions
	if permissions == nil {
		permissions = []string{CanReadUser}
	}

	item := &store.UserItem{
		ID:           id,
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
		Permissions:  permissions,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Website:      req.Website,
	}

	if err := s.store.Put(ctx, item); err != nil {
		return 0, storeError(err)
	}

	s.logger.Info(ctx, "user created", "id", id, "username", req.Username)
	return id, nil
}

// Get returns a single record by id with the password hash redacted.
func (s *Service) Get(ctx context.Context, caller *auth.Identity, id int) (*User, error) {
	if !s.gate.Allowed(caller, readRequirement) {
		return nil, apperror.NewForbidden("Insufficient permissions", nil)
	}

	item, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NewNotFound("User not found", nil)
		}
		return nil, storeError(err)
	}

	return fromItem(item), nil
}

// List returns the full collection with password hashes redacted.
func (s *Service) List(ctx context.Context, caller *auth.Identity) ([]*User, error) {
	if !s.gate.Allowed(caller, readRequirement) {
		return nil, apperror.NewForbidden("Insufficient permissions", nil)
	}

	items, err := s.store.Scan(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	result := make([]*User, 0, len(items))
	for _, item := range items {
		result = append(result, fromItem(item))
	}
	return result, nil
}

// Update applies a partial update: only the attributes present in attrs are
// modified. A "password" attribute is hashed into password_hash; "id" is
// skipped. Returns the attributes actually changed, with the password hash
// redacted.
func (s *Service) Update(ctx context.Context, caller *auth.Identity, id int, attrs map[string]any) (map[string]any, error) {
	if !s.gate.Allowed(caller, updateRequirement) {
		return nil, apperror.NewForbidden("Insufficient permissions", nil)
	}

	filtered := make(map[string]any, len(attrs))
	for key, value := range attrs {
		if key == "password" {
			if plaintext, ok := value.(string); ok {
				hash, err := auth.HashPassword(plaintext)
				if err != nil {
					return nil, storeError(err)
				}
				filtered["password_hash"] = hash
			}
			continue
		}
		if _, ok := updatableAttrs[key]; !ok {
			continue
		}
		if key == "permissions" {
			permissions, err := toStringSlice(value)
			if err != nil {
				return nil, apperror.NewValidation("permissions must be a list of strings", err)
			}
			filtered[key] = permissions
			continue
		}
		text, ok := value.(string)
		if !ok {
			return nil, apperror.NewValidation(key+" must be a string", nil)
		}
		filtered[key] = text
	}

	changed, err := s.store.Update(ctx, id, filtered)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NewNotFound("User not found", nil)
		}
		return nil, storeError(err)
	}

	delete(changed, "password_hash")
	s.logger.Info(ctx, "user updated", "id", id)
	return changed, nil
}

// Delete removes the record. Deleting a missing id is a success: the store's
// delete-if-exists semantics are adopted.
func (s *Service) Delete(ctx context.Context, caller *auth.Identity, id int) error {
	if !s.gate.Allowed(caller, deleteRequirement) {
		return apperror.NewForbidden("Insufficient permissions", nil)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return storeError(err)
	}

	s.logger.Info(ctx, "user deleted", "id", id)
	return nil
}

func toStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		result := make([]string, 0, len(v))
		for _, elem := range v {
			text, ok := elem.(string)
			if !ok {
				return nil, errors.New("non-string element")
			}
			result = append(result, text)
		}
		return result, nil
	default:
		return nil, errors.New("not a list")
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/allenzhangsg/rbac/internal/server/store/migrations"
)

// postgresColumns are the updatable columns of the users table. Update
// silently drops attributes outside this set.
var postgresColumns = map[string]struct{}{
	"username":      {},
	"password_hash": {},
	"role":          {},
	"permissions":   {},
	"name":          {},
	"email":         {},
	"phone":         {},
	"website":       {},
}

// PostgresStore implements Store on top of a Postgres users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	return goose.UpContext(ctx, s.db, ".")
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const selectColumns = `id, COALESCE(username, ''), COALESCE(password_hash, ''), COALESCE(role, ''),
       COALESCE(permissions, ''), COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, ''), COALESCE(website, '')`

func scanUserItem(row interface{ Scan(...any) error }) (*UserItem, error) {
	item := &UserItem{}
	var permissions string
	err := row.Scan(&item.ID, &item.Username, &item.PasswordHash, &item.Role,
		&permissions, &item.Name, &item.Email, &item.Phone, &item.Website)
	if err != nil {
		return nil, err
	}
	item.Permissions = decodePermissions(permissions)
	return item, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int) (*UserItem, error) {
	query := `SELECT ` + selectColumns + ` FROM users WHERE id = $1`

	item, err := scanUserItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) QueryByUsername(ctx context.Context, username string) (*UserItem, error) {
	query := `SELECT ` + selectColumns + ` FROM users WHERE username = $1 LIMIT 1`

	item, err := scanUserItem(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return item, nil
}

// nullIfEmpty maps empty strings to NULL so that empty-valued attributes are
// not stored, matching the key-value backend.
func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func (s *PostgresStore) Put(ctx context.Context, item *UserItem) error {
	query := `INSERT INTO users (id, username, password_hash, role, permissions, name, email, phone, website)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          ON CONFLICT (id) DO UPDATE SET
	              username = EXCLUDED.username,
	              password_hash = EXCLUDED.password_hash,
	              role = EXCLUDED.role,
	              permissions = EXCLUDED.permissions,
	              name = EXCLUDED.name,
	              email = EXCLUDED.email,
	              phone = EXCLUDED.phone,
	              website = EXCLUDED.website`

	_, err := s.db.ExecContext(ctx, query, item.ID,
		nullIfEmpty(item.Username), nullIfEmpty(item.PasswordHash), nullIfEmpty(item.Role),
		nullIfEmpty(encodePermissions(item.Permissions)), nullIfEmpty(item.Name),
		nullIfEmpty(item.Email), nullIfEmpty(item.Phone), nullIfEmpty(item.Website))
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id int, attrs map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		if _, ok := postgresColumns[key]; ok {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := []any{id}
	for i, key := range keys {
		value := attrs[key]
		if permissions, ok := value.([]string); ok {
			value = encodePermissions(permissions)
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", key, i+2))
		args = append(args, value)
	}

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $1", strings.Join(clauses, ", "))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	changed := make(map[string]any, len(keys))
	for _, key := range keys {
		changed[key] = attrs[key]
	}
	return changed, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Scan(ctx context.Context) ([]*UserItem, error) {
	query := `SELECT ` + selectColumns + ` FROM users ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var items []*UserItem
	for rows.Next() {
		item, err := scanUserItem(rows)
		if err != nil {
			return nil, fmt.Errorf("error performing sql request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) NextID(ctx context.Context) (int, error) {
	query := `INSERT INTO user_counter (id, current_count) VALUES (1, 1)
	          ON CONFLICT (id) DO UPDATE SET current_count = user_counter.current_count + 1
	          RETURNING current_count`

	var id int
	if err := s.db.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return id, nil
}

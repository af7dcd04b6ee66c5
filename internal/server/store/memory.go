package store

import (
	"context"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory implementation of Store, used in
// tests and local runs without external infrastructure.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[int]*UserItem
	counter int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int]*UserItem)}
}

func cloneItem(item *UserItem) *UserItem {
	c := *item
	c.Permissions = append([]string(nil), item.Permissions...)
	return &c
}

func (s *MemoryStore) Get(ctx context.Context, id int) (*UserItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(item), nil
}

func (s *MemoryStore) QueryByUsername(ctx context.Context, username string) (*UserItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.Username == username {
			return cloneItem(item), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Put(ctx context.Context, item *UserItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[item.ID] = cloneItem(item)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id int, attrs map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}

	changed := make(map[string]any, len(attrs))
	for key, value := range attrs {
		switch key {
		case "username":
			item.Username = value.(string)
		case "password_hash":
			item.PasswordHash = value.(string)
		case "role":
			item.Role = value.(string)
		case "permissions":
			item.Permissions = append([]string(nil), value.([]string)...)
		case "name":
			item.Name = value.(string)
		case "email":
			item.Email = value.(string)
		case "phone":
			item.Phone = value.(string)
		case "website":
			item.Website = value.(string)
		default:
			continue
		}
		changed[key] = value
	}
	return changed, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context) ([]*UserItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]*UserItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, cloneItem(item))
	}
	return items, nil
}

func (s *MemoryStore) NextID(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	return s.counter, nil
}

package users

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is an in-memory implementation of UserStore.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	store  map[int64]*User
}

var _ UserStore = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID: 1,
		store:  make(map[int64]*User),
	}
}

func (s *InMemoryStore) CreateUser(ctx context.Context, user *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userCopy := *user
	userCopy.ID = s.nextID
	s.nextID++
	s.store[userCopy.ID] = &userCopy

	result := userCopy
	return &result, nil
}

func (s *InMemoryStore) GetUser(ctx context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.store[id]
	if !ok {
		return nil, NewUserNotFoundError(id)
	}

	clone := *user
	return &clone, nil
}

func (s *InMemoryStore) UpdateUser(ctx context.Context, user *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.store[user.ID]; !ok {
		return nil, NewUserNotFoundError(user.ID)
	}

	clone := *user
	s.store[user.ID] = &clone
	result := clone
	return &result, nil
}

func (s *InMemoryStore) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.store[id]; !ok {
		return NewUserNotFoundError(id)
	}
	delete(s.store, id)
	return nil
}

func (s *InMemoryStore) ListUsers(ctx context.Context) ([]*User, error) {
	return s.filter(func(*User) bool { return true }), nil
}

func (s *InMemoryStore) ListUsersByIDs(ctx context.Context, ids []int64) ([]*User, error) {
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return s.filter(func(u *User) bool {
		_, ok := wanted[u.ID]
		return ok
	}), nil
}

func (s *InMemoryStore) ListUsersByEmail(ctx context.Context, email string) ([]*User, error) {
	return s.filter(func(u *User) bool { return u.Email == email }), nil
}

func (s *InMemoryStore) ListUsersByNickname(ctx context.Context, nickname string) ([]*User, error) {
	return s.filter(func(u *User) bool { return u.Nickname == nickname }), nil
}

func (s *InMemoryStore) filter(match func(*User) bool) []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*User, 0, len(s.store))
	for _, user := range s.store {
		if match(user) {
			clone := *user
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

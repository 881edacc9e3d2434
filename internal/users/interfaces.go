package users

import (
	"context"
)

// UserStore defines the interface for user storage operations.
// Lookups of a missing id return a not-found *UserError; every other
// failure is a *StorageError.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	UpdateUser(ctx context.Context, user *User) (*User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]*User, error)
	ListUsersByIDs(ctx context.Context, ids []int64) ([]*User, error)
	ListUsersByEmail(ctx context.Context, email string) ([]*User, error)
	ListUsersByNickname(ctx context.Context, nickname string) ([]*User, error)
}

// UserService defines the interface for user service operations
type UserService interface {
	CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	UpdateUser(ctx context.Context, id int64, req *UpdateUserRequest) (*User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context, filter *Filter) ([]*User, error)
}

package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

// PostgresStore implements the UserStore interface using PostgreSQL
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore creates a new user store instance
func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

// CreateUser inserts a user and returns it with the id assigned by the database
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, fmt.Errorf("user cannot be nil")
	}

	userSchema := UserToUserSchema(user)
	userSchema.ID = 0

	_, err := s.db.NewInsert().
		Model(&userSchema).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, classifyStorageError("create", err)
	}

	return UserSchemaToUser(userSchema), nil
}

// GetUser retrieves a user by id
func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	var userSchema UserSchema
	err := s.db.NewSelect().
		Model(&userSchema).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewUserNotFoundError(id)
		}
		return nil, classifyStorageError("get", err)
	}

	return UserSchemaToUser(userSchema), nil
}

// UpdateUser overwrites every column of an existing user
func (s *PostgresStore) UpdateUser(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, fmt.Errorf("user cannot be nil")
	}

	userSchema := UserToUserSchema(user)
	err := s.db.NewUpdate().
		Model(&userSchema).
		WherePK().
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewUserNotFoundError(user.ID)
		}
		return nil, classifyStorageError("update", err)
	}

	return UserSchemaToUser(userSchema), nil
}

// DeleteUser removes a user by id
func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.db.NewDelete().
		Model((*UserSchema)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return classifyStorageError("delete", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classifyStorageError("delete", err)
	}
	if rowsAffected == 0 {
		return NewUserNotFoundError(id)
	}

	return nil
}

// ListUsers returns every user ordered by id
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	return s.list(ctx, "list", nil)
}

// ListUsersByIDs returns the users whose id is in ids; unknown ids are skipped
func (s *PostgresStore) ListUsersByIDs(ctx context.Context, ids []int64) ([]*User, error) {
	if len(ids) == 0 {
		return []*User{}, nil
	}
	return s.list(ctx, "list_by_ids", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id IN (?)", bun.In(ids))
	})
}

// ListUsersByEmail returns the users with exactly this email
func (s *PostgresStore) ListUsersByEmail(ctx context.Context, email string) ([]*User, error) {
	return s.list(ctx, "list_by_email", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("email = ?", email)
	})
}

// ListUsersByNickname returns the users with exactly this nickname
func (s *PostgresStore) ListUsersByNickname(ctx context.Context, nickname string) ([]*User, error) {
	return s.list(ctx, "list_by_nickname", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("nickname = ?", nickname)
	})
}

func (s *PostgresStore) list(ctx context.Context, operation string, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]*User, error) {
	var userSchemas []UserSchema
	query := s.db.NewSelect().
		Model(&userSchemas).
		Order("id ASC")
	if filter != nil {
		query = filter(query)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, classifyStorageError(operation, err)
	}

	users := make([]*User, len(userSchemas))
	for i, schema := range userSchemas {
		users[i] = UserSchemaToUser(schema)
	}
	return users, nil
}

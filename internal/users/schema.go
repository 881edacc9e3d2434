package users

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// UserSchema represents the users table schema in PostgreSQL
type UserSchema struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	CountryCode string `bun:"country_code,notnull" json:"countryCode"`
	DateOfBirth string `bun:"date_of_birth,notnull" json:"dateOfBirth"`
	FirstName   string `bun:"first_name,notnull" json:"firstName"`
	LastName    string `bun:"last_name,notnull" json:"lastName"`
	Nickname    string `bun:"nickname,notnull" json:"nickname"`
	Gender      string `bun:"gender,notnull" json:"gender"`
	Email       string `bun:"email,notnull" json:"email"`
}

// UserIndexes back the email and nickname searches
var UserIndexes = []string{
	"CREATE INDEX IF NOT EXISTS users_email_idx ON users(email)",
	"CREATE INDEX IF NOT EXISTS users_nickname_idx ON users(nickname)",
}

// CreateTables creates the users table if it does not exist
func CreateTables(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*UserSchema)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table for model %T: %w", (*UserSchema)(nil), err)
	}
	return nil
}

// CreateIndexes creates the secondary indexes of the users table
func CreateIndexes(ctx context.Context, db *bun.DB) error {
	for _, indexSQL := range UserIndexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index with SQL %q: %w", indexSQL, err)
		}
	}
	return nil
}

// CreateSchema runs CreateTables followed by CreateIndexes
func CreateSchema(ctx context.Context, db *bun.DB) error {
	if err := CreateTables(ctx, db); err != nil {
		return err
	}
	return CreateIndexes(ctx, db)
}

// Helper conversion functions
func UserSchemaToUser(schema UserSchema) *User {
	return &User{
		ID:          schema.ID,
		CountryCode: schema.CountryCode,
		DateOfBirth: schema.DateOfBirth,
		FirstName:   schema.FirstName,
		LastName:    schema.LastName,
		Nickname:    schema.Nickname,
		Gender:      schema.Gender,
		Email:       schema.Email,
	}
}

func UserToUserSchema(user *User) UserSchema {
	return UserSchema{
		ID:          user.ID,
		CountryCode: user.CountryCode,
		DateOfBirth: user.DateOfBirth,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Nickname:    user.Nickname,
		Gender:      user.Gender,
		Email:       user.Email,
	}
}

package users

import (
	"errors"
	"fmt"
	"strings"
)

// User represents a person record owned by the store
type User struct {
	ID          int64  `json:"id"`
	CountryCode string `json:"countryCode"`
	DateOfBirth string `json:"dateOfBirth"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Nickname    string `json:"nickname"`
	Gender      string `json:"gender"`
	Email       string `json:"email"`
}

// CreateUserRequest represents the request to create a user.
// Pointers distinguish a missing field from an empty string.
type CreateUserRequest struct {
	CountryCode *string `json:"countryCode" binding:"required"`
	DateOfBirth *string `json:"dateOfBirth" binding:"required"`
	FirstName   *string `json:"firstName" binding:"required"`
	LastName    *string `json:"lastName" binding:"required"`
	Nickname    *string `json:"nickname" binding:"required"`
	Gender      *string `json:"gender" binding:"required"`
	Email       *string `json:"email" binding:"required"`
}

// Validate reports every required field that is missing
func (r *CreateUserRequest) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"countryCode", r.CountryCode},
		{"dateOfBirth", r.DateOfBirth},
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
		{"nickname", r.Nickname},
		{"gender", r.Gender},
		{"email", r.Email},
	} {
		if f.value == nil {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ToUser converts a validated request into a user without an id
func (r *CreateUserRequest) ToUser() *User {
	return &User{
		CountryCode: *r.CountryCode,
		DateOfBirth: *r.DateOfBirth,
		FirstName:   *r.FirstName,
		LastName:    *r.LastName,
		Nickname:    *r.Nickname,
		Gender:      *r.Gender,
		Email:       *r.Email,
	}
}

// UpdateUserRequest carries the fields to overwrite; nil fields are left untouched
type UpdateUserRequest struct {
	CountryCode *string `json:"countryCode"`
	DateOfBirth *string `json:"dateOfBirth"`
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Nickname    *string `json:"nickname"`
	Gender      *string `json:"gender"`
	Email       *string `json:"email"`
}

// ApplyTo copies every present field onto user
func (r *UpdateUserRequest) ApplyTo(user *User) {
	if r.CountryCode != nil {
		user.CountryCode = *r.CountryCode
	}
	if r.DateOfBirth != nil {
		user.DateOfBirth = *r.DateOfBirth
	}
	if r.FirstName != nil {
		user.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		user.LastName = *r.LastName
	}
	if r.Nickname != nil {
		user.Nickname = *r.Nickname
	}
	if r.Gender != nil {
		user.Gender = *r.Gender
	}
	if r.Email != nil {
		user.Email = *r.Email
	}
}

// Filter holds the optional search parameters of a list request.
// At most one of them may be set.
type Filter struct {
	IDs      []int64
	Email    string
	Nickname string
}

var errNilRequest = errors.New("request body is required")

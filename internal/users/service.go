package users

import (
	"context"

	"github.com/userservice/userservice/internal/cacheaside"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/userservice/userservice/internal/users"

// UserServiceImpl implements the UserService interface
type UserServiceImpl struct {
	store  UserStore
	cache  *cacheaside.Coordinator
	tracer trace.Tracer
}

var _ UserService = (*UserServiceImpl)(nil)

// NewUserService creates a new user service instance. A nil coordinator
// disables caching.
func NewUserService(store UserStore, coordinator *cacheaside.Coordinator) *UserServiceImpl {
	if coordinator == nil {
		coordinator = cacheaside.Disabled()
	}
	return &UserServiceImpl{
		store:  store,
		cache:  coordinator,
		tracer: otel.Tracer(tracerName),
	}
}

// CreateUser validates and stores a new user
func (s *UserServiceImpl) CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "users.CreateUser")
	defer span.End()

	if req == nil {
		return nil, endSpan(span, NewInvalidRequestError(MessageInvalidUserField, errNilRequest))
	}
	if err := req.Validate(); err != nil {
		return nil, endSpan(span, NewInvalidRequestError(MessageInvalidUserField, err))
	}

	created, err := s.store.CreateUser(ctx, req.ToUser())
	if err != nil {
		return nil, endSpan(span, err)
	}
	span.SetAttributes(attribute.Int64("user.id", created.ID))

	s.cache.Invalidate(ctx, mutationTags(nil, created)...)
	return created, nil
}

// GetUser returns a user by id
func (s *UserServiceImpl) GetUser(ctx context.Context, id int64) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "users.GetUser",
		trace.WithAttributes(attribute.Int64("user.id", id)))
	defer span.End()

	user, err := cacheaside.Read(ctx, s.cache, userCacheName(id), []string{idTag(id)},
		func(ctx context.Context) (*User, error) {
			return s.store.GetUser(ctx, id)
		})
	if err != nil {
		return nil, endSpan(span, err)
	}
	return user, nil
}

// UpdateUser overwrites the fields present in req
func (s *UserServiceImpl) UpdateUser(ctx context.Context, id int64, req *UpdateUserRequest) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "users.UpdateUser",
		trace.WithAttributes(attribute.Int64("user.id", id)))
	defer span.End()

	if req == nil {
		return nil, endSpan(span, NewInvalidRequestError(MessageInvalidUserField, errNilRequest))
	}

	existing, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, endSpan(span, err)
	}

	changed := *existing
	req.ApplyTo(&changed)
	changed.ID = id

	updated, err := s.store.UpdateUser(ctx, &changed)
	if err != nil {
		return nil, endSpan(span, err)
	}

	s.cache.Invalidate(ctx, mutationTags(existing, updated)...)
	return updated, nil
}

// DeleteUser removes a user by id
func (s *UserServiceImpl) DeleteUser(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "users.DeleteUser",
		trace.WithAttributes(attribute.Int64("user.id", id)))
	defer span.End()

	existing, err := s.store.GetUser(ctx, id)
	if err != nil {
		return endSpan(span, err)
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return endSpan(span, err)
	}

	s.cache.Invalidate(ctx, mutationTags(existing, nil)...)
	return nil
}

// ListUsers returns the users selected by filter, ordered by id
func (s *UserServiceImpl) ListUsers(ctx context.Context, filter *Filter) ([]*User, error) {
	ctx, span := s.tracer.Start(ctx, "users.ListUsers")
	defer span.End()

	if filter != nil {
		span.SetAttributes(
			attribute.Int64Slice("filter.ids", filter.IDs),
			attribute.String("filter.email", filter.Email),
			attribute.String("filter.nickname", filter.Nickname),
		)
	}

	query, err := ResolveFilter(filter)
	if err != nil {
		return nil, endSpan(span, err)
	}

	users, err := cacheaside.Read(ctx, s.cache, query.cacheName(), query.scopeTags(),
		func(ctx context.Context) ([]*User, error) {
			return query.Run(ctx, s.store)
		})
	if err != nil {
		return nil, endSpan(span, err)
	}
	span.SetAttributes(attribute.Int("result.count", len(users)))
	return users, nil
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

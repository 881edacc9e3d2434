package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/userservice/userservice/internal/cacheaside"
	"github.com/userservice/userservice/internal/users"
)

const (
	cacheHeader         = "X-Users-Cache"
	messageBodyTooLarge = "Request Entity Too Large"
)

func createUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req users.CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			as.Logger.Debug("Rejected create request", zap.Error(err))
			writeBindError(c, err)
			return
		}

		user, err := as.UserService.CreateUser(c.Request.Context(), &req)
		if err != nil {
			writeError(as, c, "create user", err)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

func getUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userIDParam(c)
		if !ok {
			return
		}

		ctx, recorder := cacheaside.WithRecorder(c.Request.Context())
		user, err := as.UserService.GetUser(ctx, id)
		setCacheHeader(c, recorder)
		if err != nil {
			writeError(as, c, "get user", err)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

func updateUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userIDParam(c)
		if !ok {
			return
		}

		var req users.UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			as.Logger.Debug("Rejected update request", zap.Int64("user_id", id), zap.Error(err))
			writeBindError(c, err)
			return
		}

		user, err := as.UserService.UpdateUser(c.Request.Context(), id, &req)
		if err != nil {
			writeError(as, c, "update user", err)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

func deleteUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userIDParam(c)
		if !ok {
			return
		}

		if err := as.UserService.DeleteUser(c.Request.Context(), id); err != nil {
			writeError(as, c, "delete user", err)
			return
		}

		c.Status(http.StatusOK)
	}
}

func listUsers(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := filterFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": users.MessageInvalidUserField})
			return
		}

		ctx, recorder := cacheaside.WithRecorder(c.Request.Context())
		result, err := as.UserService.ListUsers(ctx, filter)
		setCacheHeader(c, recorder)
		if err != nil {
			writeError(as, c, "list users", err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// filterFromQuery reads ids, email and nickname. ids may repeat and may be
// comma separated; email and nickname also accept their plural spelling.
func filterFromQuery(c *gin.Context) (*users.Filter, error) {
	filter := &users.Filter{
		Email:    firstQuery(c, "email", "emails"),
		Nickname: firstQuery(c, "nickname", "nicknames"),
	}

	for _, raw := range c.QueryArray("ids") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, err
			}
			filter.IDs = append(filter.IDs, id)
		}
	}

	return filter, nil
}

func firstQuery(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if value := c.Query(key); value != "" {
			return value
		}
	}
	return ""
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": users.MessageInvalidUserField})
		return 0, false
	}
	return id, true
}

func setCacheHeader(c *gin.Context, recorder *cacheaside.Recorder) {
	if outcome := recorder.Outcome(); outcome != "" {
		c.Header(cacheHeader, string(outcome))
	}
}

// writeError maps service errors onto status codes and {"detail": ...} bodies
// writeBindError answers a request whose JSON body could not be bound
func writeBindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": messageBodyTooLarge})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"detail": users.MessageInvalidUserField})
}

func writeError(as *AppState, c *gin.Context, operation string, err error) {
	var userErr *users.UserError
	switch {
	case errors.As(err, &userErr) && userErr.Type == users.UserErrorTypeInvalidRequest:
		c.JSON(http.StatusBadRequest, gin.H{"detail": userErr.Message})
	case errors.As(err, &userErr) && userErr.Type == users.UserErrorTypeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"detail": userErr.Message})
	case users.IsStoreUnavailable(err):
		as.Logger.Error("Store unavailable",
			zap.String("operation", operation),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": users.MessageServiceUnavailable})
	default:
		as.Logger.Error("Failed to "+operation,
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": users.MessageInternalServerError})
	}
}

package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/userservice/userservice/internal/health"
)

const requestIDHeader = "X-Request-ID"

func setupRouter(as *AppState) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(cors.Default())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLoggingMiddleware(as.Logger))
	router.Use(MaxBodySizeMiddleware(maxRequestSize(as)))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		as.Logger.Error("Panic while handling request",
			zap.Any("panic", recovered),
			zap.String("request_id", c.GetString("request_id")))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
	}))

	router.GET("/health", healthCheck(as))

	// /v2/users is the path older clients were given; both serve the same API
	for _, prefix := range []string{"/users", "/v2/users"} {
		group := router.Group(prefix)
		{
			group.POST("", createUser(as))
			group.GET("", listUsers(as))
			group.GET("/:userId", getUser(as))
			group.PUT("/:userId", updateUser(as))
			group.DELETE("/:userId", deleteUser(as))
		}
	}

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"detail": "Method Not Allowed"})
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})

	return router
}

// RequestIDMiddleware echoes the caller's X-Request-ID or assigns a new one
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// MaxBodySizeMiddleware caps request bodies at limit bytes; a limit of zero
// or less disables the cap.
func MaxBodySizeMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"detail": messageBodyTooLarge})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func maxRequestSize(as *AppState) int64 {
	if as.Config == nil {
		return 0
	}
	return as.Config.Common.Http.MaxRequestSize
}

// RequestLoggingMiddleware logs one line per request
func RequestLoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(startTime)),
			zap.String("client_ip", c.ClientIP()),
		}
		if cacheStatus := c.Writer.Header().Get(cacheHeader); cacheStatus != "" {
			fields = append(fields, zap.String("cache", cacheStatus))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

func healthCheck(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := as.Health.RuntimeHealthCheck(c.Request.Context())

		status := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":    report.Status,
			"timestamp": time.Now().Format(time.RFC3339),
			"services":  report.Services,
		})
	}
}

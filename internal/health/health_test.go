package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/zap"
)

type stubChecker struct {
	name     string
	critical bool
	err      error
}

func (s stubChecker) HealthCheck(context.Context) error { return s.err }
func (s stubChecker) IsCritical() bool                  { return s.critical }
func (s stubChecker) Name() string                      { return s.name }

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestStartupHealthCheck(t *testing.T) {
	ctx := context.Background()

	m := NewManager(zap.NewNop())
	m.AddChecker(stubChecker{name: "database", critical: true})
	m.AddChecker(stubChecker{name: "cache", err: errors.New("refused")})
	assert.NoError(t, m.StartupHealthCheck(ctx))

	m.AddChecker(stubChecker{name: "other", critical: true, err: errors.New("down")})
	err := m.StartupHealthCheck(ctx)
	assert.ErrorContains(t, err, "other")
}

func TestRuntimeHealthCheck(t *testing.T) {
	ctx := context.Background()

	m := NewManager(zap.NewNop())
	m.AddChecker(stubChecker{name: "database", critical: true})
	m.AddChecker(NewCacheHealthChecker(stubPinger{}))
	report := m.RuntimeHealthCheck(ctx)
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, map[string]string{"database": "healthy", "cache": "healthy"}, report.Services)

	m = NewManager(zap.NewNop())
	m.AddChecker(stubChecker{name: "database", critical: true})
	m.AddChecker(NewCacheHealthChecker(stubPinger{err: errors.New("refused")}))
	report = m.RuntimeHealthCheck(ctx)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Services["cache"])

	m.AddChecker(stubChecker{name: "other", critical: true, err: errors.New("down")})
	report = m.RuntimeHealthCheck(ctx)
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestDatabaseHealthChecker(t *testing.T) {
	sqldb, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	checker := NewDatabaseHealthChecker(db)
	assert.True(t, checker.IsCritical())
	assert.Equal(t, "database", checker.Name())
	assert.NoError(t, checker.HealthCheck(context.Background()))
	assert.Error(t, checker.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

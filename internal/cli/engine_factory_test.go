package cli

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/turnstile/internal/config"
	"github.com/aretw0/turnstile/internal/logging"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/kinds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, cfg config.Config) *Stack {
	t.Helper()
	ctx := context.Background()
	stack, err := CreateEngine(ctx, cfg, logging.NewNop(), domain.LifecycleHooks{})
	require.NoError(t, err)
	t.Cleanup(func() { stack.Close() })

	lr := domain.NewEntity("lr-1", kinds.KindLeaveRequest, "")
	lr.Payload["employee_id"] = "emp-1"
	_, err = stack.Engine.Create(ctx, lr)
	require.NoError(t, err)

	res, err := stack.Engine.Act(ctx, "leave-requests", "lr-1", "reject", domain.TransitionRequest{
		ActorID: "mgr", ActorRole: kinds.RoleManager,
		Payload: map[string]any{"reason": "coverage", "ssn": "123"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.State(kinds.LeaveRejected), res.Entity.Status)
	return stack
}

func TestCreateEngine_Drivers(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		exercise(t, config.Default())
	})

	t.Run("SQLite", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store = config.StoreConfig{Driver: config.DriverSQLite, DSN: ":memory:"}
		exercise(t, cfg)
	})

	t.Run("File", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store = config.StoreConfig{Driver: config.DriverFile, DSN: t.TempDir()}
		exercise(t, cfg)
	})

	t.Run("Redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default()
		cfg.Store.Driver = config.DriverRedis
		cfg.Store.RedisAddr = mr.Addr()
		stack := exercise(t, cfg)

		stored, err := stack.Backend.Store.Load(context.Background(), "lr-1")
		require.NoError(t, err)
		assert.Equal(t, domain.State(kinds.LeaveRejected), stored.Status)
		assert.True(t, mr.Exists("turnstile:entity:lr-1"))
	})
}

func TestCreateEngine_AuditMiddlewares(t *testing.T) {
	cfg := config.Default()
	cfg.Audit.RedactKeys = []string{"^ssn$"}
	cfg.Audit.EncryptionKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
	stack := exercise(t, cfg)
	ctx := context.Background()

	trail, err := stack.Engine.AuditTrail(ctx, "lr-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "***", trail[0].Metadata["ssn"])
	assert.Equal(t, "coverage", trail[0].Metadata["reason"])

	raw, err := stack.Backend.Audit.List(ctx, "lr-1")
	require.NoError(t, err)
	assert.NotContains(t, raw[0].Metadata, "reason", "stored metadata is sealed")
}

func TestOpenBackend_Errors(t *testing.T) {
	_, err := OpenBackend(context.Background(), config.StoreConfig{Driver: "cassandra"})
	assert.Error(t, err)

	_, err = OpenBackend(context.Background(), config.StoreConfig{Driver: config.DriverRedis, RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestAuditMiddlewares_InvalidPatternIsAnError(t *testing.T) {
	_, err := AuditMiddlewares(config.AuditConfig{RedactKeys: []string{"ssn", "(unclosed"}})
	assert.ErrorContains(t, err, "(unclosed")
}

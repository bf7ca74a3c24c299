package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aretw0/turnstile"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/kinds"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *turnstile.Engine) {
	t.Helper()
	eng, err := turnstile.New()
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	lr := domain.NewEntity("lr-1", kinds.KindLeaveRequest, "")
	lr.Payload["employee_id"] = "emp-1"
	_, err = eng.Create(context.Background(), lr)
	require.NoError(t, err)

	return NewServer(eng), eng
}

// call sends a raw JSON-RPC tools/call and returns the encoded response.
func call(t *testing.T, s *Server, tool string, args map[string]any) string {
	t.Helper()
	params, err := json.Marshal(args)
	require.NoError(t, err)
	msg := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, tool, params)
	resp := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(msg))
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(out)
}

func TestHandleTransition(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	t.Run("Guard denial reports reason", func(t *testing.T) {
		_, err := s.handleTransition(ctx, mcp.CallToolRequest{}, TransitionArgs{
			Collection: "leave-requests", ID: "lr-1", Action: "reject",
			ActorID: "mgr-1", ActorRole: string(kinds.RoleManager),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrGuardFailed)
		assert.Contains(t, err.Error(), "missing_precondition")
	})

	t.Run("Missing actor", func(t *testing.T) {
		_, err := s.handleTransition(ctx, mcp.CallToolRequest{}, TransitionArgs{
			Collection: "leave-requests", ID: "lr-1", Action: "approve",
		})
		assert.Error(t, err)
	})

	t.Run("Expected status mismatch", func(t *testing.T) {
		_, err := s.handleTransition(ctx, mcp.CallToolRequest{}, TransitionArgs{
			Collection: "leave-requests", ID: "lr-1", Action: "approve",
			ActorID: "mgr-1", ActorRole: string(kinds.RoleManager), ExpectedStatus: "approved",
		})
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	})

	t.Run("Applied", func(t *testing.T) {
		res, err := s.handleTransition(ctx, mcp.CallToolRequest{}, TransitionArgs{
			Collection: "leave-requests", ID: "lr-1", Action: "reject",
			ActorID: "mgr-1", ActorRole: string(kinds.RoleManager),
			Payload: map[string]any{"reason": "coverage"},
		})
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, domain.State(kinds.LeaveRejected), res.Entity.Status)
		assert.Equal(t, "coverage", res.Entity.Payload["rejection_reason"])
	})
}

func TestHandleGetEntity(t *testing.T) {
	s, _ := newTestServer(t)

	e, err := s.handleGetEntity(context.Background(), mcp.CallToolRequest{}, EntityArgs{ID: "lr-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.State(kinds.LeavePending), e.Status)

	_, err = s.handleGetEntity(context.Background(), mcp.CallToolRequest{}, EntityArgs{ID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestToolsOverJSONRPC(t *testing.T) {
	s, _ := newTestServer(t)

	out := call(t, s, "transition", map[string]any{
		"collection": "leave-requests", "id": "lr-1", "action": "approve",
		"actor_id": "mgr-1", "actor_role": "manager",
	})
	assert.Contains(t, out, `approved`)
	assert.NotContains(t, out, `"isError":true`)

	out = call(t, s, "audit_trail", map[string]any{"id": "lr-1"})
	assert.Contains(t, out, `from_state`)
	assert.Contains(t, out, `mgr-1`)

	out = call(t, s, "list_machines", map[string]any{})
	assert.Contains(t, out, `leave-requests`)

	out = call(t, s, "audit_trail", map[string]any{})
	assert.Contains(t, out, `"isError":true`)
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/turnstile"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/registry"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MachinesURI is the resource listing every registered machine.
const MachinesURI = "turnstile://machines"

// Engine defines the interface required by the MCP server to drive transitions.
type Engine interface {
	Act(ctx context.Context, collection, id, action string, req domain.TransitionRequest) (*domain.Result, error)
	Get(ctx context.Context, id string) (*domain.Entity, error)
	AuditTrail(ctx context.Context, id string) ([]domain.AuditRecord, error)
	Machines() []registry.Machine
}

// TransitionArgs are the arguments of the transition tool.
type TransitionArgs struct {
	Collection     string         `json:"collection"`
	ID             string         `json:"id"`
	Action         string         `json:"action"`
	ActorID        string         `json:"actor_id"`
	ActorRole      string         `json:"actor_role"`
	ExpectedStatus string         `json:"expected_status"`
	Payload        map[string]any `json:"payload"`
}

// TransitionResponse mirrors the HTTP transition response.
type TransitionResponse struct {
	Entity  *domain.Entity `json:"entity" jsonschema_description:"The entity after the call"`
	Applied bool           `json:"applied" jsonschema_description:"False when an idempotent edge was replayed"`

	CascadeError string `json:"cascade_error,omitempty" jsonschema_description:"Set when the transition applied but its follow-up writes failed"`
}

// EntityArgs address a single entity.
type EntityArgs struct {
	ID string `json:"id"`
}

// Server wraps the Turnstile Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("turnstile-mcp", strings.TrimSpace(turnstile.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, mostly for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: transition
	transitionTool := mcp.NewTool("transition",
		mcp.WithDescription("Perform an action on an entity, e.g. approve a purchase order."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name, e.g. purchase-orders")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity ID")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action name, e.g. approve")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("Acting user")),
		mcp.WithString("actor_role", mcp.Description("Role of the acting user")),
		mcp.WithString("expected_status", mcp.Description("Fail with a conflict unless the entity is in this status")),
		mcp.WithObject("payload", mcp.Description("Action input, e.g. {\"reason\": \"...\"} for reject")),
		mcp.WithOutputSchema[TransitionResponse](),
	)
	s.mcpServer.AddTool(transitionTool, mcp.NewStructuredToolHandler(s.handleTransition))

	// TOOL: get_entity
	s.mcpServer.AddTool(mcp.NewTool("get_entity",
		mcp.WithDescription("Load an entity by ID."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity ID")),
	), mcp.NewStructuredToolHandler(s.handleGetEntity))

	// TOOL: audit_trail
	s.mcpServer.AddTool(mcp.NewTool("audit_trail",
		mcp.WithDescription("List the audit records of an entity, oldest first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity ID")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		records, err := s.engine.AuditTrail(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("audit trail failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(records)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: list_machines
	s.mcpServer.AddTool(mcp.NewTool("list_machines",
		mcp.WithDescription("List the registered kinds with their states and actions."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, _ := json.Marshal(s.engine.Machines())
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleTransition(ctx context.Context, _ mcp.CallToolRequest, args TransitionArgs) (TransitionResponse, error) {
	if args.Collection == "" || args.ID == "" || args.Action == "" {
		return TransitionResponse{}, errors.New("collection, id and action are required")
	}
	if strings.TrimSpace(args.ActorID) == "" {
		return TransitionResponse{}, errors.New("actor_id is required")
	}

	res, err := s.engine.Act(ctx, args.Collection, args.ID, args.Action, domain.TransitionRequest{
		ActorID:         args.ActorID,
		ActorRole:       domain.Role(args.ActorRole),
		ExpectedCurrent: domain.State(args.ExpectedStatus),
		Payload:         args.Payload,
	})
	if err != nil {
		if reason := domain.ReasonOf(err); reason != "" {
			return TransitionResponse{}, fmt.Errorf("%w (reason: %s)", err, reason)
		}
		return TransitionResponse{}, err
	}
	out := TransitionResponse{Entity: res.Entity, Applied: res.Applied}
	if res.CascadeErr != nil {
		out.CascadeError = res.CascadeErr.Error()
	}
	return out, nil
}

func (s *Server) handleGetEntity(ctx context.Context, _ mcp.CallToolRequest, args EntityArgs) (*domain.Entity, error) {
	if args.ID == "" {
		return nil, errors.New("id is required")
	}
	return s.engine.Get(ctx, args.ID)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(MachinesURI, "Registered Machines",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.engine.Machines())
		if err != nil {
			return nil, fmt.Errorf("failed to encode machines: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      MachinesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

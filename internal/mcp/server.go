// Package mcp exposes the process view of the running debug session as
// Model Context Protocol tools, served over streamable HTTP:
//   - processes_list: the process set, the visible processes and the active one
//   - processes_select: refresh from the adapter and choose the visible set
//   - inferior_select: make one process the adapter's current inferior
//   - session_status: session, lifecycle phase and adapter details
package mcp

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/dap-inferiors/internal/processes"
	"github.com/ctagard/dap-inferiors/internal/session"
	"github.com/ctagard/dap-inferiors/internal/version"
	"github.com/ctagard/dap-inferiors/pkg/types"
)

const shutdownTimeout = 5 * time.Second

// Session is the part of a debug session the tools work with.
// *session.Session implements it.
type Session interface {
	Info() types.SessionInfo
	Processes() types.ProcessView
	RefreshProcesses(ctx context.Context, prompter processes.Prompter) (processes.Result, error)
	SelectInferior(ctx context.Context, pid int) (types.ProcessView, error)
}

// Sessions finds debug sessions. An empty id means the active session.
type Sessions interface {
	Lookup(id string) (Session, error)
	List() []Session
}

type managerSessions struct {
	manager *session.Manager
}

// FromManager adapts a session manager to Sessions.
func FromManager(m *session.Manager) Sessions {
	return managerSessions{manager: m}
}

func (m managerSessions) Lookup(id string) (Session, error) {
	s, err := m.manager.Lookup(id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (m managerSessions) List() []Session {
	all := m.manager.List()
	out := make([]Session, len(all))
	for i, s := range all {
		out[i] = s
	}
	return out
}

// Server wraps the MCP server with the process view tools
type Server struct {
	mcpServer *server.MCPServer
	sessions  Sessions
	log       logr.Logger
}

// NewServer creates the MCP server and registers its tools
func NewServer(sessions Sessions, log logr.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"dap-inferiors",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		sessions:  sessions,
		log:       log,
	}
	s.registerTools()
	return s
}

// ServeHTTP serves the tools over streamable HTTP on addr until ctx is done.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcpServer)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Serving process view", "address", addr)
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error(err, "Failed to shut down MCP server")
	}
	<-errCh
	return nil
}

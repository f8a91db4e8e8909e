package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/dap-inferiors/internal/errors"
	"github.com/ctagard/dap-inferiors/internal/processes"
	"github.com/ctagard/dap-inferiors/pkg/types"
)

func (s *Server) handleProcessesList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.lookup(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(viewResult(session.Info().SessionID, session.Processes()))
}

func (s *Server) handleProcessesSelect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.lookup(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	prompter := processes.PrompterFunc(func(context.Context, []types.DebugProcess) ([]int, bool, error) {
		return nil, false, nil
	})
	if pidsJSON := request.GetString("pids", ""); pidsJSON != "" {
		var pids []int
		if err := json.Unmarshal([]byte(pidsJSON), &pids); err != nil {
			return mcp.NewToolResultError(errors.InvalidJSON("pids", err, `[1234, 1240]`).Error()), nil
		}
		prompter = func(context.Context, []types.DebugProcess) ([]int, bool, error) {
			return pids, true, nil
		}
	}

	res, err := session.RefreshProcesses(ctx, prompter)
	if err != nil {
		return mcp.NewToolResultError(errors.FromError(err).Error()), nil
	}

	sessionID := session.Info().SessionID
	if res.Cancelled {
		return jsonResult(map[string]interface{}{
			"sessionId":  sessionID,
			"cancelled":  true,
			"candidates": res.Candidates,
		})
	}

	result := viewResult(sessionID, res.View)
	result["added"] = res.Delta.ToAdd
	result["detached"] = res.Delta.ToDetach
	if len(res.Warnings) > 0 {
		result["warnings"] = res.Warnings
	}
	return jsonResult(result)
}

func (s *Server) handleInferiorSelect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.lookup(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	pid, err := request.RequireFloat("pid")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("pid", "Provide a pid from processes_list.").Error()), nil
	}
	if pid != float64(int(pid)) {
		return mcp.NewToolResultError(errors.InvalidParameter("pid", pid, "an integer process id").Error()), nil
	}

	view, err := session.SelectInferior(ctx, int(pid))
	if err != nil {
		return mcp.NewToolResultError(errors.FromError(err).Error()), nil
	}
	return jsonResult(viewResult(session.Info().SessionID, view))
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if request.GetString("sessionId", "") != "" {
		session, err := s.lookup(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(session.Info())
	}

	all := s.sessions.List()
	infos := make([]types.SessionInfo, len(all))
	for i, session := range all {
		infos[i] = session.Info()
	}
	return jsonResult(map[string]interface{}{
		"sessions": infos,
	})
}

// Helper functions

func (s *Server) lookup(request mcp.CallToolRequest) (Session, error) {
	return s.sessions.Lookup(request.GetString("sessionId", ""))
}

func viewResult(sessionID string, view types.ProcessView) map[string]interface{} {
	return map[string]interface{}{
		"sessionId":    sessionID,
		"processes":    view.Processes,
		"visible":      view.Visible(),
		"activePid":    view.ActivePid,
		"hasProcesses": view.HasProcesses,
	}
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

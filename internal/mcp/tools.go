package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	s.registerProcessesList()
	s.registerProcessesSelect()
	s.registerInferiorSelect()
	s.registerSessionStatus()
}

func sessionIDOption() mcp.ToolOption {
	return mcp.WithString("sessionId",
		mcp.Description("Debug session to use. Defaults to the running session."),
	)
}

func (s *Server) registerProcessesList() {
	tool := mcp.NewTool("processes_list",
		mcp.WithDescription("Show the processes of the running debug session: every known process, the visible (selected) ones and the active inferior. hasProcesses is false until the adapter has reported processes."),
		sessionIDOption(),
	)
	s.mcpServer.AddTool(tool, s.handleProcessesList)
}

func (s *Server) registerProcessesSelect() {
	tool := mcp.NewTool("processes_select",
		mcp.WithDescription("Refresh the process list from the debug adapter and choose which processes are visible. Without pids, returns the candidates (the adapter's current process preselected) and changes nothing. With pids, newly chosen processes are added to the debugger and unchosen ones are detached."),
		sessionIDOption(),
		mcp.WithString("pids",
			mcp.Description("JSON array of the pids that should be visible, e.g. [1234, 1240]. Omit to only list the candidates."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleProcessesSelect)
}

func (s *Server) registerInferiorSelect() {
	tool := mcp.NewTool("inferior_select",
		mcp.WithDescription("Make a process the debug adapter's current inferior."),
		sessionIDOption(),
		mcp.WithNumber("pid",
			mcp.Required(),
			mcp.Description("Pid of a process from processes_list"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleInferiorSelect)
}

func (s *Server) registerSessionStatus() {
	tool := mcp.NewTool("session_status",
		mcp.WithDescription("Show the debug sessions with their status, lifecycle phase and debug adapter details."),
		sessionIDOption(),
	)
	s.mcpServer.AddTool(tool, s.handleSessionStatus)
}

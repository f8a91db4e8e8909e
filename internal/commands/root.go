// Package commands implements the dap-inferiors command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-inferiors/internal/logger"
)

// NewRootCmd creates the dap-inferiors root command.
func NewRootCmd() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "dap-inferiors",
		Short: "Debug adapter host for multi-process gdb sessions",
		Long: `dap-inferiors starts a gdb debug adapter for each IDE debug session and relays
the Debug Adapter Protocol between them. It follows the session to keep track of
the debugged processes (inferiors) and lets you choose which of them are
attached, through MCP tools served over HTTP.`,
		SilenceUsage: true,
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	logger.AddLevelFlag(rootCmd.PersistentFlags())

	var err error
	var cmd *cobra.Command

	if cmd, err = NewServeCommand(); cmd != nil {
		rootCmd.AddCommand(cmd)
	} else {
		return nil, fmt.Errorf("could not set up 'serve' command: %w", err)
	}

	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd, nil
}

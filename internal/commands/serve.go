package commands

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"

	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ctagard/dap-inferiors/internal/config"
	internaldap "github.com/ctagard/dap-inferiors/internal/dap"
	"github.com/ctagard/dap-inferiors/internal/launchconfig"
	"github.com/ctagard/dap-inferiors/internal/launcher"
	"github.com/ctagard/dap-inferiors/internal/logger"
	"github.com/ctagard/dap-inferiors/internal/mcp"
	"github.com/ctagard/dap-inferiors/internal/pathutil"
	"github.com/ctagard/dap-inferiors/internal/session"
)

type serveOptions struct {
	configFile   string
	listen       string
	gdbPath      string
	program      string
	launchConfig string
	workspace    string
}

// flagBindings maps configuration keys to the serve flags that override them.
var flagBindings = map[string]string{
	"adapter.install_path":          "adapter-path",
	"adapter.start_timeout_seconds": "start-timeout",
	"adapter.readiness.mode":        "readiness",
	"mcp.listen":                    "mcp-listen",
	"log.json":                      "log-json",
}

// NewServeCommand creates the serve command.
func NewServeCommand() (*cobra.Command, error) {
	opts := &serveOptions{}
	v := config.NewViper()

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs debug sessions for an IDE",
		Long: `Runs debug sessions for an IDE.

Without --listen the IDE speaks DAP on stdin/stdout and a single session is run.
With --listen, IDE connections are accepted over TCP, one session at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v, opts)
		},
	}

	flags := serveCmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "Path to a configuration file (YAML, JSON or TOML)")
	flags.StringVar(&opts.listen, "listen", "", "TCP address to accept IDE connections on; empty uses stdin/stdout")
	flags.StringVar(&opts.gdbPath, "gdb-path", "", "gdb executable for the session; defaults to debugger.default_path")
	flags.StringVar(&opts.program, "program", "", "Program to debug")
	flags.StringVar(&opts.launchConfig, "launch-config", "", "Name of a launch.json configuration providing gdbPath and program")
	flags.StringVar(&opts.workspace, "workspace", "", "Directory to search for .vscode/launch.json; defaults to the current directory")
	flags.String("adapter-path", "", "Debug adapter installation directory")
	flags.Int("start-timeout", 0, "Seconds to wait for the debug adapter to become ready")
	flags.String("readiness", "", "Adapter readiness convention: socket-path or ready-line")
	flags.String("mcp-listen", "", "HTTP address for the MCP process view; empty disables it")
	flags.Bool("log-json", false, "Log in JSON instead of console format")

	for key, name := range flagBindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, err
		}
	}

	return serveCmd, nil
}

func runServe(cmd *cobra.Command, v *viper.Viper, opts *serveOptions) error {
	if f := cmd.Flags().Lookup(logger.VerbosityFlagName()); f != nil && f.Changed {
		v.Set("log.level", f.Value.String())
	}
	cfg, err := loadConfig(v, opts.configFile)
	if err != nil {
		return err
	}

	log := logger.New("dap-inferiors", cfg.Log.JSON)
	defer log.Flush()
	if err := log.SetLevelText(cfg.Log.Level); err != nil {
		return err
	}

	target, err := opts.launchTarget(launchconfig.NewOSLoader())
	if err != nil {
		return err
	}

	l := launcher.New(launcher.ConfigFrom(cfg), pathutil.NewOSValidator(), log.WithName("launcher"))
	manager := session.NewManager(l, session.Options{RequestTimeout: cfg.RequestTimeout()}, log.WithName("session"))
	defer manager.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	wg := conc.NewWaitGroup()
	defer func() {
		cancel()
		wg.Wait()
	}()
	if cfg.MCP.Listen != "" {
		srv := mcp.NewServer(mcp.FromManager(manager), log.WithName("mcp"))
		wg.Go(func() {
			if err := srv.ServeHTTP(ctx, cfg.MCP.Listen); err != nil {
				log.Error(err, "MCP server stopped", "address", cfg.MCP.Listen)
			}
		})
	}

	if opts.listen == "" {
		log.Info("Serving one debug session on stdin/stdout")
		err := manager.Serve(ctx, internaldap.NewStdioTransport(os.Stdin, os.Stdout), target)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return serveTCP(ctx, manager, opts.listen, target, log.Logger)
}

// loadConfig reads the optional config file into v and decodes the result.
func loadConfig(v *viper.Viper, path string) (*config.Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return config.FromViper(v)
}

// launchTarget returns the per-session launch inputs. Explicit flags win over
// the named launch.json configuration.
func (o *serveOptions) launchTarget(loader *launchconfig.Loader) (launcher.LaunchConfig, error) {
	lc := launcher.LaunchConfig{DebuggerPath: o.gdbPath, ProgramPath: o.program}
	if o.launchConfig == "" {
		return lc, nil
	}

	target, err := loader.Resolve(o.workspace, o.launchConfig)
	if err != nil {
		return launcher.LaunchConfig{}, err
	}
	if lc.DebuggerPath == "" {
		lc.DebuggerPath = target.DebuggerPath
	}
	if lc.ProgramPath == "" {
		lc.ProgramPath = target.Program
	}
	return lc, nil
}

// serveTCP accepts IDE connections on addr and runs their sessions one at a time.
func serveTCP(ctx context.Context, manager *session.Manager, addr string, target launcher.LaunchConfig, log logr.Logger) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()

	log.Info("Waiting for IDE connections", "address", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to accept IDE connection: %w", err)
		}

		log.Info("IDE connected", "remote", conn.RemoteAddr().String())
		err = manager.Serve(ctx, internaldap.NewConnTransport(conn), target)
		if stderrors.Is(err, session.ErrManagerClosed) {
			return nil
		}
	}
}

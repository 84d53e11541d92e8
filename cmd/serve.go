package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/cellkernel/cli"
	"github.com/grovetools/cellkernel/config"
	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/internal/daemon/engine"
	"github.com/grovetools/cellkernel/internal/daemon/pidfile"
	"github.com/grovetools/cellkernel/internal/daemon/server"
	"github.com/grovetools/cellkernel/internal/daemon/store"
	"github.com/grovetools/cellkernel/pkg/daemon"
	"github.com/grovetools/cellkernel/pkg/paths"
	"github.com/grovetools/cellkernel/pkg/process"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd returns the command that runs the kernel in the foreground.
func NewServeCmd() *cobra.Command {
	var (
		address    string
		framing    string
		nulAddress string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kernel in the foreground",
		Long: `Start the kernel in the foreground.

The HTTP API is always served. With framing nul, a second listener accepts
NUL-delimited requests from editors that speak the raw protocol. The
configuration file is watched and reapplied without a restart.

Examples:
  cellkernel serve
  cellkernel serve --address 127.0.0.1:9000 --framing nul`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("address") {
				cfg.Server.Address = address
			}
			if cmd.Flags().Changed("framing") {
				cfg.Server.Framing = framing
			}
			if cmd.Flags().Changed("nul-address") {
				cfg.Server.NulAddress = nulAddress
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd, cfg, cfgPath)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "host:port for the HTTP API (overrides server.address)")
	cmd.Flags().StringVar(&framing, "framing", "", "Editor request framing: http or nul (overrides server.framing)")
	cmd.Flags().StringVar(&nulAddress, "nul-address", "", "host:port for the NUL listener (overrides server.nul_address)")
	return cmd
}

func serve(cmd *cobra.Command, cfg *config.Config, cfgPath string) error {
	logger := cli.GetLogger(cmd, "kernel")
	pidPath := paths.PidFilePath()

	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}

	useNUL := cfg.Server.Framing == config.FramingNUL
	rec := pidfile.Record{Address: cfg.Server.Address}
	if useNUL {
		rec.NulAddress = cfg.Server.NulAddress
	}

	if err := pidfile.Acquire(pidPath, rec); err != nil {
		return err
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	eng := engine.New(store.New(), opts, cli.GetLogger(cmd, "engine"))
	srv := server.New(eng, logger)
	startedAt := time.Now()
	srv.SetRunningConfig(runningConfig(cfg, cfgPath, opts, startedAt))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(cfg.Server.Address)
	})
	if useNUL {
		g.Go(func() error {
			return srv.ListenAndServeNUL(cfg.Server.NulAddress)
		})
	}

	watcher, err := newReloader(cmd, cfg, cfgPath, eng, srv, startedAt, logger)
	if err != nil {
		logger.WithError(err).Warn("Config hot reload disabled")
	} else if watcher != nil {
		g.Go(func() error {
			watcher.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received stop signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	var extra []string
	if useNUL {
		extra = append(extra, "nul: "+cfg.Server.NulAddress)
	}
	if cfgPath != "" {
		extra = append(extra, "config: "+cfgPath)
	}
	cli.PrintBanner(cmd.OutOrStdout(), cfg.Server.Address, extra...)
	logger.WithField("pid", os.Getpid()).Info("Starting kernel")

	return g.Wait()
}

func runningConfig(cfg *config.Config, cfgPath string, opts engine.Options, startedAt time.Time) *server.RunningConfig {
	rc := &server.RunningConfig{
		Address:    cfg.Server.Address,
		Framing:    cfg.Server.Framing,
		ConfigFile: cfgPath,
		Engine:     opts,
		StartedAt:  startedAt,
	}
	if cfg.Server.Framing == config.FramingNUL {
		rc.NulAddress = cfg.Server.NulAddress
	}
	return rc
}

// newReloader watches the project and global config files. Listener
// settings are fixed for the life of the process; only the engine picks up
// changes. It returns nil when there is nothing to watch.
func newReloader(cmd *cobra.Command, cfg *config.Config, cfgPath string, eng *engine.Engine, srv *server.Server, startedAt time.Time, logger *logrus.Entry) (*daemon.ConfigWatcher, error) {
	var files []string
	if cfgPath != "" {
		files = append(files, cfgPath)
	}
	if global := config.GlobalConfigPath(); global != "" {
		if _, err := os.Stat(global); err == nil && global != cfgPath {
			files = append(files, global)
		}
	}
	if len(files) == 0 {
		return nil, nil
	}

	explicit := cli.GetOptions(cmd).ConfigFile != ""
	listeners := cfg.Server

	onReload := func(file string) {
		next, err := reloadConfig(cfgPath, explicit)
		if err != nil {
			logger.WithError(err).Warn("Keeping previous configuration")
			return
		}
		opts, err := next.EngineOptions()
		if err != nil {
			logger.WithError(err).Warn("Keeping previous configuration")
			return
		}
		next.Server = listeners
		eng.Reconfigure(opts)
		srv.SetRunningConfig(runningConfig(next, cfgPath, opts, startedAt))
		eng.Store().BroadcastConfigReload(file)
		logger.WithField("file", file).Info("Configuration reloaded")
	}

	return daemon.NewConfigWatcher(files, cfg.Server.ConfigDebounceMs, logger, onReload)
}

func reloadConfig(cfgPath string, explicit bool) (*config.Config, error) {
	if explicit {
		return config.Load(cfgPath)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, _, err := config.LoadOrDefault(cwd, logrus.New())
	return cfg, err
}

// NewStopCmd returns the command that stops a running kernel.
func NewStopCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running kernel",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, rec, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return err
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Kernel is not running")
				return nil
			}

			if err := process.Terminate(rec.PID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", rec.PID)

			if wait <= 0 {
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			if err := process.WaitExit(ctx, rec.PID, 50*time.Millisecond); err != nil {
				return fmt.Errorf("kernel %d still running after %s", rec.PID, wait)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Kernel stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the kernel to exit")
	return cmd
}

// StatusOutput is printed by `status --json`.
type StatusOutput struct {
	Running bool            `json:"running"`
	Kernel  *pidfile.Record `json:"kernel,omitempty"`
	State   *store.State    `json:"state,omitempty"`
}

// NewStatusCmd returns the command that reports kernel status.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check kernel status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			running, rec, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return err
			}

			out := StatusOutput{Running: running, Kernel: rec}
			if running {
				client := daemon.NewRemoteClient(rec.Address)
				defer client.Close()
				if state, err := client.State(cmd.Context()); err == nil {
					out.State = state
				}
			}

			if cli.GetOptions(cmd).JSONOutput {
				if err := printJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				printStatus(cmd, out)
			}

			if !running {
				return errors.DaemonNotRunning(cfg.Server.Address)
			}
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, out StatusOutput) {
	pretty := prettyOut(cmd)
	if !out.Running {
		pretty.Warn("Stopped")
		return
	}
	pretty.Success("Running")
	pretty.Field("PID", out.Kernel.PID)
	pretty.Field("Address", out.Kernel.Address)
	if out.Kernel.NulAddress != "" {
		pretty.Field("NUL", out.Kernel.NulAddress)
	}
	pretty.Field("Started", out.Kernel.StartedAt.Format(time.RFC3339))
	if out.State != nil {
		pretty.Field("Phase", out.State.Phase)
		pretty.Field("Cells", out.State.CellCount)
		pretty.Field("Runs", out.State.Runs)
		if out.State.Filename != "" {
			pretty.Path("Notebook", out.State.Filename)
		}
	}
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/grovetools/cellkernel/cli"
	"github.com/grovetools/cellkernel/internal/daemon/engine"
	"github.com/grovetools/cellkernel/pkg/assemble"
	"github.com/grovetools/cellkernel/pkg/daemon"
	"github.com/grovetools/cellkernel/pkg/notebook"
	"github.com/grovetools/cellkernel/pkg/outcome"
	"github.com/spf13/cobra"
)

// NewRunCmd returns the command that executes a notebook file.
func NewRunCmd() *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "run <notebook.yml>",
		Short: "Run the active cell of a notebook file",
		Long: `Run the active cell of a notebook file.

Every other cell is recorded first so the assembled program sees the whole
notebook, then the active cell is executed. Requests go to the running
kernel when there is one, otherwise to an in-process engine.

Examples:
  cellkernel run scratch.yml
  cellkernel run scratch.yml --fresh --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nb, err := notebook.LoadFile(args[0])
			if err != nil {
				return err
			}
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			out, err := runNotebook(cmd.Context(), client, nb, fresh)
			if err != nil {
				return err
			}
			return printOutcome(cmd, out)
		},
	}

	cmd.Flags().BoolVar(&fresh, "fresh", false, "Discard the kernel's session before sending the notebook")
	return cmd
}

// NewAssembleCmd returns the command that prints the assembled program.
func NewAssembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assemble <notebook.yml>",
		Short: "Print the program a notebook assembles to",
		Long: `Print the program a notebook assembles to, without running it.

The source and manifest are exactly what the toolchain would receive for
the notebook's active cell.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nb, err := notebook.LoadFile(args[0])
			if err != nil {
				return err
			}
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			art, err := assembleNotebook(cmd.Context(), client, nb)
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd.OutOrStdout(), art)
			}
			pretty := prettyOut(cmd).WithWriter(cmd.OutOrStdout())
			pretty.Info("Source")
			pretty.Code(art.Source)
			pretty.Blank()
			pretty.Info("Manifest")
			pretty.Code(art.Manifest)
			return nil
		},
	}
	return cmd
}

func connect(cmd *cobra.Command) (daemon.Client, error) {
	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	client, err := daemon.New(cfg)
	if err != nil {
		return nil, err
	}
	cli.GetLogger(cmd, "cli").WithField("remote", client.IsRunning()).Debug("Client ready")
	return client, nil
}

func request(nb *notebook.File, cell notebook.Cell) engine.Request {
	return engine.Request{
		Index:     cell.Index,
		Fragment:  cell.Fragment,
		Filename:  nb.Filename,
		Workspace: nb.Workspace,
		Contents:  cell.Contents,
	}
}

// stage records every cell but the active one.
func stage(ctx context.Context, client daemon.Client, nb *notebook.File) error {
	for _, cell := range nb.Others() {
		if _, err := client.Stage(ctx, request(nb, cell)); err != nil {
			return err
		}
	}
	return nil
}

func runNotebook(ctx context.Context, client daemon.Client, nb *notebook.File, fresh bool) (*outcome.Outcome, error) {
	if fresh {
		if err := client.Reset(ctx); err != nil {
			return nil, err
		}
	}
	if err := stage(ctx, client, nb); err != nil {
		return nil, err
	}
	return client.Execute(ctx, request(nb, nb.ActiveCell()))
}

func assembleNotebook(ctx context.Context, client daemon.Client, nb *notebook.File) (*assemble.Artifact, error) {
	if err := stage(ctx, client, nb); err != nil {
		return nil, err
	}
	if _, err := client.Stage(ctx, request(nb, nb.ActiveCell())); err != nil {
		return nil, err
	}
	return client.Preview(ctx, nb.Active)
}

// printOutcome writes the payload and returns the outcome's error so a
// failed build exits non-zero.
func printOutcome(cmd *cobra.Command, out *outcome.Outcome) error {
	if cli.GetOptions(cmd).JSONOutput {
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		return out.Err()
	}

	pretty := prettyOut(cmd)
	switch out.Kind {
	case outcome.KindSuccess:
		fmt.Fprint(cmd.OutOrStdout(), out.Payload)
		pretty.Success(fmt.Sprintf("fragment %d finished in %s", out.Fragment, out.Duration.Round(time.Millisecond)))
		return nil
	case outcome.KindBuildFailure:
		fmt.Fprint(cmd.ErrOrStderr(), out.Payload)
		pretty.Error(fmt.Sprintf("fragment %d failed (exit %d)", out.Fragment, out.ExitCode), nil)
	default:
		pretty.Error(fmt.Sprintf("fragment %d produced no delimited output", out.Fragment), nil)
	}
	return out.Err()
}

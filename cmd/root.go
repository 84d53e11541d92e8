// Package cmd holds the cellkernel command tree.
package cmd

import (
	"github.com/grovetools/cellkernel/cli"
	"github.com/grovetools/cellkernel/pkg/profiling"
	"github.com/grovetools/cellkernel/version"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the full command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"cellkernel",
		"Notebook kernel that runs editor cells as one assembled program",
	)
	cli.SetVersionTemplate(root, version.GetInfo())

	profiler := profiling.NewCobraProfiler()
	profiler.AddFlags(root)
	root.PersistentPreRunE = profiler.PreRun
	root.PersistentPostRun = profiler.PostRun

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewStopCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewAssembleCmd())
	root.AddCommand(NewWatchCmd())
	root.AddCommand(NewLogsCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(cli.NewVersionCommand("cellkernel"))

	cli.ApplyStyledHelpRecursive(root)
	return root
}

// Execute runs the root command and reports any error.
func Execute() error {
	root := NewRootCmd()
	cmd, err := root.ExecuteC()
	if err != nil {
		cli.NewErrorHandler(cli.GetOptions(cmd).Verbose, cmd.ErrOrStderr()).Handle(err)
	}
	return err
}

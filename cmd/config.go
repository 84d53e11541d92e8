package cmd

import (
	"fmt"

	"github.com/grovetools/cellkernel/cli"
	"github.com/grovetools/cellkernel/config"
	"github.com/grovetools/cellkernel/logging"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd returns the `config` command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the kernel configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration after the global file, the project
file and defaults have been merged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd.OutOrStdout(), cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# Source: %s\n", path)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "# Source: built-in defaults")
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	var loggingSection bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for cellkernel.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loggingSection {
				fmt.Fprintln(cmd.OutOrStdout(), string(logging.Schema))
				return nil
			}
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&loggingSection, "logging", false, "Print the schema of the logging section instead")
	return cmd
}

// ConfigPaths is printed by `config path`.
type ConfigPaths struct {
	Project string `json:"project"`
	Global  string `json:"global"`
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration files in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, path, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			out := ConfigPaths{Project: path, Global: config.GlobalConfigPath()}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}
			pretty := prettyOut(cmd).WithWriter(cmd.OutOrStdout())
			project := out.Project
			if project == "" {
				project = "(none)"
			}
			pretty.Path("project", project)
			pretty.Path("global", out.Global)
			return nil
		},
	}
}

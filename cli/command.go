package cli

import (
	"os"

	"github.com/grovetools/cellkernel/config"
	"github.com/grovetools/cellkernel/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CommandOptions holds common options for cellkernel commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a new command with the standard flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to cellkernel.yml config file")

	return cmd
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// GetLogger returns the component logger, raised to debug by --verbose.
func GetLogger(cmd *cobra.Command, component string) *logrus.Entry {
	entry := logging.NewLogger(component)
	if GetOptions(cmd).Verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	return entry
}

// LoadConfig resolves the configuration for a command: the --config file
// when given, otherwise the nearest cellkernel.yml or the built-in
// defaults. The logging section is installed before any logger is built.
// The returned path is empty when defaults are in use.
func LoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	opts := GetOptions(cmd)

	var (
		cfg  *config.Config
		path string
		err  error
	)
	if opts.ConfigFile != "" {
		path = opts.ConfigFile
		cfg, err = config.Load(path)
	} else {
		var cwd string
		cwd, err = os.Getwd()
		if err != nil {
			return nil, "", err
		}
		quiet := logrus.New()
		quiet.SetLevel(logrus.WarnLevel)
		cfg, path, err = config.LoadOrDefault(cwd, quiet)
	}
	if err != nil {
		return nil, "", err
	}

	if err := logging.SetConfig(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

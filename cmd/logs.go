package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/cellkernel/cli"
	"github.com/grovetools/cellkernel/logging"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

var (
	logTimeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	logComponentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	logLevelStyles    = map[string]lipgloss.Style{
		"debug":   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		"info":    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		"warning": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	var (
		component string
		follow    bool
		tailLines int
		date      string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show a component's log file",
		Long: `Show a component's log file from the state directory.

Lines written by the json file format are rendered for reading; --json
prints them unchanged.

Examples:
  # Follow the kernel log
  cellkernel logs -f

  # Last 50 engine lines from a given day
  cellkernel logs --component engine --tail 50 --date 2026-10-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := cli.LoadConfig(cmd); err != nil {
				return err
			}

			day := time.Now()
			if date != "" {
				parsed, err := time.ParseInLocation("2006-01-02", date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				day = parsed
			}
			path := logging.LogFilePath(component, day)
			raw := cli.GetOptions(cmd).JSONOutput
			out := cmd.OutOrStdout()

			lines, err := lastLines(path, tailLines)
			if err != nil && !(follow && os.IsNotExist(err)) {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			for _, line := range lines {
				printLogLine(out, line, raw)
			}
			if !follow {
				return nil
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    true,
				ReOpen:    true,
				MustExist: false,
				Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
				Logger:    stdlog.New(io.Discard, "", 0),
			})
			if err != nil {
				return fmt.Errorf("failed to follow %s: %w", path, err)
			}
			defer t.Cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for {
				select {
				case line, ok := <-t.Lines:
					if !ok {
						return t.Err()
					}
					if line.Err != nil {
						continue
					}
					printLogLine(out, line.Text, raw)
				case <-ctx.Done():
					return t.Stop()
				}
			}
		},
	}

	cmd.Flags().StringVar(&component, "component", "kernel", "Component whose log to show: kernel, engine, cli")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVar(&tailLines, "tail", -1, "Number of lines to show from the end of the log (default: all)")
	cmd.Flags().StringVar(&date, "date", "", "Day of the log file as YYYY-MM-DD (default: today)")
	return cmd
}

// lastLines returns the final n non-empty lines of path, or all of them
// when n is negative.
func lastLines(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if n >= 0 && n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// printLogLine renders a JSON log entry as text; other lines pass through.
func printLogLine(w io.Writer, line string, raw bool) {
	var entry map[string]interface{}
	if raw || json.Unmarshal([]byte(line), &entry) != nil {
		fmt.Fprintln(w, line)
		return
	}
	fmt.Fprintln(w, formatLogEntry(entry))
}

func formatLogEntry(entry map[string]interface{}) string {
	ts, _ := entry["time"].(string)
	level, _ := entry["level"].(string)
	msg, _ := entry["msg"].(string)
	component, _ := entry["component"].(string)

	if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
		ts = parsed.Format("15:04:05")
	}

	var b strings.Builder
	if ts != "" {
		b.WriteString(logTimeStyle.Render(ts) + " ")
	}
	levelStyle, ok := logLevelStyles[level]
	if !ok {
		levelStyle = lipgloss.NewStyle()
	}
	b.WriteString(levelStyle.Render(fmt.Sprintf("%-5s", strings.ToUpper(strings.TrimSuffix(level, "ing")))))
	if component != "" {
		b.WriteString(" " + logComponentStyle.Render("["+component+"]"))
	}
	b.WriteString(" " + msg)

	var keys []string
	for k := range entry {
		switch k {
		case "time", "level", "msg", "component":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", k, entry[k]))
	}
	return b.String()
}

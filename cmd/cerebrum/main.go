// Package main provides the cerebrum CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cerebrum", "cmd")

// globals are the persistent flags shared by the commands
type globals struct {
	configFile string
	envFile    string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "cerebrum",
		Short: "Run tasks with MCP tools selected by an LLM",
		Long: `cerebrum: runs a task with the code executor agent.

The agent asks the model which MCP tools to call for the task and
returns their results. Tools are loaded from local folders or the
tool registry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Config file, defaults to $CEREBRUM_CONFIG")
	rootCmd.PersistentFlags().StringVar(&g.envFile, "env", "", "Env file to load, defaults to .env when present")
	rootCmd.PersistentFlags().BoolVarP(&g.debug, "debug", "D", false, "Enable debug logs")

	rootCmd.AddCommand(runCmd(g), toolCmd(g))
	return rootCmd
}

func (g *globals) setup() error {
	if g.envFile != "" {
		if err := godotenv.Overload(g.envFile); err != nil {
			return errors.Wrapf(err, "failed to load env file %s", g.envFile)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if g.debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}
	return nil
}

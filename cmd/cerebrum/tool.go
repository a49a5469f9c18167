package main

import (
	"fmt"

	"github.com/effective-security/cerebrum/config"
	"github.com/effective-security/cerebrum/toolmanager"
	"github.com/effective-security/x/values"
	"github.com/spf13/cobra"
)

func toolCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Manage tools of the registry",
	}
	cmd.PersistentFlags().String("base-url", "", "Tool registry URL, overrides the config")
	cmd.AddCommand(toolLoadCmd(g), toolListCmd(g), toolBuiltinsCmd())
	return cmd
}

func toolManager(cmd *cobra.Command, g *globals) (*toolmanager.Manager, func(), error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, nil, err
	}
	if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
		cfg.ToolManager.BaseURL = baseURL
	}

	st, closeStore, err := cfg.PackageStore(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	tm, err := cfg.NewToolManager(st)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return tm, closeStore, nil
}

func toolLoadCmd(g *globals) *cobra.Command {
	var (
		local   bool
		author  string
		version string
	)
	cmd := &cobra.Command{
		Use:   "load <[author/]name[@version]>",
		Short: "Load a tool and print its manifest summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := parseToolRef(args[0])
			if err != nil {
				return err
			}
			o.Local = local
			o.Author = values.StringsCoalesce(author, o.Author)
			o.Version = values.StringsCoalesce(version, o.Version)

			tm, closeStore, err := toolManager(cmd, g)
			if err != nil {
				return err
			}
			defer closeStore()

			tool, err := tm.LoadTool(cmd.Context(), o)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), tool.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Search local folders only")
	cmd.Flags().StringVar(&author, "author", "", "Tool author")
	cmd.Flags().StringVar(&version, "version", "", "Tool version, defaults to latest")
	return cmd
}

func toolListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tools of the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, closeStore, err := toolManager(cmd, g)
			if err != nil {
				return err
			}
			defer closeStore()

			names, err := tm.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func toolBuiltinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "builtins",
		Short: "List builtin tools",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range toolmanager.Builtins() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), toolmanager.BuiltinPrefix+name)
			}
		},
	}
}

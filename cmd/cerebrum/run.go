package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/agents/codeexecutor"
	"github.com/effective-security/cerebrum/callbacks"
	"github.com/effective-security/cerebrum/config"
	"github.com/effective-security/cerebrum/mcp"
	"github.com/effective-security/cerebrum/pkg/llmfactory"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/toolmanager"
	"github.com/effective-security/cerebrum/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

// mcpClientOptions are applied to every MCP client created by run
var mcpClientOptions []mcp.ClientOption

type runFlags struct {
	model    string
	provider string
	tools    []string
	local    bool
	verbose  bool
	stats    bool
}

func runCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task with the code executor agent",
		Example: `  cerebrum run "print the first 10 prime numbers"
  cerebrum run --tool example/arxiv@0.1.0 "find papers about MCP"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), g, f, args[0])
		},
	}
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model name, overrides the config")
	cmd.Flags().StringVarP(&f.provider, "provider", "p", "", "Provider type, OPENAI or ANTHROPIC, uses its default model")
	cmd.Flags().StringSliceVarP(&f.tools, "tool", "t", nil, "Tools to load, as [author/]name[@version]")
	cmd.Flags().BoolVar(&f.local, "local", false, "Load tools from local folders only")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Print agent, LLM and tool events")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "Print the run transcript and stats")
	return cmd
}

func runTask(ctx context.Context, out, errOut io.Writer, g *globals, f *runFlags, task string) error {
	if strings.TrimSpace(task) == "" {
		return errors.New("task is required")
	}

	cfg, err := config.Load(g.configFile)
	if err != nil {
		return err
	}

	llm, err := selectLLM(&cfg.LLM, f, cfg.CodeExecutor.Model)
	if err != nil {
		return errors.WithMessage(err, "failed to create LLM")
	}
	model := llms.ModelName(llm)
	logger.ContextKV(ctx, xlog.DEBUG,
		"provider", llm.GetProviderType(),
		"model", model)

	cb := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	if f.verbose {
		cb.Add(callbacks.NewPrinter(errOut, callbacks.ModeVerbose))
	}
	var pad *callbacks.Scratchpad
	if f.stats {
		pad = callbacks.NewScratchpad(callbacks.ModeDefault)
		cb.Add(pad)
	}

	pool := mcp.NewPool(mcp.WithToolCallback(cb))
	if err = cfg.AddServers(pool, mcpClientOptions...); err != nil {
		return err
	}

	local, err := loadTools(ctx, cfg, pool, f.tools, f.local)
	if err != nil {
		return err
	}

	agent, err := codeexecutor.New(llm,
		codeexecutor.WithModelName(model),
		codeexecutor.WithPackage(cfg.CodeExecutor.Package),
		codeexecutor.WithSystemPrompt(cfg.CodeExecutor.SystemPrompt),
		codeexecutor.WithSmitheryOptions(cfg.CodeExecutor.SmitheryOptions()...),
		codeexecutor.WithSmitheryOptions(mcp.WithSmitheryClientOptions(mcpClientOptions...)),
		codeexecutor.WithPool(pool),
		codeexecutor.WithCallback(cb),
		codeexecutor.WithTools(local...),
	)
	if err != nil {
		return err
	}

	if err = agent.Initialize(ctx); err != nil {
		_ = agent.Cleanup(ctx)
		return err
	}
	defer func() {
		_ = agent.Cleanup(ctx)
	}()

	if pad != nil {
		ctx = pad.StartRun(ctx)
	}

	res, err := agent.Run(ctx, task)

	if pad != nil {
		if _, transcript := pad.EndRun(ctx); transcript != nil {
			_, _ = errOut.Write(transcript)
		}
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, res)
	return nil
}

// selectLLM returns the model of the provider type when set, otherwise the
// model preferred by the flags or the config
func selectLLM(cfg *llmfactory.Config, f *runFlags, configModel string) (llms.Model, error) {
	factory := llmfactory.New(cfg)
	if f.provider != "" {
		return factory.ModelByType(f.provider)
	}
	model := values.StringsCoalesce(f.model, configModel, codeexecutor.DefaultModel)
	return factory.AgentModel(codeexecutor.DefaultName, model)
}

// loadTools adds MCP tools to the pool and returns the builtin ones
func loadTools(ctx context.Context, cfg *config.Config, pool *mcp.Pool, refs []string, localOnly bool) ([]tools.ITool, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	st, closeStore, err := cfg.PackageStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	tm, err := cfg.NewToolManager(st)
	if err != nil {
		return nil, err
	}

	var local []tools.ITool
	for _, ref := range refs {
		o, err := parseToolRef(ref)
		if err != nil {
			return nil, err
		}
		o.Local = localOnly

		tool, err := tm.LoadTool(ctx, o)
		if err != nil {
			return nil, err
		}
		info, err := tool.Info()
		if err != nil {
			return nil, err
		}
		logger.ContextKV(ctx, xlog.DEBUG,
			"tool", info.Name,
			"description", info.Description,
			"hint", info.Hint,
			"source", tool.Source,
			"dir", tool.Dir)

		if tool.IsBuiltin() {
			impl, err := tool.Builtin()
			if err != nil {
				return nil, err
			}
			local = append(local, impl)
			continue
		}

		client, err := tool.MCPClient(mcpClientOptions...)
		if err != nil {
			return nil, errors.WithMessagef(err, "tool %q", ref)
		}
		if err = pool.AddClient(tool.Name(), client); err != nil {
			return nil, err
		}
	}
	return local, nil
}

// parseToolRef parses [author/]name[@version]
func parseToolRef(ref string) (toolmanager.LoadOptions, error) {
	var o toolmanager.LoadOptions
	name := strings.TrimSpace(ref)
	if i := strings.LastIndex(name, "@"); i > 0 {
		o.Version = name[i+1:]
		name = name[:i]
	}
	if i := strings.Index(name, "/"); i >= 0 {
		o.Author = name[:i]
		name = name[i+1:]
	}
	o.Name = name
	if o.Name == "" || strings.Contains(o.Name, "/") {
		return o, errors.Errorf("invalid tool reference %q", ref)
	}
	return o, nil
}

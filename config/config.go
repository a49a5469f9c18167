// Package config loads the cerebrum configuration file.
package config

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/mcp"
	"github.com/effective-security/cerebrum/pkg/llmfactory"
	"github.com/effective-security/cerebrum/store"
	"github.com/effective-security/cerebrum/toolmanager"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cerebrum", "config")

// EnvConfigFile is the environment variable with the config file path
const EnvConfigFile = "CEREBRUM_CONFIG"

// DefaultRedisPrefix is the key prefix of the Redis package cache
const DefaultRedisPrefix = "cerebrum"

// Config is the cerebrum configuration
type Config struct {
	LLM          llmfactory.Config  `json:"llm" yaml:"llm"`
	CodeExecutor CodeExecutorConfig `json:"code_executor" yaml:"code_executor"`
	MCP          MCPConfig          `json:"mcp" yaml:"mcp"`
	ToolManager  ToolManagerConfig  `json:"tool_manager" yaml:"tool_manager"`
	Redis        RedisConfig        `json:"redis" yaml:"redis"`
}

// CodeExecutorConfig overrides the code executor defaults
type CodeExecutorConfig struct {
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`
	Package      string `json:"package,omitempty" yaml:"package,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// Hosted uses the Smithery hosted server instead of the local CLI
	Hosted         bool           `json:"hosted,omitempty" yaml:"hosted,omitempty"`
	SmitheryConfig map[string]any `json:"smithery_config,omitempty" yaml:"smithery_config,omitempty"`
}

// SmitheryOptions returns the options for the code executor client
func (c *CodeExecutorConfig) SmitheryOptions() []mcp.SmitheryOption {
	var opts []mcp.SmitheryOption
	if c.Hosted {
		opts = append(opts, mcp.WithSmitheryHosted())
	}
	if len(c.SmitheryConfig) > 0 {
		opts = append(opts, mcp.WithSmitheryConfig(c.SmitheryConfig))
	}
	return opts
}

// MCPConfig lists extra MCP servers joining the pool
type MCPConfig struct {
	Servers map[string]*MCPServer `json:"servers,omitempty" yaml:"servers,omitempty"`
}

// MCPServer is either a server config or a Smithery package
type MCPServer struct {
	mcp.ServerConfig `yaml:",inline"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Hint        string `json:"hint,omitempty" yaml:"hint,omitempty"`
	// Smithery is the package name on the Smithery registry
	Smithery       string         `json:"smithery,omitempty" yaml:"smithery,omitempty"`
	Hosted         bool           `json:"hosted,omitempty" yaml:"hosted,omitempty"`
	SmitheryConfig map[string]any `json:"smithery_config,omitempty" yaml:"smithery_config,omitempty"`
}

// Client returns the MCP client for the server
func (s *MCPServer) Client(opts ...mcp.ClientOption) (*mcp.Client, error) {
	if s.Hint != "" {
		opts = append([]mcp.ClientOption{mcp.WithHint(s.Hint)}, opts...)
	}
	if s.Smithery == "" {
		return mcp.NewClient(s.Description, &s.ServerConfig, opts...)
	}

	sopts := []mcp.SmitheryOption{mcp.WithSmitheryClientOptions(opts...)}
	if s.Hosted {
		sopts = append(sopts, mcp.WithSmitheryHosted())
	}
	if len(s.SmitheryConfig) > 0 {
		sopts = append(sopts, mcp.WithSmitheryConfig(s.SmitheryConfig))
	}
	return mcp.FromSmithery(s.Smithery, s.Description, sopts...)
}

// ToolManagerConfig configures the tool registry client
type ToolManagerConfig struct {
	BaseURL    string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	CacheDir   string   `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
	LocalPaths []string `json:"local_paths,omitempty" yaml:"local_paths,omitempty"`
	// CacheTTL is the lifetime of packages in Redis, as a duration string
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
}

// RedisConfig configures the package cache, in memory when URL is empty
type RedisConfig struct {
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Load returns the config from the file, or from CEREBRUM_CONFIG when the
// file is empty. Without a file the defaults are returned.
// Without LLM providers, the ones with an API key in the environment are used.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	file = values.StringsCoalesce(file, os.Getenv(EnvConfigFile))
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %s", file)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if len(cfg.LLM.Providers) == 0 {
		cfg.LLM.Providers = llmfactory.ProvidersFromEnv()
		logger.KV(xlog.DEBUG,
			"status", "providers_from_env",
			"count", len(cfg.LLM.Providers))
	}
	return cfg, nil
}

// Validate checks the MCP servers and durations
func (c *Config) Validate() error {
	for _, name := range c.ServerNames() {
		s := c.MCP.Servers[name]
		if s == nil {
			return errors.Errorf("config: mcp server %q is empty", name)
		}
		if s.Smithery != "" {
			continue
		}
		if err := s.ServerConfig.Validate(); err != nil {
			return errors.WithMessagef(err, "config: mcp server %q", name)
		}
	}
	if c.ToolManager.CacheTTL != "" {
		if _, err := time.ParseDuration(c.ToolManager.CacheTTL); err != nil {
			return errors.Wrapf(err, "config: invalid cache_ttl")
		}
	}
	return nil
}

// ServerNames returns the configured MCP server names, sorted
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.MCP.Servers))
	for name := range c.MCP.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddServers registers the configured MCP servers in the pool
func (c *Config) AddServers(pool *mcp.Pool, opts ...mcp.ClientOption) error {
	for _, name := range c.ServerNames() {
		client, err := c.MCP.Servers[name].Client(opts...)
		if err != nil {
			return errors.WithMessagef(err, "config: mcp server %q", name)
		}
		if err = pool.AddClient(name, client); err != nil {
			return err
		}
	}
	return nil
}

// PackageStore returns the Redis package cache when configured,
// otherwise an in-memory one. The returned func releases the connection.
func (c *Config) PackageStore(ctx context.Context) (store.PackageStore, func(), error) {
	prefix := values.StringsCoalesce(c.Redis.Prefix, DefaultRedisPrefix)
	if c.Redis.URL == "" {
		return store.NewMemoryStore(prefix), func() {}, nil
	}

	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "config: invalid redis url")
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "failed to connect to Redis")
	}

	var ttl time.Duration
	if c.ToolManager.CacheTTL != "" {
		ttl, _ = time.ParseDuration(c.ToolManager.CacheTTL)
	}

	logger.ContextKV(ctx, xlog.DEBUG, "store", "redis", "addr", opts.Addr, "prefix", prefix)
	return store.NewRedisStore(client, prefix, ttl), func() { _ = client.Close() }, nil
}

// NewToolManager returns the tool manager using the store as its cache
func (c *Config) NewToolManager(st store.PackageStore, opts ...toolmanager.Option) (*toolmanager.Manager, error) {
	all := []toolmanager.Option{toolmanager.WithStore(st)}
	if c.ToolManager.CacheDir != "" {
		all = append(all, toolmanager.WithCacheDir(c.ToolManager.CacheDir))
	}
	if len(c.ToolManager.LocalPaths) > 0 {
		all = append(all, toolmanager.WithLocalPaths(c.ToolManager.LocalPaths...))
	}
	return toolmanager.New(c.ToolManager.BaseURL, append(all, opts...)...)
}

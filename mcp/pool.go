package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/pkg/metricskey"
	"github.com/effective-security/cerebrum/tools"
	"github.com/effective-security/xlog"
	"github.com/sourcegraph/conc/pool"
)

// Pool is a named set of MCP clients
type Pool struct {
	lock    sync.RWMutex
	clients map[string]*Client
	// index of tool name to client name
	index     map[string]string
	callbacks []tools.Callback
}

// PoolOption configures the Pool
type PoolOption func(*Pool)

// WithToolCallback registers a callback for tool calls made through the pool
func WithToolCallback(cb tools.Callback) PoolOption {
	return func(p *Pool) {
		if cb != nil {
			p.callbacks = append(p.callbacks, cb)
		}
	}
}

// NewPool returns an empty pool
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		clients: make(map[string]*Client),
		index:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddClient registers the client under the name.
// The client is not started.
func (p *Pool) AddClient(name string, c *Client) error {
	if name == "" || c == nil {
		return errors.New("mcp: client name and client are required")
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.clients[name]; ok {
		return errors.WithMessagef(ErrClientExists, "%q", name)
	}
	c.setName(name)
	p.clients[name] = c
	return nil
}

// Client returns the client by name
func (p *Pool) Client(name string) (*Client, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	c, ok := p.clients[name]
	return c, ok
}

// Names returns sorted client names
func (p *Pool) Names() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Pool) list() []*Client {
	names := p.Names()
	p.lock.RLock()
	defer p.lock.RUnlock()
	list := make([]*Client, 0, len(names))
	for _, name := range names {
		list = append(list, p.clients[name])
	}
	return list
}

// Start starts the clients that are not started yet, concurrently.
// If any client fails, the clients started by this call are stopped
// and the first error is returned.
func (p *Pool) Start(ctx context.Context) error {
	var pending []*Client
	for _, c := range p.list() {
		if !c.Started() {
			pending = append(pending, c)
		}
	}

	wg := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for _, c := range pending {
		wg.Go(func(ctx context.Context) error {
			return c.Start(ctx)
		})
	}
	if err := wg.Wait(); err != nil {
		for _, c := range pending {
			if serr := c.Stop(); serr != nil {
				logger.ContextKV(ctx, xlog.WARNING, "reason", "stop", "client", c.Name(), "err", serr.Error())
			}
		}
		return err
	}

	logger.ContextKV(ctx, xlog.DEBUG, "status", "started", "clients", len(pending))
	return nil
}

// Stop stops all clients, returning the combined errors
func (p *Pool) Stop() error {
	var err error
	for _, c := range p.list() {
		err = errors.CombineErrors(err, c.Stop())
	}

	p.lock.Lock()
	p.index = make(map[string]string)
	p.lock.Unlock()

	return err
}

// Tools returns the tools of all clients, ordered by client name,
// and rebuilds the tool index. When two clients expose the same tool,
// calls by tool name go to the first client.
func (p *Pool) Tools(ctx context.Context) ([]tools.Info, error) {
	var all []tools.Info
	index := make(map[string]string)
	for _, c := range p.list() {
		list, err := c.Tools(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range list {
			if owner, ok := index[info.Name]; ok {
				logger.ContextKV(ctx, xlog.WARNING,
					"reason", "duplicate_tool",
					"tool", info.Name,
					"client", c.Name(),
					"owner", owner)
				continue
			}
			index[info.Name] = c.Name()
			all = append(all, info)
		}
	}

	p.lock.Lock()
	p.index = index
	p.lock.Unlock()

	return all, nil
}

// Execute runs the default tool of the named client, see Client.ExecuteDefault
func (p *Pool) Execute(ctx context.Context, clientName string, args map[string]any) (string, error) {
	c, ok := p.Client(clientName)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, clientName)
		return "", errors.WithMessagef(ErrToolNotFound, "client %q", clientName)
	}
	return p.call(ctx, c, "", args, func() (string, error) {
		return c.ExecuteDefault(ctx, args)
	})
}

// CallTool calls the tool by name on the client that exposes it.
// A name matching no tool but a client name runs that client's default tool.
func (p *Pool) CallTool(ctx context.Context, toolName string, args map[string]any) (string, error) {
	clientName, ok := p.lookup(toolName)
	if !ok {
		// refresh the index, a client may have been added or restarted
		if _, err := p.Tools(ctx); err != nil {
			return "", err
		}
		clientName, ok = p.lookup(toolName)
	}
	if !ok {
		if _, isClient := p.Client(toolName); isClient {
			return p.Execute(ctx, toolName, args)
		}
		metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
		return "", errors.WithMessagef(ErrToolNotFound, "%q", toolName)
	}

	c, _ := p.Client(clientName)
	return p.call(ctx, c, toolName, args, func() (string, error) {
		return c.Execute(ctx, toolName, args)
	})
}

func (p *Pool) lookup(toolName string) (string, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	name, ok := p.index[toolName]
	return name, ok
}

func (p *Pool) call(ctx context.Context, c *Client, toolName string, args map[string]any, fn func() (string, error)) (string, error) {
	clientName := c.Name()
	tag := toolName
	if tag == "" {
		tag = clientName
	}

	for _, cb := range p.callbacks {
		cb.OnToolStart(ctx, clientName, tag, args)
	}

	started := time.Now()
	res, err := fn()
	metricskey.PerfToolCall.MeasureSince(started, clientName, tag)

	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, clientName, tag)
		for _, cb := range p.callbacks {
			cb.OnToolError(ctx, clientName, tag, err)
		}
		return "", err
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, clientName, tag)
	for _, cb := range p.callbacks {
		cb.OnToolEnd(ctx, clientName, tag, res)
	}
	return res, nil
}

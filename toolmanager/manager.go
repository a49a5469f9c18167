package toolmanager

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/pkg/metricskey"
	"github.com/effective-security/cerebrum/store"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cerebrum", "toolmanager")

// ErrToolNotFound is returned when the tool is not found locally or in the registry
var ErrToolNotFound = errors.New("toolmanager: tool not found")

const (
	// DefaultBaseURL is the tool registry
	DefaultBaseURL = "https://my.aios.foundation"
	// DefaultCacheFolder is the cache folder under the user home
	DefaultCacheFolder = ".cerebrum/tools"

	downloadPath = "/cerebrum/tool/download"
	listPath     = "/cerebrum/tool/list"

	maxResponseSize = 64 << 20
)

// Manager loads tools from local folders and the tool registry
type Manager struct {
	baseURL    string
	cacheDir   string
	localPaths []string
	httpClient *http.Client
	store      store.PackageStore
}

// Option configures the Manager
type Option func(*Manager)

// WithCacheDir sets the folder downloaded tools are written to
func WithCacheDir(dir string) Option {
	return func(m *Manager) {
		m.cacheDir = dir
	}
}

// WithLocalPaths sets the folders searched for local tools
func WithLocalPaths(paths ...string) Option {
	return func(m *Manager) {
		m.localPaths = append(m.localPaths, paths...)
	}
}

// WithHTTPClient sets the registry client
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = client
	}
}

// WithStore sets the package cache
func WithStore(st store.PackageStore) Option {
	return func(m *Manager) {
		m.store = st
	}
}

// New returns the Manager for the registry at baseURL
func New(baseURL string, opts ...Option) (*Manager, error) {
	m := &Manager{
		baseURL: strings.TrimSuffix(values.StringsCoalesce(baseURL, DefaultBaseURL), "/"),
	}
	for _, opt := range opts {
		opt(m)
	}

	if _, err := url.Parse(m.baseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid base URL")
	}
	if m.cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve cache folder")
		}
		m.cacheDir = filepath.Join(home, DefaultCacheFolder)
	}
	if len(m.localPaths) == 0 {
		m.localPaths = []string{"."}
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if m.store == nil {
		m.store = store.NewMemoryStore("cerebrum")
	}
	return m, nil
}

// BaseURL returns the registry URL
func (m *Manager) BaseURL() string {
	return m.baseURL
}

// CacheDir returns the folder downloaded tools are written to
func (m *Manager) CacheDir() string {
	return m.cacheDir
}

// LoadOptions selects the tool to load
type LoadOptions struct {
	Name    string
	Author  string
	Version string
	// Local searches the local paths instead of the registry
	Local bool
}

// LoadTool loads the tool from the local paths, or from the cache
// falling back to the registry.
func (m *Manager) LoadTool(ctx context.Context, o LoadOptions) (*Tool, error) {
	if o.Name == "" {
		return nil, errors.New("toolmanager: tool name is required")
	}

	source := SourceRemote
	if o.Local {
		source = SourceLocal
	}

	started := time.Now()
	defer metricskey.PerfToolLoad.MeasureSince(started, source)

	var t *Tool
	var err error
	if o.Local {
		t, err = m.loadLocal(ctx, o)
	} else {
		t, err = m.loadRemote(ctx, o)
	}
	if err != nil {
		metricskey.StatsToolLoadFailed.IncrCounter(1, source)
		return nil, err
	}

	metricskey.StatsToolLoaded.IncrCounter(1, t.Source)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "loaded",
		"tool", t.Name(),
		"source", t.Source,
		"dir", t.Dir)
	return t, nil
}

// loadLocal finds `<path>/**/<name>/config.{json,yaml,yml}`
func (m *Manager) loadLocal(ctx context.Context, o LoadOptions) (*Tool, error) {
	for _, root := range m.localPaths {
		var found *Tool
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				// unreadable folders are skipped
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			if d.Name() != o.Name {
				return nil
			}
			t, err := m.readDir(p, SourceLocal)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if o.Author != "" && t.Manifest.Meta.Author != o.Author {
				return nil
			}
			found = t
			return fs.SkipAll
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to search %s", root)
		}
		if found != nil {
			return found, nil
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"reason", "not_found",
		"tool", o.Name,
		"paths", m.localPaths)
	return nil, errors.WithMessagef(ErrToolNotFound, "%q in %s", o.Name, strings.Join(m.localPaths, ", "))
}

// readDir reads the manifest and lists the files of the tool folder
func (m *Manager) readDir(dir, source string) (*Tool, error) {
	var manifest *Manifest
	for _, name := range ConfigFileNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, errors.WithStack(err)
		}
		manifest, err = ParseManifest(name, data)
		if err != nil {
			return nil, err
		}
		break
	}
	if manifest == nil {
		return nil, errors.WithMessagef(fs.ErrNotExist, "no tool config in %s", dir)
	}

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sort.Strings(files)

	return &Tool{
		Manifest: manifest,
		Dir:      dir,
		Files:    files,
		Source:   source,
	}, nil
}

func (m *Manager) loadRemote(ctx context.Context, o LoadOptions) (*Tool, error) {
	key := store.PackageKey{Author: o.Author, Name: o.Name, Version: o.Version}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	pkg, err := m.store.Get(ctx, key)
	if err == nil {
		t, err := m.install(pkg, SourceCache)
		if err == nil {
			return t, nil
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "cache",
			"package", key.String(),
			"err", err.Error())
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "cache",
			"package", key.String(),
			"err", err.Error())
	}

	pkg, err = m.download(ctx, key)
	if err != nil {
		return nil, err
	}
	t, err := m.install(pkg, SourceRemote)
	if err != nil {
		return nil, err
	}

	pkg.Dir = t.Dir
	pkg.UpdatedAt = time.Now().UTC()
	if err = m.store.Put(ctx, pkg); err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "cache_put", "err", err.Error())
	}
	if requested := key.String(); requested != pkg.PackageKey.String() {
		// also cache under the requested key, like `latest`
		alias := *pkg
		alias.PackageKey = key
		if err = m.store.Put(ctx, &alias); err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "cache_put", "err", err.Error())
		}
	}
	return t, nil
}

type downloadResponse struct {
	Author  string            `json:"author"`
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Config  json.RawMessage   `json:"config"`
	Files   map[string]string `json:"files"`
}

func (m *Manager) download(ctx context.Context, key store.PackageKey) (*store.Package, error) {
	q := url.Values{}
	q.Set("author", key.Author)
	q.Set("name", key.Name)
	q.Set("version", key.Version)

	var res downloadResponse
	if err := m.get(ctx, downloadPath, q, &res); err != nil {
		return nil, errors.WithMessagef(err, "failed to download %s", key)
	}

	config := []byte(res.Config)
	// the config may be sent as a JSON string
	var s string
	if json.Unmarshal(config, &s) == nil {
		config = []byte(s)
	}
	if len(config) == 0 {
		return nil, errors.Errorf("toolmanager: %s has no config", key)
	}

	files := make(map[string][]byte, len(res.Files))
	for name, content := range res.Files {
		bs, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s", name)
		}
		files[name] = bs
	}

	pkg := &store.Package{
		PackageKey: store.PackageKey{
			Author:  values.StringsCoalesce(res.Author, key.Author),
			Name:    values.StringsCoalesce(res.Name, key.Name),
			Version: values.StringsCoalesce(res.Version, key.Version),
		},
		Config: config,
		Files:  files,
	}
	if err := pkg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "registry returned %s", key)
	}
	return pkg, nil
}

// install writes the package to its folder unless already there
func (m *Manager) install(pkg *store.Package, source string) (*Tool, error) {
	dir, err := m.packageDir(pkg)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WithStack(err)
		}
		for name, content := range pkg.Files {
			p, err := safeJoin(dir, name)
			if err != nil {
				return nil, err
			}
			if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, errors.WithStack(err)
			}
			if err = os.WriteFile(p, content, 0o644); err != nil {
				return nil, errors.WithStack(err)
			}
		}
		if err = os.WriteFile(filepath.Join(dir, "config.json"), pkg.Config, 0o644); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return m.readDir(dir, source)
}

// packageDir returns the folder of the package, which must be in the cache folder
func (m *Manager) packageDir(pkg *store.Package) (string, error) {
	if err := pkg.Validate(); err != nil {
		return "", err
	}
	dir := pkg.Dir
	if dir == "" {
		dir = filepath.Join(m.cacheDir, pkg.Author, pkg.Name, pkg.GetVersion())
	}

	root, err := filepath.Abs(m.cacheDir)
	if err != nil {
		return "", errors.WithStack(err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.WithStack(err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("toolmanager: folder of %s is outside of the cache", pkg.PackageKey)
	}
	return dir, nil
}

// safeJoin rejects names escaping the folder
func safeJoin(dir, name string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(name))
	if clean == "/" || strings.Contains(name, "..") {
		return "", errors.Errorf("toolmanager: invalid file name %q", name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean[1:])), nil
}

// ListTools returns the names of the tools in the registry
func (m *Manager) ListTools(ctx context.Context) ([]string, error) {
	var names []string
	if err := m.get(ctx, listPath, nil, &names); err != nil {
		return nil, errors.WithMessage(err, "failed to list tools")
	}
	return names, nil
}

func (m *Manager) get(ctx context.Context, p string, q url.Values, out any) error {
	u := m.baseURL + p
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return errors.WithStack(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.WithStack(ErrToolNotFound)
	case resp.StatusCode >= 300:
		return errors.Errorf("registry returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err = json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to decode registry response")
	}
	return nil
}

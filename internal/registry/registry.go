// Package registry fetches and caches the catalog of installable servers.
// The catalog is a JSON document served over plain HTTP(S); a local cache
// under the editor's directory keeps repeated lookups off the network and
// serves as a fallback when the network is down.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// ServerInfo is one catalog entry. Which fields are present depends on the
// installation type: npm entries carry a package name, git entries carry a
// repository URL and build steps.
type ServerInfo struct {
	Name         string            `json:"name,omitempty"`
	PackageName  string            `json:"package_name,omitempty"`
	Command      string            `json:"command,omitempty"`
	Args         []string          `json:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Description  string            `json:"description,omitempty"`
	Author       string            `json:"author,omitempty"`
	InstallType  string            `json:"installation_type,omitempty"`
	GitURL       string            `json:"git_url,omitempty"`
	Subdir       string            `json:"subdir,omitempty"`
	InstallSteps []string          `json:"install_steps,omitempty"`
	InstallCmd   string            `json:"install_command,omitempty"`
	MainFile     string            `json:"main_file,omitempty"`
	Functions    []FunctionInfo    `json:"functions,omitempty"`
}

// FunctionInfo describes one callable function a server exposes. Few catalog
// entries carry these yet; callers fall back to built-in knowledge for
// well-known servers.
type FunctionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  string `json:"parameters,omitempty"`
}

// document is the catalog wire and cache format.
type document struct {
	Servers     map[string]ServerInfo `json:"servers"`
	LastUpdated time.Time             `json:"last_updated"`
}

// Config holds registry client configuration.
type Config struct {
	URL       string
	CachePath string        // empty means ~/.cursor/mcp_registry.json
	TTL       time.Duration // cache freshness window
	Timeout   time.Duration // per-request HTTP timeout
	Logger    *slog.Logger
}

// Client resolves catalog lookups against the cache first and the network
// second.
type Client struct {
	url       string
	cachePath string
	ttl       time.Duration
	http      *http.Client
	logger    *slog.Logger
	now       func() time.Time
}

// DefaultCachePath returns the catalog cache location.
func DefaultCachePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cursor", "mcp_registry.json"), nil
}

// New creates a registry client.
func New(cfg Config) *Client {
	if cfg.CachePath == "" {
		if p, err := DefaultCachePath(); err == nil {
			cfg.CachePath = p
		}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		url:       cfg.URL,
		cachePath: cfg.CachePath,
		ttl:       cfg.TTL,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Catalog returns the server catalog, from cache when fresh. When the fetch
// fails and a stale cache exists, the stale copy is served with a warning:
// an unreachable registry should not break installs of already-known
// servers.
func (c *Client) Catalog(ctx context.Context) (map[string]ServerInfo, error) {
	if doc, ok := c.loadCache(); ok && c.fresh(doc) {
		return named(doc.Servers), nil
	}
	doc, err := c.fetch(ctx)
	if err != nil {
		if stale, ok := c.loadCache(); ok {
			c.logger.Warn("registry fetch failed, serving cached catalog", "age", c.now().Sub(stale.LastUpdated).Round(time.Second), "error", err)
			return named(stale.Servers), nil
		}
		return nil, err
	}
	return named(doc.Servers), nil
}

// Available lists the catalog sorted by name.
func (c *Client) Available(ctx context.Context) ([]ServerInfo, error) {
	servers, err := c.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ServerInfo, 0, len(servers))
	for _, info := range servers {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Lookup finds one catalog entry by name.
func (c *Client) Lookup(ctx context.Context, name string) (ServerInfo, bool, error) {
	servers, err := c.Catalog(ctx)
	if err != nil {
		return ServerInfo{}, false, err
	}
	info, ok := servers[name]
	return info, ok, nil
}

// Update forces a fetch regardless of cache freshness and reports how many
// servers the catalog now carries. Unlike Catalog it fails loudly: an
// explicit refresh that silently serves stale data would be misleading.
func (c *Client) Update(ctx context.Context) (int, error) {
	doc, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}
	return len(doc.Servers), nil
}

// fetch downloads the catalog and refreshes the cache. A timestamp query
// parameter defeats intermediary caching of the raw file URL.
func (c *Client) fetch(ctx context.Context) (document, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return document{}, fmt.Errorf("registry url: %w", err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().Unix(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return document{}, fmt.Errorf("registry request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return document{}, fmt.Errorf("fetch registry: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return document{}, fmt.Errorf("fetch registry: unexpected status %s", resp.Status)
	}

	var doc document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return document{}, fmt.Errorf("decode registry: %w", err)
	}
	doc.LastUpdated = c.now()
	c.saveCache(doc)
	c.logger.Debug("registry fetched", "servers", len(doc.Servers))
	return doc, nil
}

func (c *Client) fresh(doc document) bool {
	return c.now().Sub(doc.LastUpdated) <= c.ttl
}

func (c *Client) loadCache() (document, bool) {
	if c.cachePath == "" {
		return document{}, false
	}
	b, err := os.ReadFile(c.cachePath)
	if err != nil {
		return document{}, false
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		c.logger.Debug("discarding unreadable registry cache", "path", c.cachePath, "error", err)
		return document{}, false
	}
	return doc, true
}

func (c *Client) saveCache(doc document) {
	if c.cachePath == "" {
		return
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o755); err != nil {
		c.logger.Debug("registry cache dir", "error", err)
		return
	}
	if err := os.WriteFile(c.cachePath, b, 0o644); err != nil {
		c.logger.Debug("registry cache write", "error", err)
	}
}

// named fills each entry's Name from its catalog key when the entry itself
// does not carry one.
func named(servers map[string]ServerInfo) map[string]ServerInfo {
	out := make(map[string]ServerInfo, len(servers))
	for key, info := range servers {
		if info.Name == "" {
			info.Name = key
		}
		out[key] = info
	}
	return out
}

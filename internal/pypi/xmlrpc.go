package pypi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kolo/xmlrpc"

	"github.com/rocketDuck/folivora/internal/retry"
)

const defaultCallTimeout = 30 * time.Second

// rpcCaller is the transport surface of the underlying XML-RPC client.
type rpcCaller interface {
	Call(serviceMethod string, args any, reply any) error
}

// XMLRPCClient talks to a PyPI-compatible index over XML-RPC.
type XMLRPCClient struct {
	rpc     *xmlrpc.Client
	caller  rpcCaller
	timeout time.Duration
	retry   retry.Config
}

// XMLRPCConfig holds configuration for the XML-RPC index client.
type XMLRPCConfig struct {
	URL     string        `yaml:"url" env:"INDEX_URL"`
	Timeout time.Duration `yaml:"timeout" env:"INDEX_TIMEOUT"`
}

// NewXMLRPCClient creates a client for the given index endpoint.
func NewXMLRPCClient(cfg XMLRPCConfig) (*XMLRPCClient, error) {
	url := cfg.URL
	if url == "" {
		url = DefaultServer
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	rpc, err := xmlrpc.NewClient(url, http.DefaultTransport)
	if err != nil {
		return nil, fmt.Errorf("create xmlrpc client: %w", err)
	}

	return &XMLRPCClient{
		rpc:     rpc,
		caller:  rpc,
		timeout: timeout,
		retry:   retry.DefaultConfig(),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *XMLRPCClient) Close() error {
	return c.rpc.Close()
}

// ListPackages fetches the master list of package names.
func (c *XMLRPCClient) ListPackages(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.call(ctx, "list_packages", nil, &names); err != nil {
		return nil, fmt.Errorf("list_packages: %w", err)
	}
	return names, nil
}

// ListVersions fetches the release versions of a package, hidden
// releases included. A missing package yields an empty list.
func (c *XMLRPCClient) ListVersions(ctx context.Context, name string) ([]string, error) {
	var versions []string
	if err := c.call(ctx, "package_releases", []any{name, true}, &versions); err != nil {
		return nil, fmt.Errorf("package_releases(%s): %w", name, err)
	}
	return versions, nil
}

// ReleaseArtifacts fetches the artifact descriptors of one release.
func (c *XMLRPCClient) ReleaseArtifacts(ctx context.Context, name, version string) ([]ReleaseArtifact, error) {
	var artifacts []ReleaseArtifact
	if err := c.call(ctx, "release_urls", []any{name, version}, &artifacts); err != nil {
		return nil, fmt.Errorf("release_urls(%s, %s): %w", name, version, err)
	}
	return artifacts, nil
}

// Changelog fetches all feed events at or after since.
func (c *XMLRPCClient) Changelog(ctx context.Context, since time.Time) ([]ChangeEvent, error) {
	var raw [][]any
	if err := c.call(ctx, "changelog", []any{since.Unix()}, &raw); err != nil {
		return nil, fmt.Errorf("changelog: %w", err)
	}

	events := make([]ChangeEvent, 0, len(raw))
	for _, entry := range raw {
		ev, ok := parseChangelogEntry(entry)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// parseChangelogEntry decodes one (name, version|nil, epoch, action)
// tuple. Malformed entries are dropped rather than failing the feed.
func parseChangelogEntry(entry []any) (ChangeEvent, bool) {
	const tupleLen = 4
	if len(entry) != tupleLen {
		return ChangeEvent{}, false
	}

	name, ok := entry[0].(string)
	if !ok || name == "" {
		return ChangeEvent{}, false
	}

	var ev ChangeEvent
	ev.Name = name
	if v, isString := entry[1].(string); isString {
		ev.Version = v
	}
	switch ts := entry[2].(type) {
	case int64:
		ev.Timestamp = time.Unix(ts, 0).UTC()
	case int:
		ev.Timestamp = time.Unix(int64(ts), 0).UTC()
	default:
		return ChangeEvent{}, false
	}
	action, ok := entry[3].(string)
	if !ok {
		return ChangeEvent{}, false
	}
	ev.Action = action

	return ev, true
}

// call runs one RPC, retrying transient transport failures with
// backoff. Each attempt gets its own timeout.
func (c *XMLRPCClient) call(ctx context.Context, method string, args any, reply any) error {
	return retry.Do(ctx, c.retry, func() error {
		return c.callOnce(ctx, method, args, reply)
	})
}

// callOnce runs one RPC attempt with the configured timeout while
// honoring caller cancellation; the underlying transport has no
// context support.
func (c *XMLRPCClient) callOnce(ctx context.Context, method string, args any, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.caller.Call(method, args, reply)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}
}

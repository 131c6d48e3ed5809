// Package discovery resolves the base URL of the monitored service, either
// from static configuration or from the Kubernetes API when the monitor runs
// in-cluster.
package discovery

import (
	"context"
	"fmt"
	"net/url"
)

// Resolver discovers the monitored service's base URL.
type Resolver interface {
	Resolve(ctx context.Context) (*url.URL, error)
}

// StaticResolver returns a fixed base URL for non-cluster runs.
type StaticResolver struct {
	baseURL *url.URL
}

func NewStaticResolver(baseURL string) (*StaticResolver, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base URL %q is not absolute", baseURL)
	}

	return &StaticResolver{baseURL: parsed}, nil
}

func (r *StaticResolver) Resolve(_ context.Context) (*url.URL, error) {
	return r.baseURL, nil
}

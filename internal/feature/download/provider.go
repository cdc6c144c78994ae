// Package download resolves shared video links into direct media URLs by
// racing a set of provider APIs and caching the winners.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Result is a resolved download link.
type Result struct {
	VideoURL string `json:"video_url"`
	Title    string `json:"title,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Provider resolves one shared link into a direct media URL.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, link string) (Result, error)
}

const providerTimeout = 15 * time.Second

// HTTPProvider calls a resolver endpoint: GET <endpoint>?url=<link>, expecting
// a JSON body with a video_url field.
type HTTPProvider struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewHTTPProvider constructs a provider for the given endpoint URL. The name
// is derived from the endpoint host.
func NewHTTPProvider(endpoint string, client *http.Client) (*HTTPProvider, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid provider endpoint %q", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: providerTimeout}
	}

	return &HTTPProvider{
		name:     parsed.Host,
		endpoint: endpoint,
		client:   client,
	}, nil
}

// Name returns the provider's host, used in logs and cached results.
func (p *HTTPProvider) Name() string { return p.name }

// Resolve asks the provider for a direct media URL.
func (p *HTTPProvider) Resolve(ctx context.Context, link string) (Result, error) {
	if strings.TrimSpace(link) == "" {
		return Result{}, errors.New("link is required")
	}

	reqURL := p.endpoint
	if strings.Contains(reqURL, "?") {
		reqURL += "&url=" + url.QueryEscape(link)
	} else {
		reqURL += "?url=" + url.QueryEscape(link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build %s request: %w", p.name, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%s responded %d", p.name, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode %s response: %w", p.name, err)
	}
	if result.VideoURL == "" {
		return Result{}, fmt.Errorf("%s returned no media url", p.name)
	}

	result.Provider = p.name
	return result, nil
}

// BuildProviders constructs one HTTPProvider per configured endpoint.
func BuildProviders(endpoints []string) ([]Provider, error) {
	providers := make([]Provider, 0, len(endpoints))
	for _, endpoint := range endpoints {
		provider, err := NewHTTPProvider(endpoint, nil)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return providers, nil
}

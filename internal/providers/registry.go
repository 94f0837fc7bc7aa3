// Package providers loads the provider registry: the YAML file mapping a
// slug to the OAuth2 endpoints and client credentials of a remote API.
//
// Credential fields may reference environment variables as ${VAR}. Entries
// whose credentials do not resolve are excluded from the registry rather
// than failing the load; the per-entry outcome is returned so callers can
// log what was skipped and why.
package providers

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"oauth-bridge/internal/common/errors"
)

// Provider describes one OAuth2-protected API.
type Provider struct {
	Slug         string            `yaml:"-"`
	DisplayName  string            `yaml:"display_name"`
	BaseURL      string            `yaml:"base_url"`
	AuthURL      string            `yaml:"auth_url"`
	TokenURL     string            `yaml:"token_url"`
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	Scopes       []string          `yaml:"scopes"`
	ExtraParams  map[string]string `yaml:"extra_params"`
}

// ScopeString returns the space-delimited scope string for authorize URLs.
func (p *Provider) ScopeString() string {
	return strings.Join(p.Scopes, " ")
}

// Skipped records why a registry entry was excluded.
type Skipped struct {
	Slug   string
	Reason string
}

// LoadResult is the outcome of loading a registry file: the usable
// providers plus the entries that were excluded. Partial configuration is
// a normal, reportable outcome, not an error.
type LoadResult struct {
	Registry *Registry
	Skipped  []Skipped
}

// Registry is an immutable slug lookup built once at startup.
type Registry struct {
	providers map[string]*Provider
}

// Get returns the provider for a slug.
func (r *Registry) Get(slug string) (*Provider, bool) {
	p, ok := r.providers[slug]
	return p, ok
}

// Slugs returns all registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.providers))
	for slug := range r.providers {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.providers)
}

type registryFile struct {
	Providers map[string]*Provider `yaml:"providers"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expand replaces ${VAR} references using the environment snapshot.
// Unresolved references expand to the empty string.
func expand(value string, env func(string) string) string {
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		name := envRef.FindStringSubmatch(match)[1]
		return env(name)
	})
}

// Parse builds a registry from raw YAML and an environment snapshot. It is
// a pure function: the same bytes and snapshot always produce the same
// result.
func Parse(data []byte, env func(string) string) (*LoadResult, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid provider registry: %v", err))
	}

	result := &LoadResult{Registry: &Registry{providers: make(map[string]*Provider)}}
	slugs := make([]string, 0, len(file.Providers))
	for slug := range file.Providers {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	for _, slug := range slugs {
		p := file.Providers[slug]
		if p == nil {
			result.Skipped = append(result.Skipped, Skipped{Slug: slug, Reason: "empty entry"})
			continue
		}
		p.Slug = slug
		p.BaseURL = strings.TrimRight(expand(p.BaseURL, env), "/")
		p.AuthURL = expand(p.AuthURL, env)
		p.TokenURL = expand(p.TokenURL, env)
		p.ClientID = expand(p.ClientID, env)
		p.ClientSecret = expand(p.ClientSecret, env)

		if reason := validate(p); reason != "" {
			result.Skipped = append(result.Skipped, Skipped{Slug: slug, Reason: reason})
			continue
		}
		result.Registry.providers[slug] = p
	}

	return result, nil
}

func validate(p *Provider) string {
	switch {
	case p.BaseURL == "":
		return "base_url is missing"
	case p.AuthURL == "":
		return "auth_url is missing"
	case p.TokenURL == "":
		return "token_url is missing"
	case p.ClientID == "":
		return "client_id is not configured"
	case p.ClientSecret == "":
		return "client_secret is not configured"
	}
	return ""
}

// Load reads the registry file and parses it against the current process
// environment.
func Load(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("cannot read provider registry %s: %v", path, err))
	}
	return Parse(data, os.Getenv)
}

package provider

import (
	"fmt"
	"strings"

	"github.com/waabox/pipegraph/internal/domain"
)

// Registry maps GitLab hosts to PipelineProvider implementations. A user may
// talk to gitlab.com and a self-managed instance from the same machine.
type Registry struct {
	entries []entry
}

type entry struct {
	host     string
	provider domain.PipelineProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register associates a host (e.g. "gitlab.example.com") with a provider.
// Registering the same host twice replaces the earlier provider.
func (r *Registry) Register(host string, p domain.PipelineProvider) {
	host = strings.ToLower(host)
	for i, e := range r.entries {
		if e.host == host {
			r.entries[i].provider = p
			return
		}
	}
	r.entries = append(r.entries, entry{host: host, provider: p})
}

// Detect returns the provider registered for the repository's host. When the
// host is unknown the remote URL is matched as a fallback.
func (r *Registry) Detect(repo domain.Repository) (domain.PipelineProvider, error) {
	host := strings.ToLower(repo.Host)
	for _, e := range r.entries {
		if e.host == host {
			return e.provider, nil
		}
	}
	for _, e := range r.entries {
		if repo.RemoteURL != "" && strings.Contains(strings.ToLower(repo.RemoteURL), e.host) {
			return e.provider, nil
		}
	}
	return nil, fmt.Errorf("no provider registered for host %q", repo.Host)
}

package platform

import (
	"fmt"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

// Registry associe chaque plateforme supportée à son exécuteur.
type Registry struct {
	executors map[domain.PlatformID]ports.PlatformExecutor
}

var _ ports.ExecutorRegistry = (*Registry)(nil)

func NewRegistry(executors ...ports.PlatformExecutor) *Registry {
	r := &Registry{executors: make(map[domain.PlatformID]ports.PlatformExecutor, len(executors))}
	for _, ex := range executors {
		r.executors[ex.Platform()] = ex
	}
	return r
}

func (r *Registry) Executor(platform domain.PlatformID) (ports.PlatformExecutor, error) {
	ex, ok := r.executors[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, platform)
	}
	return ex, nil
}

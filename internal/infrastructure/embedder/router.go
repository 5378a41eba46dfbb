package embedder

import (
	"log"

	"github.com/platewise/platewise-api/internal/domain/repository"
)

// Router picks the embedding backend. Every vector in one index must come from the same
// backend, so the choice is made once at startup rather than per request.
type Router struct {
	localClient repository.EmbeddingClient
	cloudClient repository.EmbeddingClient
}

// NewRouter initializes the router with the available backends. cloud may be nil.
func NewRouter(local, cloud repository.EmbeddingClient) *Router {
	return &Router{
		localClient: local,
		cloudClient: cloud,
	}
}

// Select returns the cloud client unless localOnly is set or no cloud client is configured.
func (r *Router) Select(localOnly bool) repository.EmbeddingClient {
	selected := r.cloudClient
	if localOnly || selected == nil {
		selected = r.localClient
	}
	log.Printf("[Router] Routing embeddings to %s", selected.Name())
	return selected
}

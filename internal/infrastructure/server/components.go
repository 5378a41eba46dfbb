package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/platewise/platewise-api/internal/config"
	"github.com/platewise/platewise-api/internal/database/bunstore"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/embedding"
	"github.com/platewise/platewise-api/internal/infrastructure/embedder"
	"github.com/platewise/platewise-api/internal/infrastructure/location"
	neo4jpkg "github.com/platewise/platewise-api/internal/infrastructure/neo4j"
	"github.com/platewise/platewise-api/internal/infrastructure/personalization"
	"github.com/platewise/platewise-api/internal/infrastructure/provider"
	qdrantpkg "github.com/platewise/platewise-api/internal/infrastructure/qdrant"
	"github.com/platewise/platewise-api/internal/usecase/aggregate"
	"github.com/platewise/platewise-api/internal/usecase/resolve"
	"github.com/platewise/platewise-api/internal/usecase/search"
)

// Components is the wired object graph shared by the API server and the sweeper.
type Components struct {
	Store    *bunstore.BunStore
	Graph    *neo4jpkg.Client
	Vectors  *qdrantpkg.Client
	Engine   *aggregate.Engine
	Resolver *resolve.Resolver
	Pipeline *search.Pipeline

	closers []func()
}

// Close releases every backend in reverse order of acquisition.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build initializes every dependency from cfg. On error, anything already opened is closed.
func Build(ctx context.Context, cfg *config.Config) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// ==========================================
	// Embeddings
	// ==========================================

	var cloud repository.EmbeddingClient
	if !cfg.UseLocalOnlyEmbedding {
		gemini, err := embedder.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbedModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		c.closers = append(c.closers, func() { _ = gemini.Close() })
		cloud = gemini
	}
	local := embedder.NewOllamaClient(cfg.OllamaHost, cfg.OllamaEmbedModel)
	embedClient := embedder.NewRouter(local, cloud).Select(cfg.UseLocalOnlyEmbedding)
	batcher := embedding.NewBatcher(embedClient, cfg.EmbeddingBatchSize, cfg.EmbeddingDimension, cfg.EmbeddingTimeout)

	// ==========================================
	// Storage
	// ==========================================

	c.Store, err = bunstore.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() {
		if closeErr := c.Store.Close(); closeErr != nil {
			log.Printf("[System] Warning: Failed to close database: %v", closeErr)
		}
	})

	c.Vectors, err = qdrantpkg.NewClient(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection, batcher.Dimension())
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() { _ = c.Vectors.Close() })

	c.Graph, err = neo4jpkg.NewClient(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() { _ = c.Graph.Close(context.Background()) })

	// ==========================================
	// Providers
	// ==========================================

	httpClient := provider.NewHTTPClient(cfg.LogLevel)
	discovery := provider.NewGuardedDiscovery(
		provider.NewYelpClient(cfg.YelpBaseURL, cfg.YelpAPIKey, httpClient),
		provider.NewGuard("yelp", cfg.ProviderRPS, cfg.ProviderBurst, cfg.BreakerFailures, cfg.BreakerOpenTimeout),
	)
	anchor := provider.NewGuardedAnchor(
		provider.NewPlacesClient(cfg.PlacesBaseURL, cfg.PlacesAPIKey, httpClient),
		provider.NewGuard("google_places", cfg.ProviderRPS, cfg.ProviderBurst, cfg.BreakerFailures, cfg.BreakerOpenTimeout),
	)

	gazetteer, err := location.LoadGazetteer(cfg.GazetteerPath)
	if err != nil {
		return nil, err
	}

	// ==========================================
	// Use cases
	// ==========================================

	c.Engine = aggregate.NewEngine(c.Store, discovery, anchor, batcher,
		aggregate.WithTTL(cfg.StalenessTTL),
		aggregate.WithVectorIndex(c.Vectors),
		aggregate.WithDonorSource(c.Graph),
		aggregate.WithConcurrency(cfg.AggregateWorkers),
	)
	c.Resolver = resolve.NewResolver(c.Store, anchor, c.Engine, location.NewParser(gazetteer), gazetteer)
	c.Pipeline = search.NewPipeline(c.Store, c.Vectors, batcher, pipelineOptions(cfg, c.Graph, httpClient)...)

	log.Printf("[System] Components ready (store: %s, embeddings: %s, discovery: %s, anchor: %s)",
		cfg.DatabaseDriver, batcher.Name(), discovery.Name(), anchor.Name())
	return c, nil
}

// pipelineOptions binds the explore collaborators. Availability comes from stored reservation
// links; scores, ratings and saves need the personalization service.
func pipelineOptions(cfg *config.Config, graph repository.GraphRepository, httpClient *http.Client) []search.Option {
	opts := []search.Option{search.WithGraph(graph)}
	if cfg.PersonalizationURL == "" {
		log.Printf("[System] Warning: PW_PERSONALIZATION_URL not set, explore results carry no match or quality scores")
		return append(opts, search.WithLookups(nil, nil, personalization.LinkAvailability{}))
	}
	pc := personalization.NewClient(cfg.PersonalizationURL, httpClient)
	return append(opts,
		search.WithPersonalizer(pc),
		search.WithLookups(pc, pc, personalization.LinkAvailability{}),
	)
}

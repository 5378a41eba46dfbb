package neo4j

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"
	"github.com/platewise/platewise-api/internal/domain/repository"
)

// Client implements repository.GraphRepository: content items linked to restaurants by ABOUT edges.
type Client struct {
	driver neo4j.Driver
}

var _ repository.GraphRepository = (*Client)(nil)

// NewClient creates a new Neo4j client and verifies connectivity.
func NewClient(ctx context.Context, uri, user, password string) (*Client, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver for %s: %w", uri, err)
	}

	// Verify connectivity
	if err := driver.VerifyConnectivity(ctx); err != nil {
		if closeErr := driver.Close(ctx); closeErr != nil {
			log.Printf("[Neo4j] Warning: failed to close driver after connectivity check: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to verify Neo4j connectivity at %s: %w", uri, err)
	}

	c := &Client{driver: driver}
	for _, stmt := range []string{
		`CREATE CONSTRAINT restaurant_id IF NOT EXISTS FOR (r:Restaurant) REQUIRE r.id IS UNIQUE`,
		`CREATE CONSTRAINT content_id IF NOT EXISTS FOR (c:Content) REQUIRE c.id IS UNIQUE`,
	} {
		if err := c.exec(ctx, stmt, nil); err != nil {
			log.Printf("[Neo4j] Warning: constraint setup failed: %v", err)
		}
	}

	log.Printf("[Neo4j] Connected to %s as %s", uri, user)
	return c, nil
}

func (c *Client) exec(ctx context.Context, query string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(ctx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(""),
	)
	return err
}

// LinkContent upserts the content node and its ABOUT edge to the restaurant.
func (c *Client) LinkContent(ctx context.Context, restaurantID string, item repository.ContentItem) error {
	query := `
		MERGE (r:Restaurant {id: $restaurant_id})
		MERGE (c:Content {id: $id})
		SET c.kind = $kind,
		    c.title = $title,
		    c.url = $url,
		    c.media_url = $media_url,
		    c.published_at = $published_at
		MERGE (c)-[:ABOUT]->(r)
	`
	params := contentParams(item)
	params["restaurant_id"] = restaurantID
	if err := c.exec(ctx, query, params); err != nil {
		return fmt.Errorf("neo4j link failed for %s -> %s: %w", item.ID, restaurantID, err)
	}
	return nil
}

// ListContent returns up to limit items of kind, newest first.
func (c *Client) ListContent(ctx context.Context, restaurantID string, kind repository.ContentKind, limit int) ([]repository.ContentItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		MATCH (c:Content {kind: $kind})-[:ABOUT]->(:Restaurant {id: $restaurant_id})
		RETURN c.id AS id, c.kind AS kind, c.title AS title, c.url AS url,
		       c.media_url AS media_url, c.published_at AS published_at
		ORDER BY c.published_at DESC
		LIMIT $limit
	`
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query,
		map[string]any{"restaurant_id": restaurantID, "kind": string(kind), "limit": int64(limit)},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(""),
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j list %s failed for %s: %w", kind, restaurantID, err)
	}

	items := make([]repository.ContentItem, 0, len(result.Records))
	for _, rec := range result.Records {
		items = append(items, itemFromRecord(rec))
	}
	return items, nil
}

// DonorMedia returns the media of the newest associated post that carries one.
func (c *Client) DonorMedia(ctx context.Context, restaurantID string) (string, error) {
	query := `
		MATCH (c:Content {kind: 'post'})-[:ABOUT]->(:Restaurant {id: $restaurant_id})
		WHERE c.media_url IS NOT NULL AND c.media_url <> ''
		RETURN c.media_url AS media_url
		ORDER BY c.published_at DESC
		LIMIT 1
	`
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query,
		map[string]any{"restaurant_id": restaurantID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(""),
	)
	if err != nil {
		return "", fmt.Errorf("neo4j donor media lookup failed for %s: %w", restaurantID, err)
	}
	if len(result.Records) == 0 {
		return "", nil
	}
	media, _, err := neo4j.GetRecordValue[string](result.Records[0], "media_url")
	if err != nil {
		return "", fmt.Errorf("neo4j donor media decode failed for %s: %w", restaurantID, err)
	}
	return media, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func contentParams(item repository.ContentItem) map[string]any {
	var published int64
	if !item.PublishedAt.IsZero() {
		published = item.PublishedAt.UnixMilli()
	}
	return map[string]any{
		"id":           item.ID,
		"kind":         string(item.Kind),
		"title":        item.Title,
		"url":          item.URL,
		"media_url":    item.MediaURL,
		"published_at": published,
	}
}

func itemFromRecord(rec *neo4j.Record) repository.ContentItem {
	str := func(key string) string {
		v, _, _ := neo4j.GetRecordValue[string](rec, key)
		return v
	}
	item := repository.ContentItem{
		ID:       str("id"),
		Kind:     repository.ContentKind(str("kind")),
		Title:    str("title"),
		URL:      str("url"),
		MediaURL: str("media_url"),
	}
	if ms, _, err := neo4j.GetRecordValue[int64](rec, "published_at"); err == nil && ms > 0 {
		item.PublishedAt = time.UnixMilli(ms).UTC()
	}
	return item
}

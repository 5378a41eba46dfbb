package qdrant

import (
	"context"
	"fmt"
	"log"

	"github.com/platewise/platewise-api/internal/domain/repository"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// pointsAPI is the subset of the Qdrant SDK client used here.
type pointsAPI interface {
	Upsert(ctx context.Context, req *pb.UpsertPoints) (*pb.UpdateResult, error)
	Delete(ctx context.Context, req *pb.DeletePoints) (*pb.UpdateResult, error)
	Query(ctx context.Context, req *pb.QueryPoints) ([]*pb.ScoredPoint, error)
	Close() error
}

// Client implements repository.VectorRepository over a cosine Qdrant collection.
type Client struct {
	client     pointsAPI
	collection string
	dimension  int
}

var _ repository.VectorRepository = (*Client)(nil)

// NewClient creates a new Qdrant client and ensures the target collection exists.
func NewClient(host string, port int, collection string, dimension int) (*Client, error) {
	client, err := pb.NewClient(&pb.Config{
		Host:        host,
		Port:        port,
		GrpcOptions: []grpc.DialOption{grpc.WithUserAgent("platewise-api")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	if err := ensureCollection(context.Background(), client, collection, dimension); err != nil {
		return nil, fmt.Errorf("failed to ensure collection %q: %w", collection, err)
	}

	log.Printf("[Qdrant] Connected to %s:%d, collection=%s, dim=%d", host, port, collection, dimension)
	return &Client{client: client, collection: collection, dimension: dimension}, nil
}

// ensureCollection creates the collection if it does not already exist.
func ensureCollection(ctx context.Context, client *pb.Client, collection string, dimension int) error {
	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = client.CreateCollection(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     uint64(dimension),
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return err
	}

	log.Printf("[Qdrant] Created collection %q", collection)
	return nil
}

func (c *Client) checkDimension(v []float32) error {
	if c.dimension > 0 && len(v) != c.dimension {
		return fmt.Errorf("vector has %d dimensions, collection %q expects %d", len(v), c.collection, c.dimension)
	}
	return nil
}

// Upsert writes the restaurant's vector under its canonical id.
func (c *Client) Upsert(ctx context.Context, id string, vector []float32) error {
	if err := c.checkDimension(vector); err != nil {
		return err
	}
	_, err := c.client.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: c.collection,
		Points: []*pb.PointStruct{{
			Id:      pb.NewIDUUID(id),
			Vectors: pb.NewVectors(vector...),
			Payload: pb.NewValueMap(map[string]any{"restaurant_id": id}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed for %s: %w", id, err)
	}
	return nil
}

// Delete removes the restaurant's point, used when a refresh lost its vector.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.client.Delete(ctx, &pb.DeletePoints{
		CollectionName: c.collection,
		Points:         pb.NewPointsSelector(pb.NewIDUUID(id)),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed for %s: %w", id, err)
	}
	return nil
}

// Search runs a KNN query. NumCandidates becomes the HNSW ef parameter.
func (c *Client) Search(ctx context.Context, q repository.VectorQuery) ([]repository.VectorMatch, error) {
	req, err := c.buildQuery(q)
	if err != nil {
		return nil, err
	}
	points, err := c.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}
	return toMatches(points, q.MinSimilarity), nil
}

func (c *Client) buildQuery(q repository.VectorQuery) (*pb.QueryPoints, error) {
	if err := c.checkDimension(q.Vector); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", q.Limit)
	}
	if q.NumCandidates < q.Limit {
		return nil, fmt.Errorf("numCandidates (%d) must be >= limit (%d)", q.NumCandidates, q.Limit)
	}

	req := &pb.QueryPoints{
		CollectionName: c.collection,
		Query:          pb.NewQuery(q.Vector...),
		Limit:          pb.PtrOf(uint64(q.Limit)),
		Params:         &pb.SearchParams{HnswEf: pb.PtrOf(uint64(q.NumCandidates))},
	}
	if q.MinSimilarity > 0 {
		req.ScoreThreshold = pb.PtrOf(q.MinSimilarity)
	}
	if len(q.ExcludeIDs) > 0 {
		ids := make([]*pb.PointId, len(q.ExcludeIDs))
		for i, id := range q.ExcludeIDs {
			ids[i] = pb.NewIDUUID(id)
		}
		req.Filter = &pb.Filter{MustNot: []*pb.Condition{pb.NewHasID(ids...)}}
	}
	return req, nil
}

// toMatches converts scored points, re-applying the threshold in case the server ignored it.
func toMatches(points []*pb.ScoredPoint, minSimilarity float32) []repository.VectorMatch {
	out := make([]repository.VectorMatch, 0, len(points))
	for _, p := range points {
		if p.GetScore() < minSimilarity {
			continue
		}
		out = append(out, repository.VectorMatch{ID: p.GetId().GetUuid(), Score: p.GetScore()})
	}
	return out
}

// Close closes the underlying Qdrant gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

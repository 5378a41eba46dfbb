package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/platewise/platewise-api/internal/domain/repository"
	pb "github.com/qdrant/go-client/qdrant"
)

type fakePoints struct {
	lastQuery  *pb.QueryPoints
	lastUpsert *pb.UpsertPoints
	lastDelete *pb.DeletePoints
	points     []*pb.ScoredPoint
	err        error
}

func (f *fakePoints) Upsert(_ context.Context, req *pb.UpsertPoints) (*pb.UpdateResult, error) {
	f.lastUpsert = req
	return &pb.UpdateResult{}, f.err
}

func (f *fakePoints) Delete(_ context.Context, req *pb.DeletePoints) (*pb.UpdateResult, error) {
	f.lastDelete = req
	return &pb.UpdateResult{}, f.err
}

func (f *fakePoints) Query(_ context.Context, req *pb.QueryPoints) ([]*pb.ScoredPoint, error) {
	f.lastQuery = req
	return f.points, f.err
}

func (f *fakePoints) Close() error { return nil }

const (
	idA = "6f1c2a5e-0b7a-4a7e-9d6c-1f7c3c1f0a01"
	idB = "6f1c2a5e-0b7a-4a7e-9d6c-1f7c3c1f0a02"
)

func TestSearchBuildsQueryAndFiltersThreshold(t *testing.T) {
	fake := &fakePoints{points: []*pb.ScoredPoint{
		{Id: pb.NewIDUUID(idA), Score: 0.91},
		{Id: pb.NewIDUUID(idB), Score: 0.42},
	}}
	c := &Client{client: fake, collection: "restaurants", dimension: 2}

	matches, err := c.Search(context.Background(), repository.VectorQuery{
		Vector:        []float32{0.1, 0.2},
		NumCandidates: 50,
		Limit:         5,
		MinSimilarity: 0.5,
		ExcludeIDs:    []string{idB},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != idA {
		t.Errorf("expected only %s above threshold, got %v", idA, matches)
	}
	if fake.lastQuery.GetLimit() != 5 || fake.lastQuery.GetParams().GetHnswEf() != 50 {
		t.Errorf("unexpected query params: limit=%d ef=%d", fake.lastQuery.GetLimit(), fake.lastQuery.GetParams().GetHnswEf())
	}
	if len(fake.lastQuery.GetFilter().GetMustNot()) != 1 {
		t.Error("expected exclude filter on source id")
	}
}

func TestSearchRejectsInvalidQueries(t *testing.T) {
	c := &Client{client: &fakePoints{}, collection: "restaurants", dimension: 2}

	tests := []struct {
		name string
		q    repository.VectorQuery
	}{
		{"candidates below limit", repository.VectorQuery{Vector: []float32{1, 0}, NumCandidates: 3, Limit: 5}},
		{"zero limit", repository.VectorQuery{Vector: []float32{1, 0}, NumCandidates: 3}},
		{"dimension mismatch", repository.VectorQuery{Vector: []float32{1, 0, 0}, NumCandidates: 10, Limit: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Search(context.Background(), tt.q); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestUpsertAndDelete(t *testing.T) {
	fake := &fakePoints{}
	c := &Client{client: fake, collection: "restaurants", dimension: 2}

	if err := c.Upsert(context.Background(), idA, []float32{0.3, 0.4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fake.lastUpsert.GetPoints()[0].GetId().GetUuid(); got != idA {
		t.Errorf("expected point id %s, got %s", idA, got)
	}
	if err := c.Upsert(context.Background(), idA, []float32{0.3}); err == nil {
		t.Error("expected dimension error")
	}

	if err := c.Delete(context.Background(), idA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.lastDelete.GetCollectionName() != "restaurants" {
		t.Errorf("unexpected delete collection %q", fake.lastDelete.GetCollectionName())
	}

	fake.err = errors.New("unavailable")
	if err := c.Delete(context.Background(), idA); err == nil {
		t.Error("expected error to propagate")
	}
}

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/mocks"
	"github.com/platewise/platewise-api/internal/usecase/resolve"
)

type recordingResolver struct {
	mu       sync.Mutex
	known    map[string]string
	calledAt []time.Time
	inFlight int
	maxSeen  int
}

func (r *recordingResolver) ResolveByNameAndLocation(_ context.Context, name, _ string) (*models.Restaurant, error) {
	r.mu.Lock()
	r.calledAt = append(r.calledAt, time.Now())
	r.inFlight++
	if r.inFlight > r.maxSeen {
		r.maxSeen = r.inFlight
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if name == "flaky" {
		return nil, errors.New("429 too many requests")
	}
	id, ok := r.known[name]
	if !ok {
		return nil, resolve.ErrUnresolved
	}
	return &models.Restaurant{ID: id}, nil
}

func seededStore() *mocks.MemoryStore {
	return mocks.NewMemoryStore(
		&models.Restaurant{ID: "lupa", AnchorID: "place-lupa"},
		&models.Restaurant{ID: "dame", AnchorID: "place-dame"},
	)
}

func TestConnectSetsLinksSequentially(t *testing.T) {
	store := seededStore()
	resolver := &recordingResolver{known: map[string]string{"Lupa": "lupa", "Dame": "dame"}}
	delay := 20 * time.Millisecond

	records := []Record{
		{Platform: "resy", ExternalID: "1", Name: "Lupa", BookingURL: "https://resy.example/lupa"},
		{Platform: "resy", ExternalID: "2", Name: "Nowhere", BookingURL: "https://resy.example/nowhere"},
		{Platform: "resy", ExternalID: "3", Name: "flaky", BookingURL: "https://resy.example/flaky"},
		{Platform: "resy", ExternalID: "4", Name: "Dame", BookingURL: "https://resy.example/dame"},
	}
	report, err := NewConnector(resolver, store, delay).Connect(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := (Report{Connected: 2, Unresolved: 1, Failed: 1}); report != want {
		t.Errorf("expected %+v, got %+v", want, report)
	}
	if resolver.maxSeen != 1 {
		t.Errorf("expected sequential calls, saw %d in flight", resolver.maxSeen)
	}
	for i := 1; i < len(resolver.calledAt); i++ {
		// Allow for timer granularity.
		if gap := resolver.calledAt[i].Sub(resolver.calledAt[i-1]); gap < delay-5*time.Millisecond {
			t.Errorf("call %d came %v after the previous one, want >= %v", i, gap, delay)
		}
	}

	got, err := store.FindByID(context.Background(), "dame")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Reservable || got.ReservationLink != "https://resy.example/dame" {
		t.Errorf("expected reservable with link, got %+v", got)
	}
}

func TestConnectStopsOnCancellation(t *testing.T) {
	resolver := &recordingResolver{known: map[string]string{"Lupa": "lupa"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewConnector(resolver, seededStore(), time.Second).Connect(ctx, []Record{{Name: "Lupa"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(resolver.calledAt) != 0 {
		t.Error("expected no resolver call after cancellation")
	}
}

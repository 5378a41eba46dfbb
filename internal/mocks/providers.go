package mocks

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
)

// Discovery is a scripted DiscoveryProvider.
type Discovery struct {
	Stubs      []repository.BusinessStub
	Businesses map[string]*repository.BusinessStub
	Err        error

	SearchCalls atomic.Int32
	GetCalls    atomic.Int32
}

var _ repository.DiscoveryProvider = (*Discovery)(nil)

func (d *Discovery) SearchBusinessesNear(context.Context, models.Coordinates, float64) ([]repository.BusinessStub, error) {
	d.SearchCalls.Add(1)
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]repository.BusinessStub(nil), d.Stubs...), nil
}

func (d *Discovery) GetBusiness(_ context.Context, externalID string) (*repository.BusinessStub, error) {
	d.GetCalls.Add(1)
	if d.Err != nil {
		return nil, d.Err
	}
	b, ok := d.Businesses[externalID]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (d *Discovery) Name() string { return "mock-discovery" }

// Anchor is a scripted AnchorProvider. PlaceIDs is keyed by lower-cased name.
type Anchor struct {
	mu        sync.Mutex
	PlaceIDs  map[string]string
	Addresses map[string]*models.Address
	Details   map[string]*repository.DetailStub
	// Fail makes every call for the listed anchor ids return an error.
	Fail map[string]error

	ResolveCalls atomic.Int32
	AddressCalls atomic.Int32
	DetailCalls  atomic.Int32
}

var _ repository.AnchorProvider = (*Anchor)(nil)

func (a *Anchor) ResolvePlaceID(_ context.Context, name, _ string) (string, error) {
	a.ResolveCalls.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.PlaceIDs[strings.ToLower(name)], nil
}

func (a *Anchor) GetAddressComponents(_ context.Context, anchorID string) (*models.Address, error) {
	a.AddressCalls.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Fail[anchorID]; err != nil {
		return nil, err
	}
	addr, ok := a.Addresses[anchorID]
	if !ok {
		return nil, nil
	}
	c := *addr
	return &c, nil
}

func (a *Anchor) GetPlaceDetails(_ context.Context, anchorID string) (*repository.DetailStub, error) {
	a.DetailCalls.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Fail[anchorID]; err != nil {
		return nil, err
	}
	d, ok := a.Details[anchorID]
	if !ok {
		return nil, nil
	}
	c := *d
	return &c, nil
}

func (a *Anchor) Name() string { return "mock-anchor" }

// SetDetail changes the scripted detail payload between calls.
func (a *Anchor) SetDetail(anchorID string, d *repository.DetailStub) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Details[anchorID] = d
}

// TotalCalls counts every outbound call to either provider.
func TotalCalls(d *Discovery, a *Anchor) int {
	return int(d.SearchCalls.Load() + d.GetCalls.Load() + a.ResolveCalls.Load() + a.AddressCalls.Load() + a.DetailCalls.Load())
}

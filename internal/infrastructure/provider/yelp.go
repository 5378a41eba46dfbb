package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
)

const (
	defaultYelpBaseURL = "https://api.yelp.com"
	yelpMaxRadius      = 40000
	yelpPageLimit      = 50
)

// YelpClient is the discovery provider adapter over the Yelp Fusion business endpoints.
type YelpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ repository.DiscoveryProvider = (*YelpClient)(nil)

func NewYelpClient(baseURL, apiKey string, client *http.Client) *YelpClient {
	if baseURL == "" {
		baseURL = defaultYelpBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &YelpClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

type yelpCategory struct {
	Alias string `json:"alias"`
	Title string `json:"title"`
}

type yelpBusiness struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ImageURL    string         `json:"image_url"`
	Rating      float64        `json:"rating"`
	Price       string         `json:"price"`
	Categories  []yelpCategory `json:"categories"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Location struct {
		Address1       string   `json:"address1"`
		City           string   `json:"city"`
		DisplayAddress []string `json:"display_address"`
	} `json:"location"`
}

type yelpSearchResponse struct {
	Businesses []yelpBusiness `json:"businesses"`
	Total      int            `json:"total"`
}

func (c *YelpClient) SearchBusinessesNear(ctx context.Context, point models.Coordinates, radiusMeters float64) ([]repository.BusinessStub, error) {
	radius := int(radiusMeters)
	if radius <= 0 || radius > yelpMaxRadius {
		radius = yelpMaxRadius
	}
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(point.Lat, 'f', 6, 64))
	q.Set("longitude", strconv.FormatFloat(point.Lng, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(radius))
	q.Set("categories", "restaurants")
	q.Set("limit", strconv.Itoa(yelpPageLimit))

	var resp yelpSearchResponse
	found, err := c.get(ctx, "/v3/businesses/search?"+q.Encode(), &resp)
	if err != nil || !found {
		return nil, err
	}

	stubs := make([]repository.BusinessStub, 0, len(resp.Businesses))
	for _, b := range resp.Businesses {
		stubs = append(stubs, b.toStub())
	}
	log.Printf("[Yelp] %d businesses near (%.5f, %.5f) r=%dm", len(stubs), point.Lat, point.Lng, radius)
	return stubs, nil
}

func (c *YelpClient) GetBusiness(ctx context.Context, externalID string) (*repository.BusinessStub, error) {
	var b yelpBusiness
	found, err := c.get(ctx, "/v3/businesses/"+url.PathEscape(externalID), &b)
	if err != nil || !found {
		return nil, err
	}
	stub := b.toStub()
	return &stub, nil
}

func (c *YelpClient) Name() string { return "yelp" }

// get decodes a JSON response. A 404 is reported as found=false without error.
func (c *YelpClient) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create yelp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("yelp request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("yelp returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode yelp response: %w", err)
	}
	return true, nil
}

func (b yelpBusiness) toStub() repository.BusinessStub {
	cats := make([]repository.Category, 0, len(b.Categories))
	for _, c := range b.Categories {
		cats = append(cats, repository.Category{Alias: c.Alias, Title: c.Title})
	}
	address := strings.Join(b.Location.DisplayAddress, ", ")
	if address == "" {
		address = b.Location.Address1
	}
	return repository.BusinessStub{
		ExternalID:   b.ID,
		Name:         b.Name,
		Address:      address,
		City:         b.Location.City,
		Coordinates:  models.Coordinates{Lat: b.Coordinates.Latitude, Lng: b.Coordinates.Longitude},
		Rating:       b.Rating,
		Price:        parseDollarPrice(b.Price),
		HeroImageURL: b.ImageURL,
		Categories:   cats,
	}
}

// parseDollarPrice maps "$".."$$$$" to a price level; anything else is unknown.
func parseDollarPrice(p string) models.PriceLevel {
	n := strings.Count(p, "$")
	if n == 0 || n != len(p) || n > int(models.PriceVeryExpensive) {
		return models.PriceUnknown
	}
	return models.PriceLevel(n)
}

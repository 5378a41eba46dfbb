package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
)

const (
	defaultPlacesBaseURL = "https://maps.googleapis.com"
	placesPhotoMaxWidth  = 1600
)

// PlacesClient is the anchor provider adapter over the Google Places web service.
type PlacesClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ repository.AnchorProvider = (*PlacesClient)(nil)

func NewPlacesClient(baseURL, apiKey string, client *http.Client) *PlacesClient {
	if baseURL == "" {
		baseURL = defaultPlacesBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &PlacesClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

type placesStatus struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type findPlaceResponse struct {
	placesStatus
	Candidates []struct {
		PlaceID string `json:"place_id"`
	} `json:"candidates"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type placeResult struct {
	Name              string             `json:"name"`
	Rating            float64            `json:"rating"`
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []addressComponent `json:"address_components"`
	Geometry          struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	OpeningHours *struct {
		WeekdayText []string `json:"weekday_text"`
	} `json:"opening_hours"`
	ServesBeer               bool   `json:"serves_beer"`
	ServesWine               bool   `json:"serves_wine"`
	Reservable               bool   `json:"reservable"`
	Website                  string `json:"website"`
	InternationalPhoneNumber string `json:"international_phone_number"`
	Photos                   []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
	PriceLevel       *int `json:"price_level"`
	EditorialSummary *struct {
		Overview string `json:"overview"`
	} `json:"editorial_summary"`
	UTCOffset *int `json:"utc_offset"`
}

type detailsResponse struct {
	placesStatus
	Result *placeResult `json:"result"`
}

func (c *PlacesClient) ResolvePlaceID(ctx context.Context, name, locationText string) (string, error) {
	input := strings.TrimSpace(strings.TrimSpace(name) + " " + strings.TrimSpace(locationText))
	if input == "" {
		return "", nil
	}
	q := url.Values{}
	q.Set("input", input)
	q.Set("inputtype", "textquery")
	q.Set("fields", "place_id")

	var resp findPlaceResponse
	if err := c.get(ctx, "/maps/api/place/findplacefromtext/json", q, &resp); err != nil {
		return "", err
	}
	if miss, err := resp.check(); miss || err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	return resp.Candidates[0].PlaceID, nil
}

func (c *PlacesClient) GetAddressComponents(ctx context.Context, anchorID string) (*models.Address, error) {
	res, err := c.details(ctx, anchorID, "address_components,formatted_address")
	if err != nil || res == nil {
		return nil, err
	}
	addr := addressFromComponents(res.AddressComponents)
	addr.Formatted = res.FormattedAddress
	return &addr, nil
}

func (c *PlacesClient) GetPlaceDetails(ctx context.Context, anchorID string) (*repository.DetailStub, error) {
	res, err := c.details(ctx, anchorID, strings.Join([]string{
		"name", "rating", "geometry/location", "opening_hours/weekday_text", "serves_beer", "serves_wine",
		"reservable", "website", "international_phone_number", "photos", "price_level",
		"editorial_summary", "utc_offset",
	}, ","))
	if err != nil || res == nil {
		return nil, err
	}

	stub := &repository.DetailStub{
		Name:             res.Name,
		Rating:           res.Rating,
		Coordinates:      models.Coordinates{Lat: res.Geometry.Location.Lat, Lng: res.Geometry.Location.Lng},
		ServesAlcohol:    res.ServesBeer || res.ServesWine,
		Reservable:       res.Reservable,
		Website:          res.Website,
		PhoneNumber:      res.InternationalPhoneNumber,
		UTCOffsetMinutes: res.UTCOffset,
	}
	if res.OpeningHours != nil {
		stub.Hours = parseWeekdayText(res.OpeningHours.WeekdayText)
	}
	if res.PriceLevel != nil {
		// Places uses 0 for free; treat it as unknown like a missing value.
		stub.PriceLevel = models.PriceLevel(*res.PriceLevel)
	}
	if res.EditorialSummary != nil {
		stub.EditorialSummary = res.EditorialSummary.Overview
	}
	for _, p := range res.Photos {
		if p.PhotoReference != "" {
			stub.PhotoURLs = append(stub.PhotoURLs, c.photoURL(p.PhotoReference))
		}
	}
	return stub, nil
}

func (c *PlacesClient) Name() string { return "google_places" }

// photoURL omits the API key; it is appended by whatever proxies the image.
func (c *PlacesClient) photoURL(ref string) string {
	q := url.Values{}
	q.Set("maxwidth", fmt.Sprint(placesPhotoMaxWidth))
	q.Set("photo_reference", ref)
	return c.baseURL + "/maps/api/place/photo?" + q.Encode()
}

func (c *PlacesClient) details(ctx context.Context, anchorID, fields string) (*placeResult, error) {
	q := url.Values{}
	q.Set("place_id", anchorID)
	q.Set("fields", fields)

	var resp detailsResponse
	if err := c.get(ctx, "/maps/api/place/details/json", q, &resp); err != nil {
		return nil, err
	}
	if miss, err := resp.check(); miss || err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *PlacesClient) get(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create places request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("places request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("places returned http status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode places response: %w", err)
	}
	return nil
}

// check maps the Places status field: misses are (true, nil), failures are errors.
func (s placesStatus) check() (bool, error) {
	switch s.Status {
	case "OK", "":
		return false, nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return true, nil
	}
	return true, fmt.Errorf("places status %s: %s", s.Status, s.ErrorMessage)
}

func addressFromComponents(components []addressComponent) models.Address {
	var addr models.Address
	var number, route, postalTown string
	for _, c := range components {
		for _, t := range c.Types {
			switch t {
			case "street_number":
				number = c.LongName
			case "route":
				route = c.LongName
			case "locality":
				addr.City = c.LongName
			case "postal_town":
				postalTown = c.LongName
			case "administrative_area_level_1":
				addr.State = c.ShortName
			case "country":
				addr.CountryCode = c.ShortName
			case "postal_code":
				addr.PostalCode = c.LongName
			}
		}
	}
	if addr.City == "" {
		addr.City = postalTown
	}
	addr.Street = strings.TrimSpace(number + " " + route)
	return addr
}

// parseWeekdayText turns "Monday: 9:00 AM – 5:00 PM" lines into a weekday map.
func parseWeekdayText(lines []string) map[string]string {
	if len(lines) == 0 {
		return nil
	}
	out := make(map[string]string, len(lines))
	for _, line := range lines {
		day, interval, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(day))] = strings.TrimSpace(interval)
	}
	return out
}

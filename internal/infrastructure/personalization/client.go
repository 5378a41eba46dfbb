// Package personalization adapts the external personalization service to the
// search pipeline's scoring and lookup ports.
package personalization

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
)

const defaultTimeout = 5 * time.Second

// Client calls the personalization service over JSON/HTTP.
//
//	GET /v1/match?user_id=&lat=&lng=&restaurant_id=   {"score": number|null}
//	GET /v1/restaurants/{id}/quality                  {"score": number}
//	GET /v1/restaurants/{id}/rating                   {"average": number|null}
//	GET /v1/users/{user}/saved/{id}                   {"saved": bool}
//
// A 404 means "no data" on every endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

var (
	_ repository.Personalizer = (*Client)(nil)
	_ repository.SavedLookup  = (*Client)(nil)
	_ repository.RatingLookup = (*Client)(nil)
)

func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type scoreResponse struct {
	Score *float64 `json:"score"`
}

func (c *Client) MatchScore(ctx context.Context, who repository.Requester, r *models.Restaurant) (*float64, error) {
	if who.UserID == "" || who.Location == nil {
		return nil, nil
	}
	q := url.Values{}
	q.Set("user_id", who.UserID)
	q.Set("lat", strconv.FormatFloat(who.Location.Lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(who.Location.Lng, 'f', 6, 64))
	q.Set("restaurant_id", r.ID)

	var resp scoreResponse
	if _, err := c.get(ctx, "/v1/match?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Score, nil
}

func (c *Client) QualityScore(ctx context.Context, r *models.Restaurant) (float64, error) {
	var resp scoreResponse
	if _, err := c.get(ctx, "/v1/restaurants/"+url.PathEscape(r.ID)+"/quality", &resp); err != nil {
		return 0, err
	}
	if resp.Score == nil {
		return 0, nil
	}
	return *resp.Score, nil
}

func (c *Client) AverageRating(ctx context.Context, restaurantID string) (*float64, error) {
	var resp struct {
		Average *float64 `json:"average"`
	}
	if _, err := c.get(ctx, "/v1/restaurants/"+url.PathEscape(restaurantID)+"/rating", &resp); err != nil {
		return nil, err
	}
	return resp.Average, nil
}

func (c *Client) IsSaved(ctx context.Context, userID, restaurantID string) (bool, error) {
	var resp struct {
		Saved bool `json:"saved"`
	}
	found, err := c.get(ctx, "/v1/users/"+url.PathEscape(userID)+"/saved/"+url.PathEscape(restaurantID), &resp)
	if err != nil || !found {
		return false, err
	}
	return resp.Saved, nil
}

// get decodes a JSON response. A 404 is reported as found=false without error.
func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create personalization request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("personalization request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("personalization service returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode personalization response: %w", err)
	}
	return true, nil
}

// LinkAvailability reports a restaurant as bookable when it carries a reservation link.
type LinkAvailability struct{}

var _ repository.ReservationLookup = LinkAvailability{}

func (LinkAvailability) HasAvailability(_ context.Context, r *models.Restaurant) (bool, error) {
	return r.Reservable && r.ReservationLink != "", nil
}

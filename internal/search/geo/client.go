// Package geo finds nearby rescue resources through the Amap place API.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/engine"
)

// resourceKeywords maps a resource type onto the place keywords searched
// for it. Unknown types are rejected.
var resourceKeywords = map[string][]string{
	"hospital":  {"pet hospital", "animal hospital"},
	"shelter":   {"animal shelter", "stray animal rescue"},
	"volunteer": {"animal protection association", "stray animal rescue"},
	"gov":       {"animal control", "agriculture bureau"},
}

// latLonPattern matches a bare "lat,lon" coordinate pair.
var latLonPattern = regexp.MustCompile(`^-?\d{1,2}\.\d+,-?\d{1,3}\.\d+$`)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(apiKey, baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = "https://restapi.amap.com/v3"
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Search geocodes the location when needed and returns up to maxResults
// nearby resources sorted by distance. An empty location yields an empty
// result rather than an error so callers degrade instead of aborting.
func (c *Client) Search(ctx context.Context, location, resourceType string, radiusKM, maxResults int) ([]engine.PlaceRecord, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, nil
	}

	keywords, ok := resourceKeywords[resourceType]
	if !ok {
		return nil, fmt.Errorf("unsupported resource type: %s", resourceType)
	}

	coords, err := c.resolveCoordinates(ctx, location)
	if err != nil {
		return nil, err
	}
	if coords == "" {
		c.log.Warn("Address could not be geocoded", zap.String("location", location))
		return nil, nil
	}

	pois, err := c.searchAround(ctx, coords, strings.Join(keywords, "|"), radiusKM*1000)
	if err != nil {
		return nil, err
	}

	records := normalizePOIs(pois, maxResults, resourceType)

	c.log.Info("Map search completed",
		zap.String("resource_type", resourceType),
		zap.Int("radius_km", radiusKM),
		zap.Int("results", len(records)),
	)

	return records, nil
}

// resolveCoordinates accepts either a bare "lat,lon" pair or a free-text
// address. Coordinates are flipped to the API's "lon,lat" order.
func (c *Client) resolveCoordinates(ctx context.Context, location string) (string, error) {
	if latLonPattern.MatchString(location) {
		parts := strings.SplitN(location, ",", 2)
		return parts[1] + "," + parts[0], nil
	}
	return c.geocode(ctx, location)
}

func (c *Client) geocode(ctx context.Context, address string) (string, error) {
	params := url.Values{}
	params.Add("key", c.apiKey)
	params.Add("address", address)

	body, err := c.get(ctx, "/geocode/geo", params)
	if err != nil {
		return "", err
	}

	var resp struct {
		Geocodes []struct {
			Location string `json:"location"`
		} `json:"geocodes"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse geocode response: %w", err)
	}
	if len(resp.Geocodes) == 0 {
		return "", nil
	}

	return resp.Geocodes[0].Location, nil
}

type poi struct {
	Name     string      `json:"name"`
	Address  string      `json:"address"`
	Location string      `json:"location"`
	Distance string      `json:"distance"`
	Tel      interface{} `json:"tel"`
}

func (c *Client) searchAround(ctx context.Context, location, keywords string, radiusM int) ([]poi, error) {
	params := url.Values{}
	params.Add("key", c.apiKey)
	params.Add("location", location)
	params.Add("keywords", keywords)
	params.Add("radius", strconv.Itoa(radiusM))
	params.Add("sortrule", "distance")
	params.Add("offset", "10")
	params.Add("extensions", "all")

	body, err := c.get(ctx, "/place/around", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		POIs []poi `json:"pois"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse place response: %w", err)
	}

	return resp.POIs, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call map API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("map API returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func normalizePOIs(pois []poi, maxResults int, category string) []engine.PlaceRecord {
	if maxResults > 0 && len(pois) > maxResults {
		pois = pois[:maxResults]
	}

	records := make([]engine.PlaceRecord, 0, len(pois))
	for _, p := range pois {
		distance, _ := strconv.Atoi(p.Distance)
		records = append(records, engine.PlaceRecord{
			Name:      p.Name,
			Address:   p.Address,
			Location:  p.Location,
			DistanceM: distance,
			Category:  category,
			Tel:       telString(p.Tel),
		})
	}

	return records
}

// telString tolerates the API returning tel as a string or an empty array.
func telString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

/*
client.go - Metadata Provider REST Client

Fetches candidate films from the external catalog provider and applies the
hard admission filters before returning a candidate. Every call is routed
through the durable rate limiter first; a provider 429 surfaces as
ErrProviderLimited and is never retried with a delay inside the same run.
*/

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/metrics"
	"github.com/tomtom215/vitascope/internal/models"
	"github.com/tomtom215/vitascope/internal/ratelimit"
)

// Sentinel errors for provider outcomes.
var (
	// ErrProviderLimited means the provider returned a rate-limit response.
	// Retryable on a later run; never delayed within this one.
	ErrProviderLimited = errors.New("catalog provider rate limited")

	// ErrFilmNotFound means the provider has no film for the ID.
	ErrFilmNotFound = errors.New("film not found in catalog provider")
)

// Provider is the catalog surface the pipeline consumes. Both Client and
// CircuitBreakerClient implement it.
type Provider interface {
	// FetchFilm returns an admissible candidate, or (nil, nil) when the
	// provider knows the film but the admission filters reject it.
	FetchFilm(ctx context.Context, externalID int64) (*models.Film, error)

	// DiscoverFilms returns candidate external IDs for queue refill.
	DiscoverFilms(ctx context.Context, page int) ([]int64, error)
}

// Ensure Client implements Provider.
var _ Provider = (*Client)(nil)

// Client talks to the metadata provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	admission  Admission
}

// NewClient creates a catalog provider client. All requests consume budget
// from the durable rate limiter before touching the network.
func NewClient(cfg *config.CatalogConfig, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:   limiter,
		admission: Admission{MinAgeYears: cfg.MinAgeYears},
	}
}

// providerFilm is the provider's movie detail payload.
type providerFilm struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int64   `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	Adult            bool    `json:"adult"`
	Video            bool    `json:"video"`
	Runtime          int     `json:"runtime"`
	Overview         string  `json:"overview"`
	OriginalLanguage string  `json:"original_language"`
	Genres           []struct {
		Name string `json:"name"`
	} `json:"genres"`
	ProductionCountries []struct {
		Name string `json:"name"`
	} `json:"production_countries"`
	Keywords struct {
		Keywords []struct {
			Name string `json:"name"`
		} `json:"keywords"`
	} `json:"keywords"`
	BelongsToCollection *struct {
		Name string `json:"name"`
	} `json:"belongs_to_collection"`
}

// discoverResponse is the provider's discovery page payload.
type discoverResponse struct {
	Results []struct {
		ID int64 `json:"id"`
	} `json:"results"`
}

// FetchFilm fetches one candidate by external ID and applies the hard
// admission filters. A filtered-out candidate returns (nil, nil): no
// partial record is created for it anywhere.
func (c *Client) FetchFilm(ctx context.Context, externalID int64) (*models.Film, error) {
	raw, err := c.getFilm(ctx, externalID)
	if err != nil {
		return nil, err
	}

	// Adult and video-only content is dropped unconditionally.
	if raw.Adult || raw.Video {
		logging.Ctx(ctx).Debug().Int64("external_id", externalID).Msg("candidate rejected: adult or video-only")
		return nil, nil
	}

	film := convertFilm(raw)
	if reason := c.admission.Check(film); reason != "" {
		logging.Ctx(ctx).Debug().
			Int64("external_id", externalID).
			Str("reason", reason).
			Msg("candidate rejected by admission filters")
		return nil, nil
	}

	return film, nil
}

// DiscoverFilms pulls one page of high-vote candidates for queue refill.
func (c *Client) DiscoverFilms(ctx context.Context, page int) ([]int64, error) {
	if err := c.limiter.Allow(ctx, ratelimit.ServiceCatalog); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/discover/movie?sort_by=vote_count.desc&page=%d", c.baseURL, page)
	start := time.Now()
	resp, err := c.doRequest(ctx, endpoint)
	if err != nil {
		metrics.ObserveProviderRequest(ratelimit.ServiceCatalog, "error", start)
		return nil, fmt.Errorf("catalog discover request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		metrics.ObserveProviderRequest(ratelimit.ServiceCatalog, statusLabel(err), start)
		return nil, err
	}
	metrics.ObserveProviderRequest(ratelimit.ServiceCatalog, "ok", start)

	var page2 discoverResponse
	if err := json.NewDecoder(resp.Body).Decode(&page2); err != nil {
		return nil, fmt.Errorf("failed to decode discover response: %w", err)
	}

	ids := make([]int64, 0, len(page2.Results))
	for _, r := range page2.Results {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// getFilm performs the rate-limited detail request.
func (c *Client) getFilm(ctx context.Context, externalID int64) (*providerFilm, error) {
	if err := c.limiter.Allow(ctx, ratelimit.ServiceCatalog); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/movie/" + strconv.FormatInt(externalID, 10) +
		"?append_to_response=keywords"

	start := time.Now()
	resp, err := c.doRequest(ctx, endpoint)
	if err != nil {
		metrics.ObserveProviderRequest(ratelimit.ServiceCatalog, "error", start)
		return nil, fmt.Errorf("catalog film request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		metrics.ObserveProviderRequest(ratelimit.ServiceCatalog, statusLabel(err), start)
		return nil, err
	}
	metrics.ObserveProviderRequest(ratelimit.ServiceCatalog, "ok", start)

	var raw providerFilm
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode film response: %w", err)
	}
	return &raw, nil
}

// doRequest issues an authenticated GET.
func (c *Client) doRequest(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.httpClient.Do(req)
}

// checkStatus maps provider status codes to the error taxonomy.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrProviderLimited
	case resp.StatusCode == http.StatusNotFound:
		return ErrFilmNotFound
	default:
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, 512))
		if rerr != nil {
			return fmt.Errorf("catalog provider returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("catalog provider returned status %d: %s", resp.StatusCode, string(body))
	}
}

// statusLabel maps an error to the metrics status label.
func statusLabel(err error) string {
	if errors.Is(err, ErrProviderLimited) {
		return "rate_limited"
	}
	return "error"
}

// convertFilm maps the provider payload to the domain model.
func convertFilm(raw *providerFilm) *models.Film {
	f := &models.Film{
		ExternalID:       raw.ID,
		Title:            raw.Title,
		VoteAverage:      raw.VoteAverage,
		VoteCount:        raw.VoteCount,
		Popularity:       raw.Popularity,
		Runtime:          raw.Runtime,
		Overview:         raw.Overview,
		OriginalLanguage: raw.OriginalLanguage,
		InClassicSet:     raw.BelongsToCollection != nil,
		ProcessingStatus: models.StatusPending,
	}

	if t, err := time.Parse("2006-01-02", raw.ReleaseDate); err == nil {
		f.ReleaseDate = t
		f.Year = t.Year()
	}

	for _, g := range raw.Genres {
		f.Genres = append(f.Genres, g.Name)
	}
	for _, cty := range raw.ProductionCountries {
		f.Countries = append(f.Countries, cty.Name)
	}
	for _, k := range raw.Keywords.Keywords {
		f.Keywords = append(f.Keywords, k.Name)
	}

	return f
}

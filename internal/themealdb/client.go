// Package themealdb is a small client for the public TheMealDB JSON API.
package themealdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL = "https://www.themealdb.com/api/json/v1/1"
	DefaultTimeout = 10 * time.Second

	// MaxIngredients is the number of indexed ingredient/measure slots in a meal payload.
	MaxIngredients = 20
)

// ErrUpstream marks any transport, status or decoding failure.
var ErrUpstream = errors.New("themealdb unavailable")

// Recorder receives one call per HTTP request. *telemetry.Metrics implements it.
type Recorder interface {
	UpstreamCall(endpoint string, err error)
}

// Meal is a raw meal payload. Ingredient and measure slots keep their index:
// Ingredients[0] is strIngredient1.
type Meal struct {
	ID           string
	Name         string
	Category     string
	Area         string
	Instructions string
	Thumbnail    string
	Tags         string
	YouTube      string
	Source       string
	DateModified string
	Ingredients  [MaxIngredients]string
	Measures     [MaxIngredients]string
}

func (m *Meal) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	field := func(key string) string {
		switch v := raw[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return ""
		}
	}

	m.ID = field("idMeal")
	m.Name = field("strMeal")
	m.Category = field("strCategory")
	m.Area = field("strArea")
	m.Instructions = field("strInstructions")
	m.Thumbnail = field("strMealThumb")
	m.Tags = field("strTags")
	m.YouTube = field("strYoutube")
	m.Source = field("strSource")
	m.DateModified = field("dateModified")
	for i := 0; i < MaxIngredients; i++ {
		m.Ingredients[i] = field(fmt.Sprintf("strIngredient%d", i+1))
		m.Measures[i] = field(fmt.Sprintf("strMeasure%d", i+1))
	}
	return nil
}

type Category struct {
	ID          string `json:"idCategory"`
	Name        string `json:"strCategory"`
	Thumbnail   string `json:"strCategoryThumb"`
	Description string `json:"strCategoryDescription"`
}

type Ingredient struct {
	ID          string  `json:"idIngredient"`
	Name        string  `json:"strIngredient"`
	Description *string `json:"strDescription"`
	Type        *string `json:"strType"`
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	recorder    Recorder
	concurrency int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithConcurrency bounds parallel requests issued by RandomN.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) (err error) {
	defer func() {
		if c.recorder != nil {
			c.recorder.UpstreamCall(endpoint, err)
		}
	}()

	u := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s: unexpected status code: %d", ErrUpstream, endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrUpstream, endpoint, err)
	}
	return nil
}

type mealsResponse struct {
	Meals []Meal `json:"meals"`
}

func (c *Client) meals(ctx context.Context, endpoint string, query url.Values) ([]Meal, error) {
	var resp mealsResponse
	if err := c.get(ctx, endpoint, query, &resp); err != nil {
		return nil, err
	}
	if resp.Meals == nil {
		return []Meal{}, nil
	}
	return resp.Meals, nil
}

// SearchByName calls search.php?s=.
func (c *Client) SearchByName(ctx context.Context, name string) ([]Meal, error) {
	return c.meals(ctx, "search.php", url.Values{"s": {name}})
}

// SearchByFirstLetter calls search.php?f=.
func (c *Client) SearchByFirstLetter(ctx context.Context, letter string) ([]Meal, error) {
	return c.meals(ctx, "search.php", url.Values{"f": {letter}})
}

// LookupByID returns the meal or (nil, nil) when the id is unknown.
func (c *Client) LookupByID(ctx context.Context, id string) (*Meal, error) {
	meals, err := c.meals(ctx, "lookup.php", url.Values{"i": {id}})
	if err != nil {
		return nil, err
	}
	if len(meals) == 0 {
		return nil, nil
	}
	return &meals[0], nil
}

func (c *Client) Random(ctx context.Context) (*Meal, error) {
	meals, err := c.meals(ctx, "random.php", nil)
	if err != nil {
		return nil, err
	}
	if len(meals) == 0 {
		return nil, fmt.Errorf("%w: random.php returned no meal", ErrUpstream)
	}
	return &meals[0], nil
}

// RandomN fetches n random meals in parallel and drops duplicates.
func (c *Client) RandomN(ctx context.Context, n int) ([]Meal, error) {
	if n <= 0 {
		return []Meal{}, nil
	}

	results := make([]*Meal, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			m, err := c.Random(gctx)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, n)
	out := make([]Meal, 0, n)
	for _, m := range results {
		if m == nil || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, *m)
	}
	return out, nil
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var resp struct {
		Categories []Category `json:"categories"`
	}
	if err := c.get(ctx, "categories.php", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Categories == nil {
		return []Category{}, nil
	}
	return resp.Categories, nil
}

// ListCategories calls list.php?c=list and returns the names only.
func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	var resp struct {
		Meals []struct {
			Name string `json:"strCategory"`
		} `json:"meals"`
	}
	if err := c.get(ctx, "list.php", url.Values{"c": {"list"}}, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Meals))
	for _, m := range resp.Meals {
		names = append(names, m.Name)
	}
	return names, nil
}

// ListAreas calls list.php?a=list.
func (c *Client) ListAreas(ctx context.Context) ([]string, error) {
	var resp struct {
		Meals []struct {
			Name string `json:"strArea"`
		} `json:"meals"`
	}
	if err := c.get(ctx, "list.php", url.Values{"a": {"list"}}, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Meals))
	for _, m := range resp.Meals {
		names = append(names, m.Name)
	}
	return names, nil
}

// ListIngredients calls list.php?i=list.
func (c *Client) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	var resp struct {
		Meals []Ingredient `json:"meals"`
	}
	if err := c.get(ctx, "list.php", url.Values{"i": {"list"}}, &resp); err != nil {
		return nil, err
	}
	if resp.Meals == nil {
		return []Ingredient{}, nil
	}
	return resp.Meals, nil
}

// FilterByIngredient returns partial meals (id, name, thumbnail).
func (c *Client) FilterByIngredient(ctx context.Context, ingredient string) ([]Meal, error) {
	return c.meals(ctx, "filter.php", url.Values{"i": {ingredient}})
}

func (c *Client) FilterByCategory(ctx context.Context, category string) ([]Meal, error) {
	return c.meals(ctx, "filter.php", url.Values{"c": {category}})
}

func (c *Client) FilterByArea(ctx context.Context, area string) ([]Meal, error) {
	return c.meals(ctx, "filter.php", url.Values{"a": {area}})
}

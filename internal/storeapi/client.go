// Package storeapi talks to the hosted relational backend over its REST interface.
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"seatmanager/internal/metrics"
	"seatmanager/internal/model"
	"seatmanager/internal/store"
)

const (
	tablesCacheKey = "seating:tables"
	// Bumped by every mutation; a load only fills the cache if it did not move.
	tablesGenKey = "seating:tables:gen"
)

var errStaleGeneration = errors.New("cache generation moved during load")

// Client implements store.Backend against a PostgREST style API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

var _ store.Backend = (*Client)(nil)

// NewClient constructs a client with the project base URL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching of the table collection.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

type seatRow struct {
	ID        string  `json:"id"`
	SeatNo    string  `json:"seat_no"`
	GuestName *string `json:"guest_name"`
	IsPresent *bool   `json:"is_present"`
}

type tableRow struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Seats []seatRow `json:"seats"`
}

func (r tableRow) toModel() model.Table {
	t := model.Table{ID: r.ID, Label: r.Label, Seats: make([]model.Seat, 0, len(r.Seats))}
	for _, s := range r.Seats {
		seat := model.Seat{ID: s.ID, SeatNo: s.SeatNo, GuestName: s.GuestName}
		if s.IsPresent != nil && s.GuestName != nil {
			seat.Present = *s.IsPresent
		}
		t.Seats = append(t.Seats, seat)
	}
	return t
}

// LoadAll fetches every table with nested seats ordered by label.
func (c *Client) LoadAll(ctx context.Context) ([]model.Table, error) {
	var tables []model.Table
	if c.readCache(ctx, tablesCacheKey, &tables) {
		return tables, nil
	}
	gen, genOK := c.generation(ctx)

	q := url.Values{}
	q.Set("select", "id,label,seats(id,seat_no,guest_name,is_present)")
	q.Set("order", "label.asc")
	q.Set("seats.order", "seat_no.asc")
	endpoint := fmt.Sprintf("%s/rest/v1/tables?%s", c.baseURL, q.Encode())

	var rows []tableRow
	err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &rows, nil)
	metrics.IncStoreRequest("load_tables", err)
	if err != nil {
		return nil, store.Wrap("load tables", "", err)
	}

	tables = make([]model.Table, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, r.toModel())
	}
	if genOK {
		c.writeTablesCache(ctx, gen, tables)
	}
	return tables, nil
}

type seatPatch struct {
	GuestName *string `json:"guest_name"`
	IsPresent bool    `json:"is_present"`
}

// SetGuestName writes a guest and resets presence to absent.
func (c *Client) SetGuestName(ctx context.Context, seatID, name string) error {
	body := seatPatch{GuestName: &name, IsPresent: false}
	return c.patchSeat(ctx, "set guest name", seatID, body)
}

// ClearGuest nulls the guest and presence in a single PATCH.
func (c *Client) ClearGuest(ctx context.Context, seatID string) error {
	return c.patchSeat(ctx, "clear guest", seatID, seatPatch{})
}

func (c *Client) SetPresence(ctx context.Context, seatID string, present bool) error {
	body := map[string]bool{"is_present": present}
	return c.patchSeat(ctx, "set presence", seatID, body)
}

func (c *Client) patchSeat(ctx context.Context, op, seatID string, body any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/seats?id=eq.%s", c.baseURL, url.QueryEscape(seatID))
	var updated []seatRow
	headers := map[string]string{"Prefer": "return=representation"}
	err := c.doJSON(ctx, http.MethodPatch, endpoint, body, &updated, headers)
	if err == nil && len(updated) == 0 {
		err = store.ErrSeatNotFound
	}
	metrics.IncStoreRequest(op, err)
	if err != nil {
		return store.Wrap(op, seatID, err)
	}
	c.invalidateTables(ctx)
	return nil
}

// CountSessions reads the exact row count of the sessions table.
func (c *Client) CountSessions(ctx context.Context) (int, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/sessions?select=*", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, http.NoBody)
	if err != nil {
		return 0, store.Wrap("count sessions", "", err)
	}
	c.addHeaders(req)
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.httpClient.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			err = fmt.Errorf("http %d", resp.StatusCode)
		}
	}
	metrics.IncStoreRequest("count_sessions", err)
	if err != nil {
		return 0, store.Wrap("count sessions", "", err)
	}

	n, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, store.Wrap("count sessions", "", err)
	}
	return n, nil
}

// parseContentRange extracts the total from values like "0-19/20" or "*/0".
func parseContentRange(v string) (int, error) {
	i := strings.LastIndex(v, "/")
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("invalid content-range %q", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("content-range without total %q", v)
	}
	return strconv.Atoi(total)
}

func (c *Client) InsertSession(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("%s/rest/v1/sessions", c.baseURL)
	body := []map[string]string{{"session_id": sessionID}}
	err := c.doJSON(ctx, http.MethodPost, endpoint, body, nil, map[string]string{"Prefer": "return=minimal"})
	metrics.IncStoreRequest("insert_session", err)
	return store.Wrap("insert session", "", err)
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("%s/rest/v1/sessions?session_id=eq.%s", c.baseURL, url.QueryEscape(sessionID))
	err := c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil, nil)
	metrics.IncStoreRequest("delete_session", err)
	return store.Wrap("delete session", "", err)
}

// Ping checks that the REST endpoint answers for the tables resource.
func (c *Client) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/rest/v1/tables?select=id&limit=1", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		metrics.IncCache(false)
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCache(false)
		return false
	}
	metrics.IncCache(true)
	return true
}

// generation reads the current cache generation; ok is false when the cache is off
// or unreachable.
func (c *Client) generation(ctx context.Context) (int64, bool) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, tablesGenKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, false
	}
	return gen, true
}

// writeTablesCache stores tables unless a mutation bumped the generation since gen
// was read.
func (c *Client) writeTablesCache(ctx context.Context, gen int64, tables []model.Table) {
	data, err := json.Marshal(tables)
	if err != nil {
		return
	}
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, tablesGenKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tablesCacheKey, data, c.cacheTTL)
			return nil
		})
		return err
	}, tablesGenKey)
}

func (c *Client) invalidateTables(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, tablesGenKey)
		pipe.Del(ctx, tablesCacheKey)
		return nil
	})
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any, headers map[string]string) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if payload != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, payload)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	}
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

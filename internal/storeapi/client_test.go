package storeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatmanager/internal/model"
	"seatmanager/internal/store"
)

// fakeBackend mimics the subset of the REST API used by Client.
type fakeBackend struct {
	mu       sync.Mutex
	tables   []tableRow
	sessions []string
	loads    int
	fail     bool
	lastKey  string

	// afterRead runs once, after a table load has read the rows and before it answers.
	afterRead func()
}

func newFakeBackend() *fakeBackend {
	present := true
	return &fakeBackend{
		tables: []tableRow{
			{ID: "t1", Label: "Table 1", Seats: []seatRow{
				{ID: "s1", SeatNo: "1", GuestName: strPtr("Alice"), IsPresent: &present},
				{ID: "s2", SeatNo: "2"},
			}},
			{ID: "t2", Label: "Table 2", Seats: []seatRow{
				{ID: "s3", SeatNo: "1"},
			}},
		},
	}
}

func strPtr(s string) *string { return &s }

func (f *fakeBackend) seat(id string) *seatRow {
	for i := range f.tables {
		for j := range f.tables[i].Seats {
			if f.tables[i].Seats[j].ID == id {
				return &f.tables[i].Seats[j]
			}
		}
	}
	return nil
}

func (f *fakeBackend) serveTables(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.lastKey = r.Header.Get("apikey")
	if f.fail {
		f.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	f.loads++
	data, _ := json.Marshal(f.tables)
	hook := f.afterRead
	f.afterRead = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	_, _ = w.Write(data)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/rest/v1/tables" && r.Method == http.MethodGet {
		f.serveTables(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKey = r.Header.Get("apikey")

	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch {
	case r.URL.Path == "/rest/v1/seats" && r.Method == http.MethodPatch:
		id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
		var patch map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&patch)
		s := f.seat(id)
		if s == nil {
			_ = json.NewEncoder(w).Encode([]seatRow{})
			return
		}
		if raw, ok := patch["guest_name"]; ok {
			var name *string
			_ = json.Unmarshal(raw, &name)
			s.GuestName = name
		}
		if raw, ok := patch["is_present"]; ok {
			var p bool
			_ = json.Unmarshal(raw, &p)
			s.IsPresent = &p
		}
		_ = json.NewEncoder(w).Encode([]seatRow{*s})
	case r.URL.Path == "/rest/v1/sessions" && r.Method == http.MethodHead:
		w.Header().Set("Content-Range", "*/"+strconv.Itoa(len(f.sessions)))
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/rest/v1/sessions" && r.Method == http.MethodPost:
		var rows []map[string]string
		_ = json.NewDecoder(r.Body).Decode(&rows)
		for _, row := range rows {
			f.sessions = append(f.sessions, row["session_id"])
		}
		w.WriteHeader(http.StatusCreated)
	case r.URL.Path == "/rest/v1/sessions" && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(r.URL.Query().Get("session_id"), "eq.")
		kept := f.sessions[:0]
		for _, s := range f.sessions {
			if s != id {
				kept = append(kept, s)
			}
		}
		f.sessions = kept
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "anon-key"), backend
}

func TestClient_LoadAll(t *testing.T) {
	client, backend := newTestClient(t)

	tables, err := client.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "Table 1", tables[0].Label)
	assert.Equal(t, "Alice", tables[0].Seats[0].Guest())
	assert.True(t, tables[0].Seats[0].Present)
	assert.False(t, tables[0].Seats[1].Assigned())
	assert.Equal(t, "anon-key", backend.lastKey)
}

func TestClient_SetGuestNameResetsPresence(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetGuestName(ctx, "s1", "Alicia"))

	tables, err := client.LoadAll(ctx)
	require.NoError(t, err)
	seat := tables[0].Seats[0]
	assert.Equal(t, "Alicia", seat.Guest())
	assert.False(t, seat.Present)
}

func TestClient_ClearGuestIsIdempotent(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.ClearGuest(ctx, "s1"))
	require.NoError(t, client.ClearGuest(ctx, "s1"))

	tables, err := client.LoadAll(ctx)
	require.NoError(t, err)
	seat := tables[0].Seats[0]
	assert.Nil(t, seat.GuestName)
	assert.False(t, seat.Present)
	assert.Equal(t, 0, model.Occupancy(tables[0]))
}

func TestClient_SetPresenceKeepsGuest(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetPresence(ctx, "s1", false))

	tables, err := client.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", tables[0].Seats[0].Guest())
	assert.False(t, tables[0].Seats[0].Present)
}

func TestClient_UnknownSeat(t *testing.T) {
	client, _ := newTestClient(t)

	err := client.SetPresence(context.Background(), "missing", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrSeatNotFound)

	var fe *store.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "missing", fe.SeatID)
}

func TestClient_BackendFailure(t *testing.T) {
	client, backend := newTestClient(t)
	backend.mu.Lock()
	backend.fail = true
	backend.mu.Unlock()

	_, err := client.LoadAll(context.Background())
	var fe *store.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "load tables", fe.Op)
	assert.Contains(t, err.Error(), "http 500")
}

func TestClient_Sessions(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	n, err := client.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, client.InsertSession(ctx, "a"))
	require.NoError(t, client.InsertSession(ctx, "b"))
	n, err = client.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, client.DeleteSession(ctx, "a"))
	n, err = client.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClient_RedisCache(t *testing.T) {
	client, backend := newTestClient(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client.UseRedisCache(rdb, time.Minute)
	ctx := context.Background()

	_, err := client.LoadAll(ctx)
	require.NoError(t, err)
	_, err = client.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.loads)
	assert.True(t, mr.Exists(tablesCacheKey))

	require.NoError(t, client.SetGuestName(ctx, "s2", "Bob"))
	assert.False(t, mr.Exists(tablesCacheKey))

	tables, err := client.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.loads)
	assert.Equal(t, "Bob", tables[0].Seats[1].Guest())
}

func TestClient_CacheNotRefilledByLoadOverlappingChange(t *testing.T) {
	client, backend := newTestClient(t)
	mr := miniredis.RunT(t)
	client.UseRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	ctx := context.Background()

	read := make(chan struct{})
	release := make(chan struct{})
	backend.mu.Lock()
	backend.afterRead = func() {
		close(read)
		<-release
	}
	backend.mu.Unlock()

	type result struct {
		tables []model.Table
		err    error
	}
	done := make(chan result, 1)
	go func() {
		tables, err := client.LoadAll(ctx)
		done <- result{tables, err}
	}()

	<-read
	require.NoError(t, client.SetGuestName(ctx, "s2", "Bob"))
	close(release)

	slow := <-done
	require.NoError(t, slow.err)
	require.Len(t, slow.tables, 2)
	assert.Nil(t, slow.tables[0].Seats[1].GuestName)
	assert.False(t, mr.Exists(tablesCacheKey))

	tables, err := client.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bob", tables[0].Seats[1].Guest())
	assert.True(t, mr.Exists(tablesCacheKey))
}

func TestParseContentRange(t *testing.T) {
	n, err := parseContentRange("0-19/20")
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = parseContentRange("*/0")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = parseContentRange("0-19/*")
	assert.Error(t, err)
	_, err = parseContentRange("")
	assert.Error(t, err)
}

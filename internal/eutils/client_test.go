package eutils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/harvester/internal/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(config.SourceConfig{
		BaseURL:     server.URL + "/",
		APIKey:      "test-key",
		Tool:        "harvester-test",
		Email:       "dev@example.org",
		TimeoutSecs: 5,
		MaxRetries:  3,
		RatePerSec:  1000, // don't pace the test suite
	})
}

func TestClient_SearchSendsIdentification(t *testing.T) {
	var query atomic.Value
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		_, _ = w.Write([]byte(esearchFixture))
	}))

	ids, err := c.Search(context.Background(), "sra", "urban metagenome", Window{RelDateDays: 7, DateType: "pdat"}, 500)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	q := query.Load().(url.Values)
	assert.Equal(t, "test-key", q.Get("api_key"))
	assert.Equal(t, "harvester-test", q.Get("tool"))
	assert.Equal(t, "dev@example.org", q.Get("email"))
	assert.Equal(t, "sra", q.Get("db"))
	assert.Equal(t, "7", q.Get("reldate"))
	assert.Equal(t, "pdat", q.Get("datetype"))
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(esearchFixture))
	}))
	// Keep the test fast.
	c.retry.InitialBackoff = 1
	c.retry.MaxBackoff = 1

	ids, err := c.Search(context.Background(), "sra", "x", Window{}, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RetriesMalformedPayload(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`<eSearchResult><Count>1</Count`)) // truncated
			return
		}
		_, _ = w.Write([]byte(esearchFixture))
	}))
	c.retry.InitialBackoff = 1
	c.retry.MaxBackoff = 1

	ids, err := c.Search(context.Background(), "sra", "x", Window{}, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, int32(2), calls.Load(), "a truncated payload must be re-fetched")
}

func TestClient_PermanentStatusFailsFast(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := c.Search(context.Background(), "sra", "x", Window{}, 10)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	c.retry.InitialBackoff = 1
	c.retry.MaxBackoff = 1

	_, err := c.Search(context.Background(), "sra", "x", Window{}, 10)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RunInfo(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "runinfo", r.URL.Query().Get("rettype"))
		_, _ = w.Write([]byte(runinfoFixture))
	}))

	rows, err := c.RunInfo(context.Background(), "10001", 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "SRR11000001", rows[0]["Run"])
}

func TestClient_ProjectUID(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PRJNA615625[Accession]", r.URL.Query().Get("term"))
		_, _ = w.Write([]byte(`<eSearchResult><Count>1</Count><IdList><Id>613758</Id></IdList></eSearchResult>`))
	}))

	uid, err := c.ProjectUID(context.Background(), "PRJNA615625")
	require.NoError(t, err)
	assert.Equal(t, "613758", uid)
}

func TestClient_ProjectUID_Unknown(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<eSearchResult><Count>0</Count><IdList></IdList></eSearchResult>`))
	}))

	uid, err := c.ProjectUID(context.Background(), "PRJNA0")
	require.NoError(t, err)
	assert.Empty(t, uid)
}

func TestClient_SummariesEmptyInput(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty uid list")
	}))

	out, err := c.Summaries(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

package pageserverclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attachctl/attachctl/pkg/types"
	"github.com/stretchr/testify/require"
)

func testShard() types.TenantShardId {
	return types.UnshardedTenantShardId("tenant-a")
}

func TestLocationConfigSuccess(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody types.LocationConfig

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(time.Second)
	gen := types.Generation(3)
	cfg := types.LocationConfig{Mode: types.LocationAttachedSingle, Generation: &gen}
	err := c.LocationConfig(t.Context(), srv.URL, testShard(), cfg)

	require.NoError(t, err)
	require.Equal(t, http.MethodPut, gotMethod)
	require.Contains(t, gotPath, "/location_config")
	require.Equal(t, cfg.Mode, gotBody.Mode)
}

func TestLocationConfigNonTwoxxReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("generation mismatch"))
	}))
	defer srv.Close()

	c := New(time.Second)
	err := c.LocationConfig(t.Context(), srv.URL, testShard(), types.LocationConfig{})

	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusConflict, statusErr.StatusCode)
}

func TestCreateTimelineSuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(time.Second)
	err := c.CreateTimeline(t.Context(), srv.URL, testShard(), CreateTimelineRequest{NewTimelineID: "tl-1"})

	require.NoError(t, err)
	require.Contains(t, gotPath, "/timeline")
}

func TestTimelinesDecodesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode([]TimelineLSN{
			{TimelineID: "tl-1", LastRecordLSN: 100},
		})
	}))
	defer srv.Close()

	c := New(time.Second)
	lsns, err := c.Timelines(t.Context(), srv.URL, testShard())

	require.NoError(t, err)
	require.Len(t, lsns, 1)
	require.Equal(t, uint64(100), lsns[0].LastRecordLSN)
}

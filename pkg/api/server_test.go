package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/attachctl/attachctl/pkg/computehook"
	"github.com/attachctl/attachctl/pkg/config"
	"github.com/attachctl/attachctl/pkg/pageserverclient"
	"github.com/attachctl/attachctl/pkg/registry"
	"github.com/attachctl/attachctl/pkg/service"
	"github.com/attachctl/attachctl/pkg/shardstate"
	"github.com/attachctl/attachctl/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakePageServer struct{}

func (fakePageServer) LocationConfig(context.Context, string, types.TenantShardId, types.LocationConfig) error {
	return nil
}

func (fakePageServer) Timelines(context.Context, string, types.TenantShardId) ([]pageserverclient.TimelineLSN, error) {
	return nil, nil
}

func (fakePageServer) CreateTimeline(context.Context, string, types.TenantShardId, pageserverclient.CreateTimelineRequest) error {
	return nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyAttachment(context.Context, computehook.Notification) error { return nil }

func newTestServer() *Server {
	reg := registry.New()
	shards := shardstate.NewStore()
	gen := types.NewGenerationCounter()
	hook := computehook.New(noopNotifier{})
	svc := service.New(config.Default(), reg, shards, gen, hook, fakePageServer{})
	return New(svc)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestStatusReturnsOK(t *testing.T) {
	srv := newTestServer()
	rec := doJSON(t, srv, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNodeRegisterThenTenantCreate(t *testing.T) {
	srv := newTestServer()

	rec := doJSON(t, srv, http.MethodPost, "/node", nodeRegisterRequest{NodeID: "n1", ListenAddrs: []string{"http://n1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/tenant", tenantCreateRequest{TenantID: "tenant-a", ShardCount: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp["shards"], 1)
}

func TestTenantCreateMissingIDReturnsBadRequest(t *testing.T) {
	srv := newTestServer()
	rec := doJSON(t, srv, http.MethodPost, "/tenant", tenantCreateRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantLocateUnknownTenantReturnsNotFound(t *testing.T) {
	srv := newTestServer()
	rec := doJSON(t, srv, http.MethodGet, "/tenant/does-not-exist/locate", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNodeConfigureMismatchedIDReturnsBadRequest(t *testing.T) {
	srv := newTestServer()
	doJSON(t, srv, http.MethodPost, "/node", nodeRegisterRequest{NodeID: "n1", ListenAddrs: []string{"http://n1"}})

	rec := doJSON(t, srv, http.MethodPut, "/node/n1/config", nodeConfigureRequest{NodeID: "n2"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttachHookAndValidateRoundTrip(t *testing.T) {
	srv := newTestServer()
	doJSON(t, srv, http.MethodPost, "/node", nodeRegisterRequest{NodeID: "n1", ListenAddrs: []string{"http://n1"}})
	rec := doJSON(t, srv, http.MethodPost, "/tenant", tenantCreateRequest{TenantID: "tenant-a", ShardCount: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	shardID := types.UnshardedTenantShardId("tenant-a").String()

	rec = doJSON(t, srv, http.MethodPost, "/attach-hook", attachHookRequest{TenantShardID: shardID, NodeID: "n1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var attachResp map[string]uint32
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attachResp))
	gen := attachResp["gen"]
	require.Greater(t, gen, uint32(0))

	rec = doJSON(t, srv, http.MethodPost, "/validate", validateRequest{Tenants: []validateTenantEntry{{TenantShardID: shardID, Gen: gen}}})
	require.Equal(t, http.StatusOK, rec.Code)
	var valResp map[string][]validateResultEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &valResp))
	require.True(t, valResp["tenants"][0].Valid)
}

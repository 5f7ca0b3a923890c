package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/attachctl/attachctl/pkg/log"
	"github.com/attachctl/attachctl/pkg/metrics"
	"github.com/attachctl/attachctl/pkg/pageserverclient"
	"github.com/attachctl/attachctl/pkg/reconciler"
	"github.com/attachctl/attachctl/pkg/service"
	"github.com/attachctl/attachctl/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the control plane's HTTP/JSON surface, routing every operator
// and page-server request to the underlying service.Service and translating
// its errors to the status codes in the route table: 400 malformed, 404
// unknown entity, 409 reconcile conflict, 500 internal.
type Server struct {
	svc    *service.Service
	router chi.Router
}

// New builds a Server delegating to svc.
func New(svc *service.Service) *Server {
	s := &Server{svc: svc}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/re-attach", s.handleReAttach)
	r.Post("/validate", s.handleValidate)
	r.Post("/attach-hook", s.handleAttachHook)
	r.Post("/inspect", s.handleInspect)

	r.Post("/tenant", s.handleTenantCreate)
	r.Post("/tenant/{tenant_id}/timeline", s.handleTenantTimelineCreate)
	r.Get("/tenant/{tenant_id}/locate", s.handleTenantLocate)

	r.Post("/node", s.handleNodeRegister)
	r.Put("/node/{node_id}/config", s.handleNodeConfigure)

	r.Put("/tenant/{tenant_shard_id}/migrate", s.handleTenantShardMigrate)

	return r
}

// requestMetrics records attachctl_api_requests_total and
// attachctl_api_request_duration_seconds per chi route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(route, http.StatusText(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type reAttachRequest struct {
	NodeID types.NodeId `json:"node_id"`
	Shards []string     `json:"shards"`
}

type reAttachShardResult struct {
	TenantShardID string `json:"tenant_shard_id"`
	Gen           uint32 `json:"gen,omitempty"`
	Detach        bool   `json:"detach,omitempty"`
}

func (s *Server) handleReAttach(w http.ResponseWriter, r *http.Request) {
	var req reAttachRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ids := make([]types.TenantShardId, 0, len(req.Shards))
	for _, raw := range req.Shards {
		id, err := types.ParseTenantShardId(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ids = append(ids, id)
	}

	entries := s.svc.ReAttach(req.NodeID, ids)
	out := make([]reAttachShardResult, len(entries))
	for i, e := range entries {
		out[i] = reAttachShardResult{TenantShardID: e.TenantShardID.String(), Gen: uint32(e.Generation), Detach: e.Detach}
	}
	writeJSON(w, http.StatusOK, map[string]any{"shards": out})
}

type validateTenantEntry struct {
	TenantShardID string `json:"tenant_shard_id"`
	Gen           uint32 `json:"gen"`
}

type validateRequest struct {
	Tenants []validateTenantEntry `json:"tenants"`
}

type validateResultEntry struct {
	TenantShardID string `json:"tenant_shard_id"`
	Valid         bool   `json:"valid"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entries := make([]service.ValidateEntry, 0, len(req.Tenants))
	for _, t := range req.Tenants {
		id, err := types.ParseTenantShardId(t.TenantShardID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		entries = append(entries, service.ValidateEntry{TenantShardID: id, Generation: types.Generation(t.Gen)})
	}

	results := s.svc.Validate(entries)
	out := make([]validateResultEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, validateResultEntry{TenantShardID: e.TenantShardID.String(), Valid: results[e.TenantShardID]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": out})
}

type attachHookRequest struct {
	TenantShardID string       `json:"tenant_shard_id"`
	NodeID        types.NodeId `json:"node_id"`
}

func (s *Server) handleAttachHook(w http.ResponseWriter, r *http.Request) {
	var req attachHookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := types.ParseTenantShardId(req.TenantShardID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	gen, err := s.svc.AttachHook(r.Context(), id, req.NodeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gen": uint32(gen)})
}

type inspectRequest struct {
	TenantShardID string `json:"tenant_shard_id"`
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	var req inspectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := types.ParseTenantShardId(req.TenantShardID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.svc.Inspect(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{}
	if result.Intent.Attached != nil {
		resp["attached"] = map[string]any{"node_id": *result.Intent.Attached}
	}
	writeJSON(w, http.StatusOK, resp)
}

type tenantCreateRequest struct {
	TenantID   string             `json:"tenant_id"`
	ShardCount uint8              `json:"shard_count"`
	Placement  *tenantPlacement   `json:"placement,omitempty"`
	TenantConf types.TenantConfig `json:"tenant_conf,omitempty"`
}

type tenantPlacement struct {
	Mode        string `json:"mode"`
	Secondaries int    `json:"secondaries"`
}

func (s *Server) handleTenantCreate(w http.ResponseWriter, r *http.Request) {
	var req tenantCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, errors.New("tenant_id is required"))
		return
	}

	svcReq := service.TenantCreateRequest{
		TenantID:   types.TenantId(req.TenantID),
		ShardCount: req.ShardCount,
		TenantConf: req.TenantConf,
	}
	if req.Placement != nil {
		policy, err := placementPolicy(*req.Placement)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		svcReq.Policy = &policy
	}

	locs, err := s.svc.TenantCreate(r.Context(), svcReq)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shardLocationsResponse(locs))
}

func placementPolicy(p tenantPlacement) (types.PlacementPolicy, error) {
	switch types.PlacementMode(p.Mode) {
	case types.PlacementModeSingle, "":
		return types.SinglePolicy(), nil
	case types.PlacementModeDouble:
		return types.DoublePolicy(p.Secondaries), nil
	default:
		return types.PlacementPolicy{}, errors.New("unknown placement mode")
	}
}

func (s *Server) handleTenantTimelineCreate(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	var req pageserverclient.CreateTimelineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.svc.TenantTimelineCreate(r.Context(), types.TenantId(tenantID), req); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTenantLocate(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	locs, err := s.svc.TenantLocate(types.TenantId(tenantID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shardLocationsResponse(locs))
}

func shardLocationsResponse(locs []service.ShardLocation) map[string]any {
	out := make([]map[string]any, len(locs))
	for i, l := range locs {
		out[i] = map[string]any{
			"tenant_shard_id": l.TenantShardID.String(),
			"node_id":         l.Node,
			"listen_addrs":    l.ListenAddrs,
			"shard_number":    l.Shard.Number,
			"shard_count":     l.Shard.Count,
		}
	}
	return map[string]any{"shards": out}
}

type nodeRegisterRequest struct {
	NodeID      types.NodeId `json:"node_id"`
	ListenAddrs []string     `json:"listen_addrs"`
}

func (s *Server) handleNodeRegister(w http.ResponseWriter, r *http.Request) {
	var req nodeRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NodeID == "" {
		writeError(w, http.StatusBadRequest, errors.New("node_id is required"))
		return
	}
	node := s.svc.NodeRegister(req.NodeID, req.ListenAddrs)
	writeJSON(w, http.StatusOK, map[string]any{"node_id": node.Id, "listen_addrs": node.ListenAddrs})
}

type nodeConfigureRequest struct {
	NodeID       types.NodeId                `json:"node_id"`
	Availability *types.NodeAvailability     `json:"availability,omitempty"`
	Scheduling   *types.NodeSchedulingPolicy `json:"scheduling,omitempty"`
}

func (s *Server) handleNodeConfigure(w http.ResponseWriter, r *http.Request) {
	pathID := chi.URLParam(r, "node_id")
	var req nodeConfigureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NodeID != "" && string(req.NodeID) != pathID {
		writeError(w, http.StatusBadRequest, service.ErrMismatch)
		return
	}

	affected, err := s.svc.NodeConfigure(r.Context(), types.NodeId(pathID), service.NodeConfigureRequest{
		Availability: req.Availability,
		Scheduling:   req.Scheduling,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	ids := make([]string, len(affected))
	for i, id := range affected {
		ids[i] = id.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"affected_shards": ids})
}

type tenantShardMigrateRequest struct {
	NodeID types.NodeId `json:"node_id"`
}

func (s *Server) handleTenantShardMigrate(w http.ResponseWriter, r *http.Request) {
	shardID := chi.URLParam(r, "tenant_shard_id")
	id, err := types.ParseTenantShardId(shardID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req tenantShardMigrateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.svc.TenantShardMigrate(r.Context(), id, req.NodeID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithComponent("api").Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps a service/reconciler error to a status code: 404
// unknown entity, 409 reconcile conflict, 400 id mismatch, 500 everything
// else.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrMismatch):
		writeError(w, http.StatusBadRequest, err)
	default:
		var rerr *reconciler.ReconcileError
		if errors.As(err, &rerr) {
			switch rerr.Kind {
			case reconciler.BadRequest:
				writeError(w, http.StatusBadRequest, err)
				return
			case reconciler.Conflict:
				writeError(w, http.StatusConflict, err)
				return
			}
		}
		writeError(w, http.StatusInternalServerError, err)
	}
}

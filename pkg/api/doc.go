// Package api exposes the control plane over HTTP/JSON: liveness, the
// page-server-facing re-attach/validate/attach-hook/inspect endpoints, and
// the operator-facing tenant/node/migrate endpoints. Server is a thin
// chi.Router translating requests into service.Service calls and mapping
// its errors onto the status codes operators and page servers expect: 400
// malformed or mismatched ids, 404 unknown entity, 409 reconcile conflict,
// 500 everything else.
package api

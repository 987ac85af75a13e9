// Package httpadapter exposes the engine over a small JSON API. Long-running
// operations (runbook executions, bulk jobs) are accepted with 202 and polled
// by id; everything else is synchronous.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/usecase"
)

type Router struct {
	workflows  *usecase.WorkflowService
	scheduler  *usecase.Scheduler
	bulk       *usecase.BulkProcessor
	continuity *usecase.Continuity
	dashboard  *usecase.DashboardService

	rateLimitRPS   float64
	rateLimitBurst int
}

func NewRouter(
	workflows *usecase.WorkflowService,
	scheduler *usecase.Scheduler,
	bulk *usecase.BulkProcessor,
	continuity *usecase.Continuity,
	dashboard *usecase.DashboardService,
) *Router {
	return &Router{
		workflows:      workflows,
		scheduler:      scheduler,
		bulk:           bulk,
		continuity:     continuity,
		dashboard:      dashboard,
		rateLimitRPS:   50,
		rateLimitBurst: 100,
	}
}

func (rt *Router) WithRateLimit(rps float64, burst int) *Router {
	rt.rateLimitRPS = rps
	rt.rateLimitBurst = burst
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/workflows", rt.createWorkflow)
	mux.HandleFunc("GET /v1/workflows/{id}", rt.getWorkflow)
	mux.HandleFunc("POST /v1/workflows/{id}/status", rt.updateStatus)
	mux.HandleFunc("POST /v1/workflows/{id}/documents", rt.uploadDocument)
	mux.HandleFunc("POST /v1/workflows/{id}/archive", rt.archiveWorkflow)
	mux.HandleFunc("POST /v1/workflows/{id}/reassign", rt.reassignWorkflow)

	mux.HandleFunc("GET /v1/orgs/{org}/dashboard", rt.getDashboard)
	mux.HandleFunc("GET /v1/orgs/{org}/queue", rt.getQueue)
	mux.HandleFunc("POST /v1/orgs/{org}/rebalance", rt.rebalance)
	mux.HandleFunc("POST /v1/orgs/{org}/alerts", rt.createAlert)

	mux.HandleFunc("POST /v1/jobs", rt.submitJob)
	mux.HandleFunc("GET /v1/jobs/{id}", rt.getJob)

	mux.HandleFunc("POST /v1/incidents", rt.reportIncident)
	mux.HandleFunc("POST /v1/incidents/{id}/status", rt.transitionIncident)
	mux.HandleFunc("POST /v1/incidents/{id}/resolve", rt.resolveIncident)
	mux.HandleFunc("POST /v1/incidents/{id}/reopen", rt.reopenIncident)

	mux.HandleFunc("POST /v1/runbooks", rt.registerRunbook)
	mux.HandleFunc("POST /v1/runbooks/{id}/execute", rt.executeRunbook)
	mux.HandleFunc("POST /v1/dr-plans/{id}/activate", rt.activateDRPlan)
	mux.HandleFunc("POST /v1/dr-plans/{id}/test", rt.testDRPlan)
	mux.HandleFunc("GET /v1/dr-plans/{id}/tests", rt.drTestHistory)
	mux.HandleFunc("GET /v1/executions/{id}", rt.getExecution)
	mux.HandleFunc("POST /v1/executions/{id}/cancel", rt.cancelExecution)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID        string            `json:"org_id"`
		ClientID     string            `json:"client_id"`
		ClientType   domain.ClientType `json:"client_type"`
		TaxYear      int               `json:"tax_year"`
		DeadlineType string            `json:"deadline_type"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	wf := &domain.Workflow{
		OrgID:        req.OrgID,
		ClientID:     req.ClientID,
		ClientType:   req.ClientType,
		TaxYear:      req.TaxYear,
		DeadlineType: domain.DeadlineType(req.DeadlineType),
	}
	created, err := rt.workflows.CreateWorkflow(r.Context(), wf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (rt *Router) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := rt.workflows.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (rt *Router) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status   domain.WorkflowStatus `json:"status"`
		Metadata map[string]string     `json:"metadata"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	wf, err := rt.workflows.UpdateStatus(r.Context(), r.PathValue("id"), req.Status, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string              `json:"name"`
		Type    domain.DocumentType `json:"type"`
		BlobRef string              `json:"blob_ref"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	wf, err := rt.workflows.ProcessDocumentUpload(r.Context(), r.PathValue("id"), domain.Document{
		Name:    req.Name,
		Type:    req.Type,
		BlobRef: req.BlobRef,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (rt *Router) archiveWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := rt.workflows.Archive(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (rt *Router) reassignWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Worker string `json:"worker"`
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Worker == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "worker is required"})
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}
	wf, err := rt.scheduler.Reassign(r.Context(), r.PathValue("id"), req.Worker, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (rt *Router) getDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := rt.dashboard.GetDashboard(r.Context(), r.PathValue("org"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (rt *Router) getQueue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	queue, err := rt.scheduler.PriorityQueue(r.Context(), r.PathValue("org"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": queue})
}

func (rt *Router) rebalance(w http.ResponseWriter, r *http.Request) {
	moves, err := rt.scheduler.RebalanceWorkloads(r.Context(), r.PathValue("org"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"moves": moves})
}

func (rt *Router) createAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Severity domain.AlertSeverity `json:"severity"`
		Message  string               `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	alert, err := rt.dashboard.CreateAlert(r.Context(), r.PathValue("org"), req.Severity, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (rt *Router) submitJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID     string            `json:"org_id"`
		Type      domain.JobType    `json:"type"`
		TargetIDs []string          `json:"target_ids"`
		Params    map[string]string `json:"params"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := rt.bulk.Submit(r.Context(), req.OrgID, req.Type, req.TargetIDs, req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := rt.bulk.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) reportIncident(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID    string                  `json:"org_id"`
		Type     string                  `json:"type"`
		Summary  string                  `json:"summary"`
		Severity domain.IncidentSeverity `json:"severity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	inc, err := rt.continuity.ReportIncident(r.Context(), req.OrgID, req.Type, req.Summary, req.Severity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (rt *Router) transitionIncident(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.IncidentStatus `json:"status"`
		Actor  string                `json:"actor"`
		Note   string                `json:"note"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	inc, err := rt.continuity.TransitionIncident(r.Context(), r.PathValue("id"), req.Status, req.Actor, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (rt *Router) resolveIncident(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor     string   `json:"actor"`
		RootCause string   `json:"root_cause"`
		Fixes     []string `json:"fixes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	inc, err := rt.continuity.ResolveIncident(r.Context(), r.PathValue("id"), req.Actor, domain.Resolution{
		RootCause: req.RootCause,
		Fixes:     req.Fixes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (rt *Router) reopenIncident(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	inc, err := rt.continuity.ReopenIncident(r.Context(), r.PathValue("id"), req.Actor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (rt *Router) registerRunbook(w http.ResponseWriter, r *http.Request) {
	var rb domain.Runbook
	if !decodeJSON(w, r, &rb) {
		return
	}
	saved, err := rt.continuity.RegisterRunbook(r.Context(), &rb)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (rt *Router) executeRunbook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
		Actor  string `json:"actor"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	execID, err := rt.continuity.ExecuteRunbook(r.Context(), r.PathValue("id"), req.Reason, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": execID})
}

func (rt *Router) activateDRPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	execID, err := rt.continuity.ActivateDisasterRecoveryPlan(r.Context(), r.PathValue("id"), req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": execID})
}

func (rt *Router) testDRPlan(w http.ResponseWriter, r *http.Request) {
	res, err := rt.continuity.RunDisasterRecoveryTest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) drTestHistory(w http.ResponseWriter, r *http.Request) {
	results, err := rt.continuity.TestHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) getExecution(w http.ResponseWriter, r *http.Request) {
	ex, err := rt.continuity.Execution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (rt *Router) cancelExecution(w http.ResponseWriter, r *http.Request) {
	if err := rt.continuity.CancelExecution(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

/*
handlers.go - HTTP API handlers for the momentum engine

PURPOSE:
  Exposes the momentum engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Cycles:
    POST   /api/cycles                       Initialize a cycle
    POST   /api/cycles/{id}/close            Close a cycle
    GET    /api/cycles/active                Active cycle with goals
    GET    /api/cycles/{id}/summary          Dashboard summary
    GET    /api/cycles/{id}/coach            Coach context and prompts

  Tactics:
    POST   /api/goals/{id}/tactics           Create tactic (version 1)
    GET    /api/goals/{id}/tactics           Active tactic heads
    PATCH  /api/tactics/{id}                 Fork a new revision
    GET    /api/tactics/{id}/history         Walk the version chain
    POST   /api/tactics/{id}/retire          Retire a lineage

  Actions:
    POST   /api/actions/{id}/checkoff        Complete a daily action
    POST   /api/actions/{id}/uncheck         Clear a completion

  Shields:
    GET    /api/cycles/{id}/shields          Ledger entries for the cycle
    GET    /api/cycles/{id}/shields/validate Dry-run an activation
    POST   /api/cycles/{id}/shields          Spend a shield credit

  Admin:
    POST   /api/admin/credits/{id}/revoke    Revoke a credit (elevated)

IDENTITY:
  Every /api route requires an X-Owner-ID header; the middleware in
  server.go rejects requests without one. The admin route additionally
  requires X-Admin-ID, which is the elevated principal recorded on the
  revocation.

ERROR HANDLING:
  Domain errors map to HTTP status by class:
  - 400: validation
  - 401: missing or mismatched identity
  - 404: entity missing or not owned by the caller
  - 409: state and conflict errors (already closed, shield race, stale head)
  - 500: integrity violations and infrastructure failures
  Every response uses the Result envelope from dto.go.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aeterna/momentum-engine/coach"
	"github.com/aeterna/momentum-engine/momentum"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     momentum.TxStore
	Lifecycle *momentum.CycleLifecycle
	Tactics   *momentum.VersionChain
	Ledger    *momentum.CreditLedger
	Admin     *momentum.CreditAdministrator
	Exec      *momentum.ExecutionService
	Agg       *momentum.AggregationService

	// Coach is optional: when nil, the coach endpoint returns context and
	// prompts without a live nudge.
	Coach *coach.Client
}

// NewHandler wires the domain services over the given store.
func NewHandler(store momentum.TxStore, coachClient *coach.Client) *Handler {
	agg := momentum.NewAggregationService(store)
	return &Handler{
		Store:     store,
		Lifecycle: momentum.NewCycleLifecycle(store),
		Tactics:   momentum.NewVersionChain(store),
		Ledger:    momentum.NewCreditLedger(store),
		Admin:     momentum.NewCreditAdministrator(store),
		Exec:      momentum.NewExecutionService(store, agg),
		Agg:       agg,
		Coach:     coachClient,
	}
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// InitializeCycle creates a cycle, its goals, and the 84-day schedule.
func (h *Handler) InitializeCycle(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)

	var req InitializeCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := momentum.ParseDay(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date format (use YYYY-MM-DD)")
		return
	}

	goals := make([]momentum.GoalInput, len(req.Goals))
	for i, g := range req.Goals {
		goals[i] = momentum.GoalInput{
			Title:        g.Title,
			Description:  g.Description,
			Priority:     g.Priority,
			TargetMetric: g.TargetMetric,
			TargetValue:  g.TargetValue,
		}
	}

	init, err := h.Lifecycle.Initialize(r.Context(), owner, req.Name, req.Vision, start, goals)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	goalDTOs := make([]GoalDTO, len(init.Goals))
	for i, g := range init.Goals {
		goalDTOs[i] = toGoalDTO(g)
	}

	writeData(w, http.StatusCreated, CycleInitDTO{
		Cycle:         toCycleDTO(init.Cycle),
		Goals:         goalDTOs,
		DaysGenerated: init.DaysGenerated,
	})
}

// CloseCycle transitions a cycle to closed and stamps the final score.
func (h *Handler) CloseCycle(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	cycleID := momentum.CycleID(chi.URLParam(r, "id"))

	closed, err := h.Lifecycle.Close(r.Context(), cycleID, owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, toCycleDTO(*closed))
}

// GetActiveCycle returns the caller's active cycle with its goals.
func (h *Handler) GetActiveCycle(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)

	cycle, err := h.Store.ActiveCycle(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load active cycle")
		return
	}
	if cycle == nil {
		writeError(w, http.StatusNotFound, "no active cycle")
		return
	}

	goals, err := h.Store.GoalsByCycle(r.Context(), cycle.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load goals")
		return
	}

	goalDTOs := make([]GoalDTO, len(goals))
	for i, g := range goals {
		goalDTOs[i] = toGoalDTO(g)
	}

	writeData(w, http.StatusOK, map[string]any{
		"cycle": toCycleDTO(*cycle),
		"goals": goalDTOs,
	})
}

// GetSummary returns the dashboard summary for the caller's active cycle.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.activeSummary(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, toSummaryDTO(*summary))
}

// GetCoach returns the coach context and built prompts, plus a live nudge
// when a coach client is configured. A failed nudge call degrades to the
// prompts alone rather than failing the request.
func (h *Handler) GetCoach(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.activeSummary(w, r)
	if !ok {
		return
	}

	dto := CoachDTO{
		Context:      summary.Coach,
		SystemPrompt: coach.SystemPrompt(),
		UserMessage:  coach.UserMessage(summary.Coach),
	}

	if h.Coach != nil {
		if nudge, err := h.Coach.Nudge(r.Context(), summary.Coach); err == nil {
			dto.Nudge = nudge
		}
	}

	writeData(w, http.StatusOK, dto)
}

// activeSummary loads the caller's summary and checks the URL cycle id
// against the active cycle. Writes the error response itself on failure.
func (h *Handler) activeSummary(w http.ResponseWriter, r *http.Request) (*momentum.Summary, bool) {
	owner := ownerFrom(r)
	cycleID := momentum.CycleID(chi.URLParam(r, "id"))

	summary, err := h.Agg.Summarize(r.Context(), owner, momentum.Today())
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if summary == nil || summary.Cycle.ID != cycleID {
		writeError(w, http.StatusNotFound, "cycle not found")
		return nil, false
	}
	return summary, true
}

// =============================================================================
// TACTIC HANDLERS
// =============================================================================

// CreateTactic starts a new tactic lineage under a goal.
func (h *Handler) CreateTactic(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	goalID := momentum.GoalID(chi.URLParam(r, "id"))

	var req CreateTacticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tactic, err := h.Tactics.Create(r.Context(), goalID, owner, req.Title, req.Description, req.Weight)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusCreated, toTacticDTO(*tactic))
}

// ListTactics returns the active tactic heads for a goal.
func (h *Handler) ListTactics(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	goalID := momentum.GoalID(chi.URLParam(r, "id"))

	if _, err := h.ownedGoal(r, goalID, owner); err != nil {
		writeDomainError(w, err)
		return
	}

	tactics, err := h.Tactics.ListActive(r.Context(), goalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tactics")
		return
	}

	dtos := make([]TacticDTO, len(tactics))
	for i, t := range tactics {
		dtos[i] = toTacticDTO(t)
	}
	writeData(w, http.StatusOK, dtos)
}

// UpdateTactic forks a new revision. The response carries the NEW revision;
// the old id stays valid for history but is no longer the head.
func (h *Handler) UpdateTactic(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	tacticID := momentum.TacticID(chi.URLParam(r, "id"))

	var req UpdateTacticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	next, err := h.Tactics.Fork(r.Context(), tacticID, owner, momentum.TacticPatch{
		Title:       req.Title,
		Description: req.Description,
		Weight:      req.Weight,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, toTacticDTO(*next))
}

// TacticHistory walks the version chain backward from the given revision.
func (h *Handler) TacticHistory(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	tacticID := momentum.TacticID(chi.URLParam(r, "id"))

	tactic, err := h.Store.GetTactic(r.Context(), tacticID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load tactic")
		return
	}
	if tactic == nil || tactic.OwnerID != owner {
		writeError(w, http.StatusNotFound, "tactic not found")
		return
	}

	history, err := h.Tactics.History(tacticID).Collect(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to walk history")
		return
	}

	dtos := make([]TacticDTO, len(history))
	for i, t := range history {
		dtos[i] = toTacticDTO(t)
	}
	writeData(w, http.StatusOK, dtos)
}

// RetireTactic deactivates a lineage without a successor.
func (h *Handler) RetireTactic(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	tacticID := momentum.TacticID(chi.URLParam(r, "id"))

	if err := h.Tactics.Retire(r.Context(), tacticID, owner); err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{"status": "retired"})
}

// ownedGoal resolves a goal and verifies it belongs to one of the owner's
// cycles. Missing and unowned are indistinguishable by design.
func (h *Handler) ownedGoal(r *http.Request, goalID momentum.GoalID, owner momentum.OwnerID) (*momentum.Goal, error) {
	goal, err := h.Store.GetGoal(r.Context(), goalID)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, &momentum.NotFoundError{Kind: "goal"}
	}
	cycle, err := h.Store.GetCycle(r.Context(), goal.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil || cycle.OwnerID != owner {
		return nil, &momentum.NotFoundError{Kind: "goal"}
	}
	return goal, nil
}

// =============================================================================
// ACTION HANDLERS
// =============================================================================

// CheckOffAction marks a daily action complete.
func (h *Handler) CheckOffAction(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	actionID := momentum.ActionID(chi.URLParam(r, "id"))

	// Body is optional: an empty POST checks off with no energy level.
	var req CheckOffRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	action, err := h.Exec.CheckOff(r.Context(), actionID, owner, req.EnergyLevel)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, toActionDTO(*action))
}

// UncheckAction clears a completion (both timestamp and energy).
func (h *Handler) UncheckAction(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	actionID := momentum.ActionID(chi.URLParam(r, "id"))

	action, err := h.Exec.Uncheck(r.Context(), actionID, owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, toActionDTO(*action))
}

// =============================================================================
// SHIELD HANDLERS
// =============================================================================

// ListShields returns the full shield ledger for a cycle, revoked included.
func (h *Handler) ListShields(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	cycleID := momentum.CycleID(chi.URLParam(r, "id"))

	credits, err := h.Store.CreditsByCycle(r.Context(), owner, cycleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list shields")
		return
	}

	dtos := make([]CreditDTO, len(credits))
	for i, c := range credits {
		dtos[i] = toCreditDTO(c)
	}
	writeData(w, http.StatusOK, dtos)
}

// ValidateShield dry-runs an activation for ?week=N. The verdict is data,
// not an error: a blocked activation still returns 200.
func (h *Handler) ValidateShield(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	cycleID := momentum.CycleID(chi.URLParam(r, "id"))

	week, err := strconv.Atoi(r.URL.Query().Get("week"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid week parameter")
		return
	}

	decision, err := h.Ledger.Validate(r.Context(), owner, cycleID, week)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, ShieldDecisionDTO{
		CanActivate:      decision.CanActivate,
		Reason:           decision.Reason,
		RemainingCredits: decision.RemainingCredits,
	})
}

// ActivateShield spends a shield credit on a week.
func (h *Handler) ActivateShield(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	cycleID := momentum.CycleID(chi.URLParam(r, "id"))

	var req ActivateShieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	credit, err := h.Ledger.Activate(r.Context(), owner, cycleID, req.WeekNumber, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusCreated, toCreditDTO(*credit))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RevokeCredit marks a shield credit revoked. Requires X-Admin-ID; the
// owner of the credit can never revoke their own.
func (h *Handler) RevokeCredit(w http.ResponseWriter, r *http.Request) {
	adminID := r.Header.Get("X-Admin-ID")
	creditID := momentum.CreditID(chi.URLParam(r, "id"))

	credit, err := h.Admin.Revoke(r.Context(), creditID, adminID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, toCreditDTO(*credit))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Result{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Result{Success: false, Error: message})
}

// writeDomainError maps the momentum error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, momentum.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, momentum.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case momentum.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case momentum.IsClientError(err):
		// State and conflict errors: the request was well-formed but the
		// entity's current state forbids it.
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

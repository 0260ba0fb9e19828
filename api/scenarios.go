/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates a cycle with goals,
	daily actions, completions, and shield credits that demonstrate
	specific engine features.

AVAILABLE SCENARIOS:

	fresh-start:    A cycle starting today, nothing completed yet
	mid-cycle:      Five weeks in, strong early weeks then a slump
	shielded-week:  A bad week covered by a shield credit

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Initialize a cycle for the demo owner
 3. Check off daily actions to shape the score history
 4. Optionally activate a shield

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mid-cycle"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler dependencies the loaders reuse
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aeterna/momentum-engine/momentum"
)

// DemoOwner is the owner id all scenarios load under.
const DemoOwner = momentum.OwnerID("demo-user")

// ScenarioDTO describes one loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-start",
		Name:        "Fresh Start",
		Description: "A cycle starting today with three goals and an untouched schedule",
	},
	{
		ID:          "mid-cycle",
		Name:        "Mid-Cycle Momentum",
		Description: "Five weeks in: four strong weeks, then a slump in progress",
	},
	{
		ID:          "shielded-week",
		Name:        "Shielded Week",
		Description: "A bad week covered by a shield credit, prior week score displayed",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, scenarios)
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()

	resetter, ok := h.Store.(interface{ Reset(context.Context) error })
	if !ok {
		writeError(w, http.StatusInternalServerError, "store does not support reset")
		return
	}
	if err := resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset database")
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-start":
		err = h.loadFreshStart(ctx)
	case "mid-cycle":
		err = h.loadMidCycle(ctx)
	case "shielded-week":
		err = h.loadShieldedWeek(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scenario: %s", req.ScenarioID))
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load scenario: %v", err))
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"scenario": req.ScenarioID,
		"owner":    string(DemoOwner),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func demoGoals() []momentum.GoalInput {
	return []momentum.GoalInput{
		{Title: "Ship the side project", Priority: 1, TargetMetric: "releases", TargetValue: 1},
		{Title: "Run 300 kilometers", Priority: 2, TargetMetric: "km", TargetValue: 300},
		{Title: "Read 6 books", Priority: 3, TargetMetric: "books", TargetValue: 6},
	}
}

func (h *Handler) loadFreshStart(ctx context.Context) error {
	_, err := h.Lifecycle.Initialize(ctx, DemoOwner, "Q4 Execution", "Build a body of work that outlasts me", momentum.Today(), demoGoals())
	return err
}

func (h *Handler) loadMidCycle(ctx context.Context) error {
	start := momentum.Today().AddDays(-31) // day 32: early in week 5
	init, err := h.Lifecycle.Initialize(ctx, DemoOwner, "Q4 Execution", "Build a body of work that outlasts me", start, demoGoals())
	if err != nil {
		return err
	}

	// Weeks 1-4 fully completed, week 5 untouched so far.
	return h.completeRange(ctx, init.Cycle.ID, start, start.AddDays(27))
}

func (h *Handler) loadShieldedWeek(ctx context.Context) error {
	start := momentum.Today().AddDays(-41) // day 42: week 6
	init, err := h.Lifecycle.Initialize(ctx, DemoOwner, "Q4 Execution", "Build a body of work that outlasts me", start, demoGoals())
	if err != nil {
		return err
	}

	// Four strong weeks, then a blown week 5 that the shield covers.
	if err := h.completeRange(ctx, init.Cycle.ID, start, start.AddDays(27)); err != nil {
		return err
	}
	_, err = h.Ledger.Activate(ctx, DemoOwner, init.Cycle.ID, 5, "Family emergency took the whole week")
	return err
}

// completeRange checks off every seeded action with a date in [from, to].
func (h *Handler) completeRange(ctx context.Context, cycleID momentum.CycleID, from, to momentum.Day) error {
	actions, err := h.Store.ActionsInRange(ctx, cycleID, from, to)
	if err != nil {
		return err
	}
	for _, a := range actions {
		if _, err := h.Exec.CheckOff(ctx, a.ID, DemoOwner, nil); err != nil {
			return err
		}
	}
	return nil
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

ENVELOPE:
  Every response is wrapped in Result: {"success": bool, "data": ..., "error": ...}.
  Success and error are mutually exclusive; clients dispatch on success.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation (JSON decoding, date formats) is done in handlers;
  business validation lives in the momentum package and surfaces through
  the error taxonomy.

SEE ALSO:
  - handlers.go: Uses these types
  - momentum/types.go: Domain entities these project
*/
package api

import (
	"time"

	"github.com/aeterna/momentum-engine/momentum"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Result is the uniform response envelope.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// CYCLES
// =============================================================================

// GoalInputDTO is one goal in a cycle initialization request.
type GoalInputDTO struct {
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Priority     int     `json:"priority"`
	TargetMetric string  `json:"target_metric,omitempty"`
	TargetValue  float64 `json:"target_value,omitempty"`
}

// InitializeCycleRequest creates a cycle with its goals and daily schedule.
type InitializeCycleRequest struct {
	Name      string         `json:"name"`
	Vision    string         `json:"vision,omitempty"`
	StartDate string         `json:"start_date"` // YYYY-MM-DD
	Goals     []GoalInputDTO `json:"goals"`
}

// CycleDTO represents a cycle in API responses.
type CycleDTO struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Vision     string  `json:"vision,omitempty"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	Status     string  `json:"status"`
	FinalScore *string `json:"final_score,omitempty"`
	ClosedAt   *string `json:"closed_at,omitempty"`
}

// GoalDTO represents a goal in API responses.
type GoalDTO struct {
	ID           string  `json:"id"`
	CycleID      string  `json:"cycle_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Priority     int     `json:"priority"`
	TargetMetric string  `json:"target_metric,omitempty"`
	TargetValue  float64 `json:"target_value,omitempty"`
	CurrentValue float64 `json:"current_value"`
}

// CycleInitDTO is the response to a successful initialization.
type CycleInitDTO struct {
	Cycle         CycleDTO  `json:"cycle"`
	Goals         []GoalDTO `json:"goals"`
	DaysGenerated int       `json:"days_generated"`
}

// SummaryDTO is the full dashboard view for the active cycle.
type SummaryDTO struct {
	Cycle            CycleDTO              `json:"cycle"`
	CurrentWeek      int                   `json:"current_week"`
	RemainingDays    int                   `json:"remaining_days"`
	TodayActions     []ActionDTO           `json:"today_actions"`
	DailyScore       int                   `json:"daily_score"`
	WeeklyScore      int                   `json:"weekly_score"`
	DisplayScore     int                   `json:"display_score"`
	IsShielded       bool                  `json:"is_shielded"`
	Status           string                `json:"status"`
	Momentum         string                `json:"momentum"`
	WinningStreak    int                   `json:"winning_streak"`
	LosingStreak     int                   `json:"losing_streak"`
	RemainingCredits int                   `json:"remaining_credits"`
	Coach            momentum.CoachContext `json:"coach"`
}

// =============================================================================
// TACTICS
// =============================================================================

// CreateTacticRequest starts a new tactic lineage under a goal.
type CreateTacticRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Weight      int    `json:"weight,omitempty"`
}

// UpdateTacticRequest forks a tactic head. Only set fields change.
type UpdateTacticRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Weight      *int    `json:"weight,omitempty"`
}

// TacticDTO represents one tactic revision.
type TacticDTO struct {
	ID                string  `json:"id"`
	GoalID            string  `json:"goal_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description,omitempty"`
	Weight            int     `json:"weight"`
	IsActive          bool    `json:"is_active"`
	Version           int     `json:"version"`
	PreviousVersionID *string `json:"previous_version_id,omitempty"`
}

// =============================================================================
// ACTIONS
// =============================================================================

// CheckOffRequest optionally records the energy level at completion.
type CheckOffRequest struct {
	EnergyLevel *int `json:"energy_level,omitempty"`
}

// ActionDTO represents a daily action.
type ActionDTO struct {
	ID          string  `json:"id"`
	CycleID     string  `json:"cycle_id"`
	TacticID    *string `json:"tactic_id,omitempty"`
	Title       string  `json:"title"`
	ActionDate  string  `json:"action_date"`
	IsCompleted bool    `json:"is_completed"`
	CompletedAt *string `json:"completed_at,omitempty"`
	EnergyLevel *int    `json:"energy_level,omitempty"`
	Notes       string  `json:"notes,omitempty"`
}

// =============================================================================
// SHIELDS
// =============================================================================

// ActivateShieldRequest spends a shield credit on one week.
type ActivateShieldRequest struct {
	WeekNumber int    `json:"week_number"`
	Reason     string `json:"reason"`
}

// ShieldDecisionDTO is the validation verdict for a prospective activation.
type ShieldDecisionDTO struct {
	CanActivate      bool   `json:"can_activate"`
	Reason           string `json:"reason"`
	RemainingCredits int    `json:"remaining_credits"`
}

// CreditDTO represents a shield credit ledger entry.
type CreditDTO struct {
	ID         string  `json:"id"`
	CycleID    string  `json:"cycle_id"`
	WeekNumber int     `json:"week_number"`
	Reason     string  `json:"reason"`
	AppliedAt  string  `json:"applied_at"`
	Revoked    bool    `json:"revoked"`
	RevokedAt  *string `json:"revoked_at,omitempty"`
	RevokedBy  string  `json:"revoked_by,omitempty"`
}

// =============================================================================
// COACH
// =============================================================================

// CoachDTO carries the assembled context and built prompts. Nudge is set
// only when a live coach client is configured and the call succeeds.
type CoachDTO struct {
	Context      momentum.CoachContext `json:"context"`
	SystemPrompt string                `json:"system_prompt"`
	UserMessage  string                `json:"user_message"`
	Nudge        string                `json:"nudge,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCycleDTO(c momentum.Cycle) CycleDTO {
	dto := CycleDTO{
		ID:        string(c.ID),
		Name:      c.Name,
		Vision:    c.Vision,
		StartDate: c.StartDate.String(),
		EndDate:   c.EndDate.String(),
		Status:    string(c.Status),
	}
	if c.FinalScore != nil {
		s := c.FinalScore.String()
		dto.FinalScore = &s
	}
	if c.ClosedAt != nil {
		s := c.ClosedAt.UTC().Format(time.RFC3339)
		dto.ClosedAt = &s
	}
	return dto
}

func toGoalDTO(g momentum.Goal) GoalDTO {
	return GoalDTO{
		ID:           string(g.ID),
		CycleID:      string(g.CycleID),
		Title:        g.Title,
		Description:  g.Description,
		Priority:     g.Priority,
		TargetMetric: g.TargetMetric,
		TargetValue:  g.TargetValue,
		CurrentValue: g.CurrentValue,
	}
}

func toTacticDTO(t momentum.Tactic) TacticDTO {
	dto := TacticDTO{
		ID:          string(t.ID),
		GoalID:      string(t.GoalID),
		Title:       t.Title,
		Description: t.Description,
		Weight:      t.Weight,
		IsActive:    t.IsActive,
		Version:     t.Version,
	}
	if t.PreviousVersionID != nil {
		s := string(*t.PreviousVersionID)
		dto.PreviousVersionID = &s
	}
	return dto
}

func toActionDTO(a momentum.DailyAction) ActionDTO {
	dto := ActionDTO{
		ID:          string(a.ID),
		CycleID:     string(a.CycleID),
		Title:       a.Title,
		ActionDate:  a.ActionDate.String(),
		IsCompleted: a.IsCompleted,
		EnergyLevel: a.EnergyLevel,
		Notes:       a.Notes,
	}
	if a.TacticID != nil {
		s := string(*a.TacticID)
		dto.TacticID = &s
	}
	if a.CompletedAt != nil {
		s := a.CompletedAt.UTC().Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

func toCreditDTO(c momentum.MomentumCredit) CreditDTO {
	dto := CreditDTO{
		ID:         string(c.ID),
		CycleID:    string(c.CycleID),
		WeekNumber: c.WeekNumber,
		Reason:     c.Reason,
		AppliedAt:  c.AppliedAt.UTC().Format(time.RFC3339),
		Revoked:    c.Revoked,
		RevokedBy:  c.RevokedBy,
	}
	if c.RevokedAt != nil {
		s := c.RevokedAt.UTC().Format(time.RFC3339)
		dto.RevokedAt = &s
	}
	return dto
}

func toSummaryDTO(s momentum.Summary) SummaryDTO {
	actions := make([]ActionDTO, len(s.TodayActions))
	for i, a := range s.TodayActions {
		actions[i] = toActionDTO(a)
	}
	return SummaryDTO{
		Cycle:            toCycleDTO(s.Cycle),
		CurrentWeek:      s.CurrentWeek,
		RemainingDays:    s.RemainingDays,
		TodayActions:     actions,
		DailyScore:       s.DailyScore,
		WeeklyScore:      s.Week.Score,
		DisplayScore:     s.DisplayScore,
		IsShielded:       s.Week.IsShielded,
		Status:           string(s.Status),
		Momentum:         string(s.Momentum),
		WinningStreak:    s.WinningStreak,
		LosingStreak:     s.LosingStreak,
		RemainingCredits: s.RemainingCredits,
		Coach:            s.Coach,
	}
}

// Package store provides an in-memory momentum.TxStore for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aeterna/momentum-engine/momentum"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds everything in maps guarded by one RWMutex. WithTx simulates
// a transaction with a snapshot that is restored on error, so the engine's
// all-or-nothing units behave the same as against SQLite.
type Memory struct {
	txMu     sync.Mutex // serializes WithTx units
	mu       sync.RWMutex
	cycles   map[momentum.CycleID]momentum.Cycle
	goals    map[momentum.GoalID]momentum.Goal
	tactics  map[momentum.TacticID]momentum.Tactic
	actions  map[momentum.ActionID]momentum.DailyAction
	credits  map[momentum.CreditID]momentum.MomentumCredit
	weeks    map[weekKey]momentum.WeeklyScore
	profiles map[momentum.OwnerID]momentum.Profile
}

type weekKey struct {
	CycleID momentum.CycleID
	Week    int
}

func NewMemory() *Memory {
	return &Memory{
		cycles:   make(map[momentum.CycleID]momentum.Cycle),
		goals:    make(map[momentum.GoalID]momentum.Goal),
		tactics:  make(map[momentum.TacticID]momentum.Tactic),
		actions:  make(map[momentum.ActionID]momentum.DailyAction),
		credits:  make(map[momentum.CreditID]momentum.MomentumCredit),
		weeks:    make(map[weekKey]momentum.WeeklyScore),
		profiles: make(map[momentum.OwnerID]momentum.Profile),
	}
}

var _ momentum.TxStore = (*Memory)(nil)

// Reset drops all stored data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = make(map[momentum.CycleID]momentum.Cycle)
	m.goals = make(map[momentum.GoalID]momentum.Goal)
	m.tactics = make(map[momentum.TacticID]momentum.Tactic)
	m.actions = make(map[momentum.ActionID]momentum.DailyAction)
	m.credits = make(map[momentum.CreditID]momentum.MomentumCredit)
	m.weeks = make(map[weekKey]momentum.WeeklyScore)
	m.profiles = make(map[momentum.OwnerID]momentum.Profile)
	return nil
}

// --- Cycles ---

func (m *Memory) InsertCycle(_ context.Context, c momentum.Cycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[c.ID] = c
	return nil
}

func (m *Memory) GetCycle(_ context.Context, id momentum.CycleID) (*momentum.Cycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cycles[id]; ok {
		cp := c
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) ActiveCycle(_ context.Context, owner momentum.OwnerID) (*momentum.Cycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cycles {
		if c.OwnerID == owner && c.Status == momentum.CycleActive {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) CloseCycle(_ context.Context, id momentum.CycleID, closedAt time.Time, finalScore string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok || c.Status != momentum.CycleActive {
		return false, nil
	}
	final, err := decimal.NewFromString(finalScore)
	if err != nil {
		return false, err
	}
	c.Status = momentum.CycleClosed
	c.ClosedAt = &closedAt
	c.FinalScore = &final
	m.cycles[id] = c
	return true, nil
}

// --- Goals ---

func (m *Memory) InsertGoal(_ context.Context, g momentum.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals[g.ID] = g
	return nil
}

func (m *Memory) GetGoal(_ context.Context, id momentum.GoalID) (*momentum.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.goals[id]; ok {
		cp := g
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) GoalsByCycle(_ context.Context, cycleID momentum.CycleID) ([]momentum.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var goals []momentum.Goal
	for _, g := range m.goals {
		if g.CycleID == cycleID {
			goals = append(goals, g)
		}
	}
	sort.Slice(goals, func(i, j int) bool {
		if goals[i].Priority != goals[j].Priority {
			return goals[i].Priority < goals[j].Priority
		}
		return goals[i].CreatedAt.Before(goals[j].CreatedAt)
	})
	return goals, nil
}

// --- Tactics ---

func (m *Memory) InsertTactic(_ context.Context, t momentum.Tactic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tactics[t.ID] = t
	return nil
}

func (m *Memory) GetTactic(_ context.Context, id momentum.TacticID) (*momentum.Tactic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tactics[id]; ok {
		cp := t
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) DeactivateTactic(_ context.Context, id momentum.TacticID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tactics[id]
	if !ok || !t.IsActive {
		return false, nil
	}
	t.IsActive = false
	m.tactics[id] = t
	return true, nil
}

func (m *Memory) ActiveTactics(_ context.Context, goalID momentum.GoalID) ([]momentum.Tactic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tactics []momentum.Tactic
	for _, t := range m.tactics {
		if t.GoalID == goalID && t.IsActive {
			tactics = append(tactics, t)
		}
	}
	sort.Slice(tactics, func(i, j int) bool {
		return tactics[i].CreatedAt.Before(tactics[j].CreatedAt)
	})
	return tactics, nil
}

// --- Daily actions ---

func (m *Memory) InsertActions(_ context.Context, actions []momentum.DailyAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range actions {
		m.actions[a.ID] = a
	}
	return nil
}

func (m *Memory) GetAction(_ context.Context, id momentum.ActionID) (*momentum.DailyAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.actions[id]; ok {
		cp := a
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) CountActions(_ context.Context, cycleID momentum.CycleID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.actions {
		if a.CycleID == cycleID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) ActionsOn(_ context.Context, cycleID momentum.CycleID, date momentum.Day) ([]momentum.DailyAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var actions []momentum.DailyAction
	for _, a := range m.actions {
		if a.CycleID == cycleID && a.ActionDate.Equal(date) {
			actions = append(actions, a)
		}
	}
	sortActions(actions)
	return actions, nil
}

func (m *Memory) ActionsInRange(_ context.Context, cycleID momentum.CycleID, from, to momentum.Day) ([]momentum.DailyAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var actions []momentum.DailyAction
	for _, a := range m.actions {
		if a.CycleID == cycleID && a.ActionDate.AfterOrEqual(from) && a.ActionDate.BeforeOrEqual(to) {
			actions = append(actions, a)
		}
	}
	sortActions(actions)
	return actions, nil
}

func (m *Memory) SetActionCompletion(_ context.Context, id momentum.ActionID, completed bool, completedAt *time.Time, energy *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return &momentum.NotFoundError{Kind: "action"}
	}
	a.IsCompleted = completed
	a.CompletedAt = completedAt
	a.EnergyLevel = energy
	m.actions[id] = a
	return nil
}

// --- Momentum credits ---

func (m *Memory) InsertCredit(_ context.Context, c momentum.MomentumCredit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.credits {
		if existing.OwnerID == c.OwnerID && existing.CycleID == c.CycleID &&
			existing.WeekNumber == c.WeekNumber && !existing.Revoked {
			return momentum.ErrWeekAlreadyShielded
		}
	}
	m.credits[c.ID] = c
	return nil
}

func (m *Memory) GetCredit(_ context.Context, id momentum.CreditID) (*momentum.MomentumCredit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.credits[id]; ok {
		cp := c
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) CountActiveCredits(_ context.Context, owner momentum.OwnerID, cycleID momentum.CycleID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.credits {
		if c.OwnerID == owner && c.CycleID == cycleID && !c.Revoked {
			count++
		}
	}
	return count, nil
}

func (m *Memory) ActiveCreditForWeek(_ context.Context, owner momentum.OwnerID, cycleID momentum.CycleID, week int) (*momentum.MomentumCredit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.credits {
		if c.OwnerID == owner && c.CycleID == cycleID && c.WeekNumber == week && !c.Revoked {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreditsByCycle(_ context.Context, owner momentum.OwnerID, cycleID momentum.CycleID) ([]momentum.MomentumCredit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var credits []momentum.MomentumCredit
	for _, c := range m.credits {
		if c.OwnerID == owner && c.CycleID == cycleID {
			credits = append(credits, c)
		}
	}
	sort.Slice(credits, func(i, j int) bool {
		return credits[i].WeekNumber < credits[j].WeekNumber
	})
	return credits, nil
}

func (m *Memory) RevokeCredit(_ context.Context, id momentum.CreditID, revokedBy string, revokedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[id]
	if !ok || c.Revoked {
		return false, nil
	}
	c.Revoked = true
	c.RevokedAt = &revokedAt
	c.RevokedBy = revokedBy
	m.credits[id] = c
	return true, nil
}

// --- Weekly scores ---

func (m *Memory) UpsertWeeklyScore(_ context.Context, ws momentum.WeeklyScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := weekKey{CycleID: ws.CycleID, Week: ws.WeekNumber}
	if existing, ok := m.weeks[k]; ok {
		ws.ID = existing.ID // keep the row identity stable across recomputes
	}
	m.weeks[k] = ws
	return nil
}

func (m *Memory) WeeklyScoreFor(_ context.Context, cycleID momentum.CycleID, week int) (*momentum.WeeklyScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ws, ok := m.weeks[weekKey{CycleID: cycleID, Week: week}]; ok {
		cp := ws
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) WeeklyScoresByCycle(_ context.Context, cycleID momentum.CycleID) ([]momentum.WeeklyScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var scores []momentum.WeeklyScore
	for _, ws := range m.weeks {
		if ws.CycleID == cycleID {
			scores = append(scores, ws)
		}
	}
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].WeekNumber < scores[j].WeekNumber
	})
	return scores, nil
}

func (m *Memory) RecentScores(_ context.Context, owner momentum.OwnerID, limit int) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []momentum.WeeklyScore
	for _, ws := range m.weeks {
		if ws.OwnerID == owner {
			rows = append(rows, ws)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].WeekStart.After(rows[j].WeekStart) // newest first
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	scores := make([]int, len(rows))
	for i, ws := range rows {
		scores[i] = ws.Score
	}
	return scores, nil
}

// --- Profiles ---

func (m *Memory) GetProfile(_ context.Context, owner momentum.OwnerID) (*momentum.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[owner]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) SaveProfile(_ context.Context, p momentum.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.OwnerID] = p
	return nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn against the store. On error the pre-transaction
// snapshot is restored, giving the same all-or-nothing behavior as a real
// database transaction. Concurrent WithTx calls serialize on txMu, which
// is what makes the ledger's check-then-insert race-free here.
func (m *Memory) WithTx(_ context.Context, fn func(momentum.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memorySnapshot{
		cycles:   copyMap(m.cycles),
		goals:    copyMap(m.goals),
		tactics:  copyMap(m.tactics),
		actions:  copyMap(m.actions),
		credits:  copyMap(m.credits),
		weeks:    copyMap(m.weeks),
		profiles: copyMap(m.profiles),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = s.cycles
	m.goals = s.goals
	m.tactics = s.tactics
	m.actions = s.actions
	m.credits = s.credits
	m.weeks = s.weeks
	m.profiles = s.profiles
}

type memorySnapshot struct {
	cycles   map[momentum.CycleID]momentum.Cycle
	goals    map[momentum.GoalID]momentum.Goal
	tactics  map[momentum.TacticID]momentum.Tactic
	actions  map[momentum.ActionID]momentum.DailyAction
	credits  map[momentum.CreditID]momentum.MomentumCredit
	weeks    map[weekKey]momentum.WeeklyScore
	profiles map[momentum.OwnerID]momentum.Profile
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func sortActions(actions []momentum.DailyAction) {
	sort.Slice(actions, func(i, j int) bool {
		if !actions[i].ActionDate.Equal(actions[j].ActionDate) {
			return actions[i].ActionDate.Before(actions[j].ActionDate)
		}
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})
}

/*
Package sqlite provides the SQLite-backed implementation of momentum.TxStore.

PURPOSE:
  Implements the engine's persistence boundary using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  cycles:           84-day execution periods
  goals:            Up to 3 prioritized goals per cycle
  tactics:          Immutable tactic revisions (copy-on-write version chain)
  daily_actions:    Exactly 84 seeded rows per cycle, completion toggles only
  momentum_credits: Append-only shield credit ledger
  weekly_scores:    One recomputed row per (cycle, week)
  profiles:         Owner vision plus derived streak/credit caches

LEDGER ENFORCEMENT:
  momentum_credits has no owner-facing UPDATE or DELETE path. The only
  mutation is the revocation CAS used by the administrator capability.
  A partial unique index enforces at most one non-revoked credit per
  (owner, cycle, week) at the storage layer; a violation surfaces as
  momentum.ErrWeekAlreadyShielded, which is how concurrent activations
  for the same week are arbitrated.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/momentum.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  lifecycle := momentum.NewCycleLifecycle(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - momentum/store.go: Interface definitions and contract notes
  - momentum/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/aeterna/momentum-engine/momentum"
)

// Store implements momentum.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ momentum.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Cycles (84-day execution periods)
	CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		vision TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		final_score TEXT,
		closed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_owner_status
		ON cycles(owner_id, status);

	-- Goals (up to 3 per cycle, priority 1 is highest)
	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL,
		target_metric TEXT NOT NULL DEFAULT '',
		target_value REAL NOT NULL DEFAULT 0,
		current_value REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (cycle_id) REFERENCES cycles(id)
	);

	CREATE INDEX IF NOT EXISTS idx_goals_cycle
		ON goals(cycle_id, priority);

	-- Tactics (immutable revisions; exactly one active head per lineage)
	CREATE TABLE IF NOT EXISTS tactics (
		id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		weight INTEGER NOT NULL DEFAULT 1,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		version INTEGER NOT NULL DEFAULT 1,
		previous_version_id TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (goal_id) REFERENCES goals(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tactics_goal_active
		ON tactics(goal_id, is_active);

	-- Daily actions (seeded schedule; completion fields are the only writes)
	CREATE TABLE IF NOT EXISTS daily_actions (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		tactic_id TEXT,
		title TEXT NOT NULL,
		action_date TEXT NOT NULL,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at TEXT,
		energy_level INTEGER,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		FOREIGN KEY (cycle_id) REFERENCES cycles(id)
	);

	CREATE INDEX IF NOT EXISTS idx_actions_cycle_date
		ON daily_actions(cycle_id, action_date);

	-- Momentum credits (append-only shield ledger)
	CREATE TABLE IF NOT EXISTS momentum_credits (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		week_number INTEGER NOT NULL,
		reason TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_at TEXT,
		revoked_by TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (cycle_id) REFERENCES cycles(id)
	);

	-- CRITICAL: at most one non-revoked shield per (owner, cycle, week).
	-- Concurrent activations for the same week race to this index; the
	-- loser gets a unique constraint violation.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_shield_per_week
		ON momentum_credits(owner_id, cycle_id, week_number)
		WHERE revoked = 0;

	CREATE INDEX IF NOT EXISTS idx_credits_owner_cycle
		ON momentum_credits(owner_id, cycle_id);

	-- Weekly scores (recomputed, one row per cycle week)
	CREATE TABLE IF NOT EXISTS weekly_scores (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		week_number INTEGER NOT NULL,
		week_start TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		tasks_completed INTEGER NOT NULL DEFAULT 0,
		tasks_total INTEGER NOT NULL DEFAULT 0,
		is_shielded BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL,
		UNIQUE(cycle_id, week_number),
		FOREIGN KEY (cycle_id) REFERENCES cycles(id)
	);

	CREATE INDEX IF NOT EXISTS idx_weekly_scores_owner_start
		ON weekly_scores(owner_id, week_start DESC);

	-- Profiles (vision plus derived counters)
	CREATE TABLE IF NOT EXISTS profiles (
		owner_id TEXT PRIMARY KEY,
		vision TEXT NOT NULL DEFAULT '',
		winning_streak INTEGER NOT NULL DEFAULT 0,
		losing_streak INTEGER NOT NULL DEFAULT 0,
		shield_credits INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so every query helper
// can run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CYCLES
// =============================================================================

func (s *Store) InsertCycle(ctx context.Context, c momentum.Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertCycle(ctx, s.db, c)
}

func insertCycle(ctx context.Context, q querier, c momentum.Cycle) error {
	query := `
		INSERT INTO cycles
		(id, owner_id, name, vision, start_date, end_date, status, final_score, closed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		c.ID,
		c.OwnerID,
		c.Name,
		c.Vision,
		c.StartDate.String(),
		c.EndDate.String(),
		c.Status,
		nullDecimal(c.FinalScore),
		nullTime(c.ClosedAt),
		c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}
	return nil
}

const cycleColumns = `id, owner_id, name, vision, start_date, end_date, status, final_score, closed_at, created_at`

func (s *Store) GetCycle(ctx context.Context, id momentum.CycleID) (*momentum.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCycle(ctx, s.db, id)
}

func getCycle(ctx context.Context, q querier, id momentum.CycleID) (*momentum.Cycle, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id)
	return scanCycle(row)
}

func (s *Store) ActiveCycle(ctx context.Context, owner momentum.OwnerID) (*momentum.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeCycle(ctx, s.db, owner)
}

func activeCycle(ctx context.Context, q querier, owner momentum.OwnerID) (*momentum.Cycle, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE owner_id = ? AND status = 'active' LIMIT 1`,
		owner)
	return scanCycle(row)
}

func (s *Store) CloseCycle(ctx context.Context, id momentum.CycleID, closedAt time.Time, finalScore string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeCycle(ctx, s.db, id, closedAt, finalScore)
}

// closeCycle is a compare-and-swap on status: only an active cycle closes.
func closeCycle(ctx context.Context, q querier, id momentum.CycleID, closedAt time.Time, finalScore string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE cycles SET status = 'closed', closed_at = ?, final_score = ?
		 WHERE id = ? AND status = 'active'`,
		closedAt.UTC().Format(time.RFC3339), finalScore, id)
	if err != nil {
		return false, fmt.Errorf("failed to close cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*momentum.Cycle, error) {
	var (
		c          momentum.Cycle
		startDate  string
		endDate    string
		finalScore sql.NullString
		closedAt   sql.NullString
		createdAt  string
	)

	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Vision,
		&startDate, &endDate, &c.Status, &finalScore, &closedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cycle: %w", err)
	}

	c.StartDate, _ = momentum.ParseDay(startDate)
	c.EndDate, _ = momentum.ParseDay(endDate)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if finalScore.Valid && finalScore.String != "" {
		d, err := decimal.NewFromString(finalScore.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse final score: %w", err)
		}
		c.FinalScore = &d
	}
	if closedAt.Valid {
		t, _ := time.Parse(time.RFC3339, closedAt.String)
		c.ClosedAt = &t
	}
	return &c, nil
}

// =============================================================================
// GOALS
// =============================================================================

func (s *Store) InsertGoal(ctx context.Context, g momentum.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertGoal(ctx, s.db, g)
}

func insertGoal(ctx context.Context, q querier, g momentum.Goal) error {
	query := `
		INSERT INTO goals
		(id, cycle_id, title, description, priority, target_metric, target_value, current_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		g.ID, g.CycleID, g.Title, g.Description, g.Priority,
		g.TargetMetric, g.TargetValue, g.CurrentValue,
		g.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert goal: %w", err)
	}
	return nil
}

const goalColumns = `id, cycle_id, title, description, priority, target_metric, target_value, current_value, created_at`

func (s *Store) GetGoal(ctx context.Context, id momentum.GoalID) (*momentum.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGoal(ctx, s.db, id)
}

func getGoal(ctx context.Context, q querier, id momentum.GoalID) (*momentum.Goal, error) {
	row := q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) GoalsByCycle(ctx context.Context, cycleID momentum.CycleID) ([]momentum.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return goalsByCycle(ctx, s.db, cycleID)
}

func goalsByCycle(ctx context.Context, q querier, cycleID momentum.CycleID) ([]momentum.Goal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE cycle_id = ? ORDER BY priority ASC, created_at ASC`,
		cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []momentum.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func scanGoal(row rowScanner) (momentum.Goal, error) {
	var (
		g         momentum.Goal
		createdAt string
	)
	err := row.Scan(&g.ID, &g.CycleID, &g.Title, &g.Description, &g.Priority,
		&g.TargetMetric, &g.TargetValue, &g.CurrentValue, &createdAt)
	if err != nil {
		return g, err
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return g, nil
}

// =============================================================================
// TACTICS
// =============================================================================

func (s *Store) InsertTactic(ctx context.Context, t momentum.Tactic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTactic(ctx, s.db, t)
}

func insertTactic(ctx context.Context, q querier, t momentum.Tactic) error {
	query := `
		INSERT INTO tactics
		(id, goal_id, owner_id, title, description, weight, is_active, version, previous_version_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var prev any
	if t.PreviousVersionID != nil {
		prev = string(*t.PreviousVersionID)
	}

	_, err := q.ExecContext(ctx, query,
		t.ID, t.GoalID, t.OwnerID, t.Title, t.Description,
		t.Weight, t.IsActive, t.Version, prev,
		t.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tactic: %w", err)
	}
	return nil
}

const tacticColumns = `id, goal_id, owner_id, title, description, weight, is_active, version, previous_version_id, created_at`

func (s *Store) GetTactic(ctx context.Context, id momentum.TacticID) (*momentum.Tactic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTactic(ctx, s.db, id)
}

func getTactic(ctx context.Context, q querier, id momentum.TacticID) (*momentum.Tactic, error) {
	row := q.QueryRowContext(ctx, `SELECT `+tacticColumns+` FROM tactics WHERE id = ?`, id)
	t, err := scanTactic(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeactivateTactic(ctx context.Context, id momentum.TacticID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deactivateTactic(ctx, s.db, id)
}

// deactivateTactic is a compare-and-swap on is_active: a concurrent fork
// that already deactivated the revision makes this report false.
func deactivateTactic(ctx context.Context, q querier, id momentum.TacticID) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE tactics SET is_active = FALSE WHERE id = ? AND is_active = TRUE`, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate tactic: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ActiveTactics(ctx context.Context, goalID momentum.GoalID) ([]momentum.Tactic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeTactics(ctx, s.db, goalID)
}

func activeTactics(ctx context.Context, q querier, goalID momentum.GoalID) ([]momentum.Tactic, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+tacticColumns+` FROM tactics
		 WHERE goal_id = ? AND is_active = TRUE ORDER BY created_at ASC`,
		goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tactics: %w", err)
	}
	defer rows.Close()

	var tactics []momentum.Tactic
	for rows.Next() {
		t, err := scanTactic(rows)
		if err != nil {
			return nil, err
		}
		tactics = append(tactics, t)
	}
	return tactics, rows.Err()
}

func scanTactic(row rowScanner) (momentum.Tactic, error) {
	var (
		t         momentum.Tactic
		prev      sql.NullString
		createdAt string
	)
	err := row.Scan(&t.ID, &t.GoalID, &t.OwnerID, &t.Title, &t.Description,
		&t.Weight, &t.IsActive, &t.Version, &prev, &createdAt)
	if err != nil {
		return t, err
	}
	if prev.Valid {
		id := momentum.TacticID(prev.String)
		t.PreviousVersionID = &id
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return t, nil
}

// =============================================================================
// DAILY ACTIONS
// =============================================================================

func (s *Store) InsertActions(ctx context.Context, actions []momentum.DailyAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertActions(ctx, s.db, actions)
}

func insertActions(ctx context.Context, q querier, actions []momentum.DailyAction) error {
	query := `
		INSERT INTO daily_actions
		(id, cycle_id, owner_id, tactic_id, title, action_date, is_completed, completed_at, energy_level, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, a := range actions {
		var tacticID any
		if a.TacticID != nil {
			tacticID = string(*a.TacticID)
		}
		_, err := q.ExecContext(ctx, query,
			a.ID, a.CycleID, a.OwnerID, tacticID, a.Title,
			a.ActionDate.String(), a.IsCompleted,
			nullTime(a.CompletedAt), nullInt(a.EnergyLevel), a.Notes,
			a.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert action: %w", err)
		}
	}
	return nil
}

const actionColumns = `id, cycle_id, owner_id, tactic_id, title, action_date, is_completed, completed_at, energy_level, notes, created_at`

func (s *Store) GetAction(ctx context.Context, id momentum.ActionID) (*momentum.DailyAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAction(ctx, s.db, id)
}

func getAction(ctx context.Context, q querier, id momentum.ActionID) (*momentum.DailyAction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM daily_actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CountActions(ctx context.Context, cycleID momentum.CycleID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countActions(ctx, s.db, cycleID)
}

func countActions(ctx context.Context, q querier, cycleID momentum.CycleID) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM daily_actions WHERE cycle_id = ?`, cycleID).Scan(&count)
	return count, err
}

func (s *Store) ActionsOn(ctx context.Context, cycleID momentum.CycleID, date momentum.Day) ([]momentum.DailyAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return actionsOn(ctx, s.db, cycleID, date)
}

func actionsOn(ctx context.Context, q querier, cycleID momentum.CycleID, date momentum.Day) ([]momentum.DailyAction, error) {
	return queryActions(ctx, q,
		`SELECT `+actionColumns+` FROM daily_actions
		 WHERE cycle_id = ? AND action_date = ? ORDER BY created_at ASC`,
		cycleID, date.String())
}

func (s *Store) ActionsInRange(ctx context.Context, cycleID momentum.CycleID, from, to momentum.Day) ([]momentum.DailyAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return actionsInRange(ctx, s.db, cycleID, from, to)
}

func actionsInRange(ctx context.Context, q querier, cycleID momentum.CycleID, from, to momentum.Day) ([]momentum.DailyAction, error) {
	return queryActions(ctx, q,
		`SELECT `+actionColumns+` FROM daily_actions
		 WHERE cycle_id = ? AND action_date >= ? AND action_date <= ?
		 ORDER BY action_date ASC, created_at ASC`,
		cycleID, from.String(), to.String())
}

func (s *Store) SetActionCompletion(ctx context.Context, id momentum.ActionID, completed bool, completedAt *time.Time, energy *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setActionCompletion(ctx, s.db, id, completed, completedAt, energy)
}

func setActionCompletion(ctx context.Context, q querier, id momentum.ActionID, completed bool, completedAt *time.Time, energy *int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE daily_actions SET is_completed = ?, completed_at = ?, energy_level = ? WHERE id = ?`,
		completed, nullTime(completedAt), nullInt(energy), id)
	if err != nil {
		return fmt.Errorf("failed to set action completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &momentum.NotFoundError{Kind: "action"}
	}
	return nil
}

func queryActions(ctx context.Context, q querier, query string, args ...any) ([]momentum.DailyAction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []momentum.DailyAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func scanAction(row rowScanner) (momentum.DailyAction, error) {
	var (
		a           momentum.DailyAction
		tacticID    sql.NullString
		actionDate  string
		completedAt sql.NullString
		energy      sql.NullInt64
		createdAt   string
	)
	err := row.Scan(&a.ID, &a.CycleID, &a.OwnerID, &tacticID, &a.Title,
		&actionDate, &a.IsCompleted, &completedAt, &energy, &a.Notes, &createdAt)
	if err != nil {
		return a, err
	}
	if tacticID.Valid {
		id := momentum.TacticID(tacticID.String)
		a.TacticID = &id
	}
	a.ActionDate, _ = momentum.ParseDay(actionDate)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		a.CompletedAt = &t
	}
	if energy.Valid {
		e := int(energy.Int64)
		a.EnergyLevel = &e
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return a, nil
}

// =============================================================================
// MOMENTUM CREDITS
// =============================================================================

func (s *Store) InsertCredit(ctx context.Context, c momentum.MomentumCredit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertCredit(ctx, s.db, c)
}

func insertCredit(ctx context.Context, q querier, c momentum.MomentumCredit) error {
	query := `
		INSERT INTO momentum_credits
		(id, owner_id, cycle_id, week_number, reason, applied_at, revoked, revoked_at, revoked_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.OwnerID, c.CycleID, c.WeekNumber, c.Reason,
		c.AppliedAt.UTC().Format(time.RFC3339),
		c.Revoked, nullTime(c.RevokedAt), c.RevokedBy,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return momentum.ErrWeekAlreadyShielded
		}
		return fmt.Errorf("failed to insert credit: %w", err)
	}
	return nil
}

const creditColumns = `id, owner_id, cycle_id, week_number, reason, applied_at, revoked, revoked_at, revoked_by`

func (s *Store) GetCredit(ctx context.Context, id momentum.CreditID) (*momentum.MomentumCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCredit(ctx, s.db, id)
}

func getCredit(ctx context.Context, q querier, id momentum.CreditID) (*momentum.MomentumCredit, error) {
	row := q.QueryRowContext(ctx, `SELECT `+creditColumns+` FROM momentum_credits WHERE id = ?`, id)
	c, err := scanCredit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CountActiveCredits(ctx context.Context, owner momentum.OwnerID, cycleID momentum.CycleID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countActiveCredits(ctx, s.db, owner, cycleID)
}

func countActiveCredits(ctx context.Context, q querier, owner momentum.OwnerID, cycleID momentum.CycleID) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM momentum_credits
		 WHERE owner_id = ? AND cycle_id = ? AND revoked = 0`,
		owner, cycleID).Scan(&count)
	return count, err
}

func (s *Store) ActiveCreditForWeek(ctx context.Context, owner momentum.OwnerID, cycleID momentum.CycleID, week int) (*momentum.MomentumCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeCreditForWeek(ctx, s.db, owner, cycleID, week)
}

func activeCreditForWeek(ctx context.Context, q querier, owner momentum.OwnerID, cycleID momentum.CycleID, week int) (*momentum.MomentumCredit, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+creditColumns+` FROM momentum_credits
		 WHERE owner_id = ? AND cycle_id = ? AND week_number = ? AND revoked = 0
		 LIMIT 1`,
		owner, cycleID, week)
	c, err := scanCredit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreditsByCycle(ctx context.Context, owner momentum.OwnerID, cycleID momentum.CycleID) ([]momentum.MomentumCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return creditsByCycle(ctx, s.db, owner, cycleID)
}

func creditsByCycle(ctx context.Context, q querier, owner momentum.OwnerID, cycleID momentum.CycleID) ([]momentum.MomentumCredit, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+creditColumns+` FROM momentum_credits
		 WHERE owner_id = ? AND cycle_id = ? ORDER BY week_number ASC`,
		owner, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	defer rows.Close()

	var credits []momentum.MomentumCredit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func (s *Store) RevokeCredit(ctx context.Context, id momentum.CreditID, revokedBy string, revokedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return revokeCredit(ctx, s.db, id, revokedBy, revokedAt)
}

// revokeCredit is a compare-and-swap on revoked: an already-revoked credit
// stays untouched and the call reports false.
func revokeCredit(ctx context.Context, q querier, id momentum.CreditID, revokedBy string, revokedAt time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE momentum_credits SET revoked = 1, revoked_at = ?, revoked_by = ?
		 WHERE id = ? AND revoked = 0`,
		revokedAt.UTC().Format(time.RFC3339), revokedBy, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanCredit(row rowScanner) (momentum.MomentumCredit, error) {
	var (
		c         momentum.MomentumCredit
		appliedAt string
		revokedAt sql.NullString
	)
	err := row.Scan(&c.ID, &c.OwnerID, &c.CycleID, &c.WeekNumber, &c.Reason,
		&appliedAt, &c.Revoked, &revokedAt, &c.RevokedBy)
	if err != nil {
		return c, err
	}
	c.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
	if revokedAt.Valid {
		t, _ := time.Parse(time.RFC3339, revokedAt.String)
		c.RevokedAt = &t
	}
	return c, nil
}

// =============================================================================
// WEEKLY SCORES
// =============================================================================

func (s *Store) UpsertWeeklyScore(ctx context.Context, ws momentum.WeeklyScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertWeeklyScore(ctx, s.db, ws)
}

func upsertWeeklyScore(ctx context.Context, q querier, ws momentum.WeeklyScore) error {
	query := `
		INSERT INTO weekly_scores
		(id, owner_id, cycle_id, week_number, week_start, score, tasks_completed, tasks_total, is_shielded, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id, week_number) DO UPDATE SET
			score = excluded.score,
			tasks_completed = excluded.tasks_completed,
			tasks_total = excluded.tasks_total,
			is_shielded = excluded.is_shielded,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		ws.ID, ws.OwnerID, ws.CycleID, ws.WeekNumber,
		ws.WeekStart.String(), ws.Score, ws.TasksCompleted, ws.TasksTotal,
		ws.IsShielded, ws.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert weekly score: %w", err)
	}
	return nil
}

const weeklyScoreColumns = `id, owner_id, cycle_id, week_number, week_start, score, tasks_completed, tasks_total, is_shielded, updated_at`

func (s *Store) WeeklyScoreFor(ctx context.Context, cycleID momentum.CycleID, week int) (*momentum.WeeklyScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return weeklyScoreFor(ctx, s.db, cycleID, week)
}

func weeklyScoreFor(ctx context.Context, q querier, cycleID momentum.CycleID, week int) (*momentum.WeeklyScore, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+weeklyScoreColumns+` FROM weekly_scores WHERE cycle_id = ? AND week_number = ?`,
		cycleID, week)
	ws, err := scanWeeklyScore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *Store) WeeklyScoresByCycle(ctx context.Context, cycleID momentum.CycleID) ([]momentum.WeeklyScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return weeklyScoresByCycle(ctx, s.db, cycleID)
}

func weeklyScoresByCycle(ctx context.Context, q querier, cycleID momentum.CycleID) ([]momentum.WeeklyScore, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+weeklyScoreColumns+` FROM weekly_scores WHERE cycle_id = ? ORDER BY week_number ASC`,
		cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly scores: %w", err)
	}
	defer rows.Close()

	var scores []momentum.WeeklyScore
	for rows.Next() {
		ws, err := scanWeeklyScore(rows)
		if err != nil {
			return nil, err
		}
		scores = append(scores, ws)
	}
	return scores, rows.Err()
}

func (s *Store) RecentScores(ctx context.Context, owner momentum.OwnerID, limit int) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recentScores(ctx, s.db, owner, limit)
}

func recentScores(ctx context.Context, q querier, owner momentum.OwnerID, limit int) ([]int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT score FROM weekly_scores WHERE owner_id = ?
		 ORDER BY week_start DESC LIMIT ?`,
		owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent scores: %w", err)
	}
	defer rows.Close()

	var scores []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		scores = append(scores, v)
	}
	return scores, rows.Err()
}

func scanWeeklyScore(row rowScanner) (momentum.WeeklyScore, error) {
	var (
		ws        momentum.WeeklyScore
		weekStart string
		updatedAt string
	)
	err := row.Scan(&ws.ID, &ws.OwnerID, &ws.CycleID, &ws.WeekNumber,
		&weekStart, &ws.Score, &ws.TasksCompleted, &ws.TasksTotal,
		&ws.IsShielded, &updatedAt)
	if err != nil {
		return ws, err
	}
	ws.WeekStart, _ = momentum.ParseDay(weekStart)
	ws.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return ws, nil
}

// =============================================================================
// PROFILES
// =============================================================================

func (s *Store) GetProfile(ctx context.Context, owner momentum.OwnerID) (*momentum.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProfile(ctx, s.db, owner)
}

func getProfile(ctx context.Context, q querier, owner momentum.OwnerID) (*momentum.Profile, error) {
	var (
		p         momentum.Profile
		updatedAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT owner_id, vision, winning_streak, losing_streak, shield_credits, updated_at
		 FROM profiles WHERE owner_id = ?`, owner,
	).Scan(&p.OwnerID, &p.Vision, &p.WinningStreak, &p.LosingStreak, &p.ShieldCredits, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p momentum.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveProfile(ctx, s.db, p)
}

func saveProfile(ctx context.Context, q querier, p momentum.Profile) error {
	query := `
		INSERT INTO profiles (owner_id, vision, winning_streak, losing_streak, shield_credits, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			vision = excluded.vision,
			winning_streak = excluded.winning_streak,
			losing_streak = excluded.losing_streak,
			shield_credits = excluded.shield_credits,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		p.OwnerID, p.Vision, p.WinningStreak, p.LosingStreak, p.ShieldCredits,
		p.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS (momentum.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(momentum.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every operation against the open transaction, so reads
// inside WithTx observe the transaction's own uncommitted writes.
type txStore struct {
	tx *sql.Tx
}

var _ momentum.Store = (*txStore)(nil)

func (ts *txStore) InsertCycle(ctx context.Context, c momentum.Cycle) error {
	return insertCycle(ctx, ts.tx, c)
}

func (ts *txStore) GetCycle(ctx context.Context, id momentum.CycleID) (*momentum.Cycle, error) {
	return getCycle(ctx, ts.tx, id)
}

func (ts *txStore) ActiveCycle(ctx context.Context, owner momentum.OwnerID) (*momentum.Cycle, error) {
	return activeCycle(ctx, ts.tx, owner)
}

func (ts *txStore) CloseCycle(ctx context.Context, id momentum.CycleID, closedAt time.Time, finalScore string) (bool, error) {
	return closeCycle(ctx, ts.tx, id, closedAt, finalScore)
}

func (ts *txStore) InsertGoal(ctx context.Context, g momentum.Goal) error {
	return insertGoal(ctx, ts.tx, g)
}

func (ts *txStore) GetGoal(ctx context.Context, id momentum.GoalID) (*momentum.Goal, error) {
	return getGoal(ctx, ts.tx, id)
}

func (ts *txStore) GoalsByCycle(ctx context.Context, cycleID momentum.CycleID) ([]momentum.Goal, error) {
	return goalsByCycle(ctx, ts.tx, cycleID)
}

func (ts *txStore) InsertTactic(ctx context.Context, t momentum.Tactic) error {
	return insertTactic(ctx, ts.tx, t)
}

func (ts *txStore) GetTactic(ctx context.Context, id momentum.TacticID) (*momentum.Tactic, error) {
	return getTactic(ctx, ts.tx, id)
}

func (ts *txStore) DeactivateTactic(ctx context.Context, id momentum.TacticID) (bool, error) {
	return deactivateTactic(ctx, ts.tx, id)
}

func (ts *txStore) ActiveTactics(ctx context.Context, goalID momentum.GoalID) ([]momentum.Tactic, error) {
	return activeTactics(ctx, ts.tx, goalID)
}

func (ts *txStore) InsertActions(ctx context.Context, actions []momentum.DailyAction) error {
	return insertActions(ctx, ts.tx, actions)
}

func (ts *txStore) GetAction(ctx context.Context, id momentum.ActionID) (*momentum.DailyAction, error) {
	return getAction(ctx, ts.tx, id)
}

func (ts *txStore) CountActions(ctx context.Context, cycleID momentum.CycleID) (int, error) {
	return countActions(ctx, ts.tx, cycleID)
}

func (ts *txStore) ActionsOn(ctx context.Context, cycleID momentum.CycleID, date momentum.Day) ([]momentum.DailyAction, error) {
	return actionsOn(ctx, ts.tx, cycleID, date)
}

func (ts *txStore) ActionsInRange(ctx context.Context, cycleID momentum.CycleID, from, to momentum.Day) ([]momentum.DailyAction, error) {
	return actionsInRange(ctx, ts.tx, cycleID, from, to)
}

func (ts *txStore) SetActionCompletion(ctx context.Context, id momentum.ActionID, completed bool, completedAt *time.Time, energy *int) error {
	return setActionCompletion(ctx, ts.tx, id, completed, completedAt, energy)
}

func (ts *txStore) InsertCredit(ctx context.Context, c momentum.MomentumCredit) error {
	return insertCredit(ctx, ts.tx, c)
}

func (ts *txStore) GetCredit(ctx context.Context, id momentum.CreditID) (*momentum.MomentumCredit, error) {
	return getCredit(ctx, ts.tx, id)
}

func (ts *txStore) CountActiveCredits(ctx context.Context, owner momentum.OwnerID, cycleID momentum.CycleID) (int, error) {
	return countActiveCredits(ctx, ts.tx, owner, cycleID)
}

func (ts *txStore) ActiveCreditForWeek(ctx context.Context, owner momentum.OwnerID, cycleID momentum.CycleID, week int) (*momentum.MomentumCredit, error) {
	return activeCreditForWeek(ctx, ts.tx, owner, cycleID, week)
}

func (ts *txStore) CreditsByCycle(ctx context.Context, owner momentum.OwnerID, cycleID momentum.CycleID) ([]momentum.MomentumCredit, error) {
	return creditsByCycle(ctx, ts.tx, owner, cycleID)
}

func (ts *txStore) RevokeCredit(ctx context.Context, id momentum.CreditID, revokedBy string, revokedAt time.Time) (bool, error) {
	return revokeCredit(ctx, ts.tx, id, revokedBy, revokedAt)
}

func (ts *txStore) UpsertWeeklyScore(ctx context.Context, ws momentum.WeeklyScore) error {
	return upsertWeeklyScore(ctx, ts.tx, ws)
}

func (ts *txStore) WeeklyScoreFor(ctx context.Context, cycleID momentum.CycleID, week int) (*momentum.WeeklyScore, error) {
	return weeklyScoreFor(ctx, ts.tx, cycleID, week)
}

func (ts *txStore) WeeklyScoresByCycle(ctx context.Context, cycleID momentum.CycleID) ([]momentum.WeeklyScore, error) {
	return weeklyScoresByCycle(ctx, ts.tx, cycleID)
}

func (ts *txStore) RecentScores(ctx context.Context, owner momentum.OwnerID, limit int) ([]int, error) {
	return recentScores(ctx, ts.tx, owner, limit)
}

func (ts *txStore) GetProfile(ctx context.Context, owner momentum.OwnerID) (*momentum.Profile, error) {
	return getProfile(ctx, ts.tx, owner)
}

func (ts *txStore) SaveProfile(ctx context.Context, p momentum.Profile) error {
	return saveProfile(ctx, ts.tx, p)
}

// =============================================================================
// UTILITIES
// =============================================================================

// ActiveOwners returns the owners that currently have an active cycle.
// Used by the background refresher to know whose caches to recompute.
func (s *Store) ActiveOwners(ctx context.Context) ([]momentum.OwnerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT owner_id FROM cycles WHERE status = 'active' ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active owners: %w", err)
	}
	defer rows.Close()

	var owners []momentum.OwnerID
	for rows.Next() {
		var o momentum.OwnerID
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"weekly_scores", "momentum_credits", "daily_actions", "tactics", "goals", "cycles", "profiles"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mcp-meal-dialog/internal/models"
)

// ErrNotFound is returned when a session has no stored state.
var ErrNotFound = errors.New("not found")

type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db, now: time.Now}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        session_id TEXT PRIMARY KEY,
        meal_id TEXT NOT NULL,
        state TEXT NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS diary_entries (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        meal_id TEXT NOT NULL,
        item_id TEXT NOT NULL,
        fineli_food_id INTEGER NOT NULL,
        name TEXT NOT NULL,
        names TEXT,
        portion_grams REAL NOT NULL,
        portion_unit_code TEXT,
        portion_unit_label TEXT,
        portion_amount REAL,
        nutrients_per_100g TEXT,
        computed_nutrients TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        UNIQUE (meal_id, item_id)
    );

    CREATE INDEX IF NOT EXISTS idx_diary_entries_meal_id ON diary_entries(meal_id);
    CREATE INDEX IF NOT EXISTS idx_diary_entries_session_id ON diary_entries(session_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SaveTurn stores one turn's outcome in a single transaction: entries of
// removed items are deleted, resolved items upserted and the state saved.
func (s *SQLiteStorage) SaveTurn(ctx context.Context, st models.ConversationState, removedItemIDs []string, items []models.ResolvedItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteEntries(ctx, tx, st.MealID, removedItemIDs); err != nil {
		return err
	}
	if err := s.upsertEntries(ctx, tx, st.SessionID, st.MealID, items); err != nil {
		return err
	}
	if err := s.saveState(ctx, tx, st); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

// SaveState stores the conversation state verbatim, replacing any earlier
// state of the same session.
func (s *SQLiteStorage) SaveState(ctx context.Context, st models.ConversationState) error {
	return s.saveState(ctx, s.db, st)
}

func (s *SQLiteStorage) saveState(ctx context.Context, ex execer, st models.ConversationState) error {
	if st.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	ts := s.timestamp()
	_, err = ex.ExecContext(ctx, `
        INSERT INTO conversations (session_id, meal_id, state, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(session_id) DO UPDATE SET
            meal_id = excluded.meal_id,
            state = excluded.state,
            updated_at = excluded.updated_at
    `, st.SessionID, st.MealID, string(data), ts, ts)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) LoadState(ctx context.Context, sessionID string) (models.ConversationState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM conversations WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConversationState{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("failed to load state: %w", err)
	}
	var st models.ConversationState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return models.ConversationState{}, fmt.Errorf("failed to decode state: %w", err)
	}
	return st, nil
}

func (s *SQLiteStorage) DeleteState(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// UpsertEntries writes one diary entry per resolved item. An item that is
// resolved again (a portion update) replaces its entry and keeps its id.
func (s *SQLiteStorage) UpsertEntries(ctx context.Context, sessionID, mealID string, items []models.ResolvedItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsertEntries(ctx, tx, sessionID, mealID, items); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) upsertEntries(ctx context.Context, ex execer, sessionID, mealID string, items []models.ResolvedItem) error {
	query := `
        INSERT INTO diary_entries (
            id, session_id, meal_id, item_id, fineli_food_id, name, names,
            portion_grams, portion_unit_code, portion_unit_label, portion_amount,
            nutrients_per_100g, computed_nutrients, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(meal_id, item_id) DO UPDATE SET
            fineli_food_id = excluded.fineli_food_id,
            name = excluded.name,
            names = excluded.names,
            portion_grams = excluded.portion_grams,
            portion_unit_code = excluded.portion_unit_code,
            portion_unit_label = excluded.portion_unit_label,
            portion_amount = excluded.portion_amount,
            nutrients_per_100g = excluded.nutrients_per_100g,
            computed_nutrients = excluded.computed_nutrients,
            updated_at = excluded.updated_at
    `
	ts := s.timestamp()
	for _, it := range items {
		names, err := marshalJSON(it.Names)
		if err != nil {
			return err
		}
		per100, err := marshalJSON(it.NutrientsPer100g)
		if err != nil {
			return err
		}
		computed, err := marshalJSON(it.ComputedNutrients)
		if err != nil {
			return err
		}
		_, err = ex.ExecContext(ctx, query,
			uuid.NewString(), sessionID, mealID, it.ItemID, it.FineliFoodID, it.Name, names,
			it.PortionGrams, it.PortionUnitCode, it.PortionUnitLabel, it.PortionAmount,
			per100, computed, ts, ts)
		if err != nil {
			return fmt.Errorf("failed to upsert entry %s: %w", it.ItemID, err)
		}
	}
	return nil
}

// DeleteEntries removes the entries of the given items of a meal.
func (s *SQLiteStorage) DeleteEntries(ctx context.Context, mealID string, itemIDs []string) error {
	return s.deleteEntries(ctx, s.db, mealID, itemIDs)
}

func (s *SQLiteStorage) deleteEntries(ctx context.Context, ex execer, mealID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	args := make([]interface{}, 0, len(itemIDs)+1)
	args = append(args, mealID)
	for _, id := range itemIDs {
		args = append(args, id)
	}
	query := fmt.Sprintf(`DELETE FROM diary_entries WHERE meal_id = ? AND item_id IN (%s)`, placeholders)
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	return nil
}

// ListEntries returns a meal's entries in the order they were first written.
func (s *SQLiteStorage) ListEntries(ctx context.Context, mealID string) ([]models.DiaryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, session_id, meal_id, item_id, fineli_food_id, name, names,
               portion_grams, portion_unit_code, portion_unit_label, portion_amount,
               nutrients_per_100g, computed_nutrients, created_at, updated_at
        FROM diary_entries
        WHERE meal_id = ?
        ORDER BY created_at, rowid
    `, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.DiaryEntry
	for rows.Next() {
		var e models.DiaryEntry
		var names, per100, computed, unitCode, unitLabel sql.NullString
		var amount sql.NullFloat64
		var createdAtStr, updatedAtStr string

		err := rows.Scan(
			&e.ID, &e.SessionID, &e.MealID, &e.ItemID, &e.FineliFoodID, &e.Name, &names,
			&e.PortionGrams, &unitCode, &unitLabel, &amount,
			&per100, &computed, &createdAtStr, &updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.PortionUnitCode = unitCode.String
		e.PortionUnitLabel = unitLabel.String
		e.PortionAmount = amount.Float64

		if err := unmarshalJSON(names, &e.Names); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(per100, &e.NutrientsPer100g); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(computed, &e.ComputedNutrients); err != nil {
			return nil, err
		}

		// Parse timestamps
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	return entries, nil
}

func marshalJSON(v interface{}) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal column: %w", err)
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalJSON(col sql.NullString, target interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), target); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

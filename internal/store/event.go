package store

import (
	"database/sql"
	"time"
)

// Event types.
const (
	EventDetection   = "detection"
	EventRecognition = "recognition"
)

// Event is one logged face observation.
type Event struct {
	ID         int64
	Timestamp  time.Time
	Type       string
	Name       string
	PersonID   string
	Confidence float64
	Recognized bool
	Top        int
	Right      int
	Bottom     int
	Left       int
}

// EventFilter narrows List results. Zero values mean no limit.
type EventFilter struct {
	Since time.Time
	Name  string
	Limit int
}

// EventStats summarizes the event log.
type EventStats struct {
	TotalDetections   int `json:"total_detections"`
	TotalRecognitions int `json:"total_recognitions"`
	UnknownFaces      int `json:"unknown_faces"`
	UniquePeople      int `json:"unique_people"`
}

// EventRepository provides access to the events table.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create inserts an event and fills in its ID.
func (r *EventRepository) Create(e *Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO events (timestamp, event_type, name, person_id, confidence, recognized,
		 loc_top, loc_right, loc_bottom, loc_left)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC(), e.Type, e.Name, e.PersonID, e.Confidence, boolToInt(e.Recognized),
		e.Top, e.Right, e.Bottom, e.Left,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// List returns events newest first.
func (r *EventRepository) List(f EventFilter) ([]*Event, error) {
	query := `SELECT id, timestamp, event_type, name, person_id, confidence, recognized,
		loc_top, loc_right, loc_bottom, loc_left FROM events WHERE 1=1`
	var args []any

	if !f.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.Since.UTC())
	}
	if f.Name != "" {
		query += ` AND name = ?`
		args = append(args, f.Name)
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var recognized int
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &e.Name, &e.PersonID, &e.Confidence, &recognized,
			&e.Top, &e.Right, &e.Bottom, &e.Left); err != nil {
			return nil, err
		}
		e.Recognized = recognized != 0
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Stats aggregates counts over the whole table.
func (r *EventRepository) Stats() (EventStats, error) {
	var st EventStats
	err := r.db.QueryRow(
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN recognized = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN recognized = 0 THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT CASE WHEN recognized = 1 THEN name END)
		 FROM events`,
	).Scan(&st.TotalDetections, &st.TotalRecognitions, &st.UnknownFaces, &st.UniquePeople)
	return st, err
}

// DeleteAll clears the event log and returns the number of rows removed.
func (r *EventRepository) DeleteAll() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM events`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

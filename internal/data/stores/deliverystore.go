// Package stores provides sqlite-backed persistence for relay.
package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/relay/internal/data/db"
	"github.com/colonyops/relay/internal/tracker"
)

// Delivery is one recorded tracker write attempt.
type Delivery struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Body      string    `json:"body,omitempty"`
	Action    string    `json:"action,omitempty"`
	Parameter string    `json:"parameter,omitempty"`
	Result    string    `json:"result,omitempty"`
	Ephemeral bool      `json:"ephemeral"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryStore records tracker write attempts for later inspection. It is
// observational only: recording failures are logged and swallowed so the
// pipeline never blocks on the local database.
type DeliveryStore struct {
	db  *db.DB
	log zerolog.Logger
}

// NewDeliveryStore creates a delivery store.
func NewDeliveryStore(database *db.DB, log zerolog.Logger) *DeliveryStore {
	return &DeliveryStore{
		db:  database,
		log: log.With().Str("component", "delivery-store").Logger(),
	}
}

// RecordDelivery implements the bridge's delivery recorder.
func (s *DeliveryStore) RecordDelivery(ctx context.Context, activity tracker.Activity, ok bool, errMsg string) {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO deliveries (session_id, type, body, action, parameter, result, ephemeral, ok, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activity.AgentSessionID,
		string(activity.Content.Type),
		activity.Content.Body,
		activity.Content.Action,
		activity.Content.Parameter,
		activity.Content.Result,
		activity.Ephemeral,
		ok,
		errMsg,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.log.Warn().Err(err).Msg("record delivery")
	}
}

// List returns the most recent deliveries for a session, newest first. A
// limit of zero returns the latest 50.
func (s *DeliveryStore) List(ctx context.Context, sessionID string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, session_id, type, body, action, parameter, result, ephemeral, ok, error, created_at
		FROM deliveries
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deliveries []Delivery
	for rows.Next() {
		var (
			d         Delivery
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Type, &d.Body, &d.Action, &d.Parameter,
			&d.Result, &d.Ephemeral, &d.OK, &d.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}

		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/sirupsen/logrus"
)

// Schema creates the tables used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id                  TEXT PRIMARY KEY,
	tenant_id           TEXT NOT NULL,
	customer_ref        TEXT NOT NULL,
	subscription_id     TEXT NOT NULL DEFAULT '',
	reason              TEXT NOT NULL,
	offer_type          TEXT NOT NULL,
	offer_value         TEXT NOT NULL,
	duration_months     INTEGER NOT NULL DEFAULT 0,
	message             TEXT NOT NULL DEFAULT '',
	matched_reason_key  TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	revenue_saved_minor BIGINT NOT NULL DEFAULT 0,
	currency            TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	responded_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS conversations_tenant_created ON conversations (tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	type            TEXT NOT NULL,
	data            JSONB,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS events_tenant_created ON events (tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS playbooks (
	tenant_id  TEXT PRIMARY KEY,
	rules      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const conversationColumns = `id, tenant_id, customer_ref, subscription_id, reason, offer_type, offer_value,
	duration_months, message, matched_reason_key, status, revenue_saved_minor, currency, created_at, responded_at`

// PostgresStore implements the conversation, event and playbook stores on PostgreSQL.
// It works with any database/sql driver; the service opens it with pgx.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates missing tables.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*conversation.Conversation, error) {
	var (
		c           conversation.Conversation
		offerType   string
		status      string
		respondedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.CustomerRef, &c.SubscriptionID, &c.Reason, &offerType, &c.OfferValue,
		&c.DurationMonths, &c.Message, &c.MatchedReasonKey, &status, &c.RevenueSavedMinor, &c.Currency,
		&c.CreatedAt, &respondedAt)
	if err != nil {
		return nil, err
	}
	c.OfferType = playbook.OfferType(offerType)
	c.Status = conversation.Status(status)
	if respondedAt.Valid {
		t := respondedAt.Time
		c.RespondedAt = &t
	}
	return &c, nil
}

// InsertConversation stores a new conversation.
func (s *PostgresStore) InsertConversation(ctx context.Context, c *conversation.Conversation) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO conversations (`+conversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.TenantID, c.CustomerRef, c.SubscriptionID, c.Reason, string(c.OfferType), c.OfferValue,
		c.DurationMonths, c.Message, c.MatchedReasonKey, string(c.Status), c.RevenueSavedMinor, c.Currency,
		c.CreatedAt, nullTime(c.RespondedAt),
	)
	if err != nil {
		logrus.Errorf("failed to insert conversation %s: %v", c.ID, err)
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// GetConversation loads a conversation by id.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// UpdateConversation applies patch if the stored status equals expected.
func (s *PostgresStore) UpdateConversation(ctx context.Context, id string, patch conversation.Patch, expected conversation.Status) (*conversation.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE conversations SET
			status = $1,
			revenue_saved_minor = COALESCE($2, revenue_saved_minor),
			currency = COALESCE($3, currency),
			subscription_id = COALESCE($4, subscription_id),
			responded_at = COALESCE($5, responded_at)
		WHERE id = $6 AND status = $7
		RETURNING `+conversationColumns,
		string(patch.Status), nullInt64(patch.RevenueSavedMinor), nullString(patch.Currency),
		nullString(patch.SubscriptionID), nullTime(patch.RespondedAt), id, string(expected),
	)

	c, err := scanConversation(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logrus.Errorf("failed to update conversation %s: %v", id, err)
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check conversation: %w", err)
	}
	if !exists {
		return nil, conversation.ErrNotFound
	}
	return nil, conversation.ErrStatusConflict
}

// QueryConversations returns a tenant's newest conversations.
func (s *PostgresStore) QueryConversations(ctx context.Context, tenantID string, limit int) ([]*conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	out := []*conversation.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// QueryTenantAnalytics aggregates the tenant's conversations.
func (s *PostgresStore) QueryTenantAnalytics(ctx context.Context, tenantID string) (*conversation.Analytics, error) {
	a := &conversation.Analytics{}
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'accepted'),
			COUNT(*) FILTER (WHERE status = 'declined'),
			COALESCE(SUM(revenue_saved_minor) FILTER (WHERE status = 'accepted'), 0)
		FROM conversations WHERE tenant_id = $1`, tenantID,
	).Scan(&a.Attempts, &a.Saves, &a.Declines, &a.RevenueSavedMinor)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics: %w", err)
	}
	a.Pending = a.Attempts - a.Saves - a.Declines
	a.ComputeSaveRate()
	return a, nil
}

// InsertEvent appends an event.
func (s *PostgresStore) InsertEvent(ctx context.Context, e *conversation.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO events (id, tenant_id, conversation_id, type, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.TenantID, e.ConversationID, e.Type, data, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// QueryEvents returns a tenant's newest events.
func (s *PostgresStore) QueryEvents(ctx context.Context, tenantID string, limit int) ([]*conversation.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tenant_id, conversation_id, type, data, created_at FROM events
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	out := []*conversation.Event{}
	for rows.Next() {
		var (
			e    conversation.Event
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ConversationID, &e.Type, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				logrus.Warnf("event %s has unreadable data: %v", e.ID, err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// GetPlaybookRules returns the rules saved for a tenant, or playbook.ErrNoRules.
func (s *PostgresStore) GetPlaybookRules(ctx context.Context, tenantID string) ([]playbook.Rule, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT rules FROM playbooks WHERE tenant_id = $1`, tenantID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, playbook.ErrNoRules
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playbook: %w", err)
	}

	var rules []playbook.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playbook: %w", err)
	}
	return rules, nil
}

// SavePlaybookRules validates and replaces a tenant's rules.
func (s *PostgresStore) SavePlaybookRules(ctx context.Context, tenantID string, rules []playbook.Rule) error {
	if _, err := playbook.NewTable(tenantID, rules); err != nil {
		return err
	}

	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to marshal playbook: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO playbooks (tenant_id, rules, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE SET rules = EXCLUDED.rules, updated_at = EXCLUDED.updated_at`,
		tenantID, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save playbook: %w", err)
	}

	logrus.Infof("saved %d playbook rules for tenant %s", len(rules), tenantID)
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

package postgres

import (
	"context"
	"database/sql"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// PostgresRuleStore implements store.RuleStore using PostgreSQL.
type PostgresRuleStore struct {
	db store.DBTX
}

// NewPostgresRuleStore creates a new PostgresRuleStore.
func NewPostgresRuleStore(db store.DBTX) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

// WithTx returns a RuleStore that uses the provided transaction.
func (s *PostgresRuleStore) WithTx(tx *sql.Tx) store.RuleStore {
	return &PostgresRuleStore{db: tx}
}

// ListAttachmentRules returns the enabled attachment rules for the given
// tenant and sender, ordered by rule_order ascending. The explicit order
// column breaks ties, never discovery order.
func (s *PostgresRuleStore) ListAttachmentRules(ctx context.Context, tenantID uuid.UUID, sender string) ([]*domain.AttachmentRule, error) {
	query := `
		SELECT id, tenant_id, sender_address, filename_pattern, rule_order,
			priority, source_tag, dest_tag, enabled
		FROM attachment_rules
		WHERE tenant_id = $1 AND sender_address = $2 AND enabled
		ORDER BY rule_order ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, sender)
	if err != nil {
		return nil, store.NewStoreError("attachment_rule", "list", "list query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []*domain.AttachmentRule
	for rows.Next() {
		var r domain.AttachmentRule
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.SenderAddress, &r.FilenamePattern,
			&r.RuleOrder, &r.Priority, &r.SourceTag, &r.DestTag, &r.Enabled,
		); err != nil {
			return nil, store.NewStoreError("attachment_rule", "list", "row scan failed", err)
		}
		rules = append(rules, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("attachment_rule", "list", "row iteration failed", err)
	}

	return rules, nil
}

// ListNotificationRules returns the enabled notification rules for the
// given tenant and lifecycle event.
func (s *PostgresRuleStore) ListNotificationRules(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*domain.NotificationRule, error) {
	query := `
		SELECT id, tenant_id, event_type, channel, target,
			template_subject, template_body, enabled
		FROM notification_rules
		WHERE tenant_id = $1 AND event_type = $2 AND enabled
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, eventType)
	if err != nil {
		return nil, store.NewStoreError("notification_rule", "list", "list query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []*domain.NotificationRule
	for rows.Next() {
		var r domain.NotificationRule
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.EventType, &r.Channel, &r.Target,
			&r.TemplateSubject, &r.TemplateBody, &r.Enabled,
		); err != nil {
			return nil, store.NewStoreError("notification_rule", "list", "row scan failed", err)
		}
		rules = append(rules, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("notification_rule", "list", "row iteration failed", err)
	}

	return rules, nil
}

// PostgresCallbackStore implements store.CallbackStore using PostgreSQL.
type PostgresCallbackStore struct {
	db store.DBTX
}

// NewPostgresCallbackStore creates a new PostgresCallbackStore.
func NewPostgresCallbackStore(db store.DBTX) *PostgresCallbackStore {
	return &PostgresCallbackStore{db: db}
}

// WithTx returns a CallbackStore that uses the provided transaction.
func (s *PostgresCallbackStore) WithTx(tx *sql.Tx) store.CallbackStore {
	return &PostgresCallbackStore{db: tx}
}

// Create persists a callback record.
func (s *PostgresCallbackStore) Create(ctx context.Context, callback *domain.WebhookCallback) error {
	query := `
		INSERT INTO webhook_callbacks (id, correlation_id, status, reference, message, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		callback.ID, callback.CorrelationID, callback.Status,
		callback.Reference, callback.Message, callback.ReceivedAt,
	)
	if err != nil {
		return store.NewStoreError("webhook_callback", "create", "insert failed", err)
	}

	return nil
}

// Package notify fans lifecycle events out to the tenant's configured
// notification channels. Dispatch writes outbox rows inside the caller's
// transaction; actual delivery happens later in the outbox dispatcher.
package notify

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/store"
	"github.com/google/uuid"
)

// Dispatcher creates one outbox row per matching notification rule.
type Dispatcher struct {
	rules       store.RuleStore
	outbox      store.OutboxStore
	maxAttempts int
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher. maxAttempts is the delivery budget
// stamped on every created outbox row.
func NewDispatcher(rules store.RuleStore, outbox store.OutboxStore, maxAttempts int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		rules:       rules,
		outbox:      outbox,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "notify"),
	}
}

// Dispatch creates one PENDING outbox row for every enabled notification
// rule the tenant has for eventType. It must be called inside the
// transaction that commits the state change being reported; if that
// transaction rolls back, so do the rows. A tenant with no rules for the
// event is a no-op.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	tx *sql.Tx,
	tenantID uuid.UUID,
	entityType string, entityID uuid.UUID,
	eventType string,
	data map[string]any,
) error {
	rules, err := d.rules.WithTx(tx).ListNotificationRules(ctx, tenantID, eventType)
	if err != nil {
		return fmt.Errorf("failed to load notification rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	outbox := d.outbox.WithTx(tx)
	for _, rule := range rules {
		event, err := d.buildEvent(tenantID, entityType, entityID, eventType, rule, payload, data)
		if err != nil {
			return err
		}
		if err := outbox.Create(ctx, event); err != nil {
			return fmt.Errorf("failed to create outbox row: %w", err)
		}
		d.logger.Info("notification queued",
			"event_id", event.ID,
			"tenant_id", tenantID,
			"event_type", eventType,
			"channel", rule.Channel,
			"target", rule.Target)
	}
	return nil
}

// buildEvent renders the rule's templates and assembles a self-contained
// outbox row: senders read only the row, never the rule.
func (d *Dispatcher) buildEvent(
	tenantID uuid.UUID,
	entityType string, entityID uuid.UUID,
	eventType string,
	rule *domain.NotificationRule,
	payload json.RawMessage,
	data map[string]any,
) (*domain.WebhookEvent, error) {
	subject := d.render(rule.TemplateSubject, data, eventType)

	// Webhook targets get the machine payload; human channels get the
	// rendered body, stored as a JSON string so the row stays uniform.
	body := payload
	if rule.Channel != domain.ChannelWebhook {
		rendered := d.render(rule.TemplateBody, data, string(payload))
		encoded, err := json.Marshal(rendered)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rendered body: %w", err)
		}
		body = encoded
	}

	return domain.NewWebhookEvent(
		tenantID, entityType, entityID, eventType,
		rule.Channel, rule.Target, subject, body, d.maxAttempts,
	)
}

// render executes a rule template over the event data, falling back to
// fallback when the template is empty or broken. A malformed template is
// a configuration problem and must not lose the notification.
func (d *Dispatcher) render(tmpl string, data map[string]any, fallback string) string {
	if tmpl == "" {
		return fallback
	}
	parsed, err := template.New("notification").Parse(tmpl)
	if err != nil {
		d.logger.Warn("invalid notification template, using fallback", "error", err)
		return fallback
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, data); err != nil {
		d.logger.Warn("notification template execution failed, using fallback", "error", err)
		return fallback
	}
	return buf.String()
}

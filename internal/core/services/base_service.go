package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
)

// newOutboxEvent marshals a domain event into a pending outbox record so it
// can be staged inside the unit of work that produced it.
func newOutboxEvent(event domain.DomainEvent) (domain.OutboxEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("failed to marshal event %s: %w", event.EventType, err)
	}
	return domain.OutboxEvent{
		EventID:     uuid.NewString(),
		EventType:   event.EventType,
		AggregateID: event.EntityID,
		Payload:     payload,
		Status:      domain.OutboxPending,
		CreatedAt:   event.OccurredAt,
	}, nil
}

// newTransactionNumber generates a human-readable transaction number.
func newTransactionNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("TXN-%s-%s", now.UTC().Format("20060102"), suffix)
}

// newReceiptNumber generates a human-readable receipt number.
func newReceiptNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("RCP-%s-%s", now.UTC().Format("20060102"), suffix)
}

// staticAuthorityResolver resolves approval levels from a fixed actor→level
// map, typically loaded from configuration. It fails closed: unknown actors
// get no level.
type staticAuthorityResolver struct {
	levels map[string]domain.ApprovalLevel
}

// NewStaticAuthorityResolver creates an AuthorityResolver over the given map.
func NewStaticAuthorityResolver(levels map[string]domain.ApprovalLevel) portssvc.AuthorityResolver {
	copied := make(map[string]domain.ApprovalLevel, len(levels))
	for actor, level := range levels {
		copied[actor] = level
	}
	return &staticAuthorityResolver{levels: copied}
}

var _ portssvc.AuthorityResolver = (*staticAuthorityResolver)(nil)

func (r *staticAuthorityResolver) LevelFor(_ context.Context, actor string) (domain.ApprovalLevel, error) {
	level, ok := r.levels[actor]
	if !ok {
		return "", fmt.Errorf("%w: no approval level on record for actor %s", apperrors.ErrAuthority, actor)
	}
	return level, nil
}

package usecase

import (
	"context"
	"fmt"

	"InfoSpider/internal/config"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/ports"
)

// Selector picks the next delivery batch for a content type: undelivered
// records, oldest first, capped by the per-type quota.
type Selector struct {
	ledger ports.Ledger
	quotas config.QuotaConfig
}

// NewSelector wires the ledger and the quota table.
func NewSelector(ledger ports.Ledger, quotas config.QuotaConfig) *Selector {
	return &Selector{ledger: ledger, quotas: quotas}
}

// Pick returns up to quota records awaiting delivery. A zero quota disables
// delivery for that type.
func (s *Selector) Pick(ctx context.Context, ct domain.ContentType) ([]domain.Record, error) {
	limit := s.quotas.Limit(ct)
	if limit <= 0 {
		return nil, nil
	}
	records, err := s.ledger.SelectUndelivered(ctx, ct, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting %s batch: %w", ct, err)
	}
	return records, nil
}

package ports

import (
	"context"
	"time"

	"InfoSpider/internal/domain"
)

// DeliveryOutcome reports what happened to one webhook payload.
type DeliveryOutcome string

const (
	DeliveryDelivered DeliveryOutcome = "delivered"
	DeliverySkipped   DeliveryOutcome = "skipped"
	DeliveryFailed    DeliveryOutcome = "failed"
)

// Ledger is the durable identity store tracking what was collected and what
// has already been delivered.
type Ledger interface {
	// Upsert persists a record under its identity. Re-seen identities refresh
	// mutable fields but never regress delivery state. Reports whether a new
	// row was created.
	Upsert(ctx context.Context, rec domain.Record) (bool, error)

	// SelectUndelivered returns up to limit stored-but-undelivered records of
	// one content type, oldest first-seen first.
	SelectUndelivered(ctx context.Context, ct domain.ContentType, limit int) ([]domain.Record, error)

	// MarkDelivered transitions the given identities to delivered. Identities
	// already delivered (or unknown) are ignored.
	MarkDelivered(ctx context.Context, ct domain.ContentType, identities []string, at time.Time) error

	// ListRecent exposes the archive view for the site renderer.
	ListRecent(ctx context.Context, ct domain.ContentType, limit int) ([]domain.Record, error)

	// Ping verifies the store is reachable before a run starts.
	Ping(ctx context.Context) error
}

// Notifier delivers selected records to the chat webhook.
type Notifier interface {
	PublishNews(ctx context.Context, items []domain.Record) (DeliveryOutcome, error)
	PublishDigest(ctx context.Context, papers, patents []domain.Record) (DeliveryOutcome, error)
	PublishText(ctx context.Context, text string) error
}

// ArchiveRenderer produces the static browsable archive from ledger reads.
type ArchiveRenderer interface {
	Generate(ctx context.Context) error
}

// Scheduler controls when pipeline runs execute in daemon mode.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

package cron

import (
	"context"
	"time"

	"github.com/aristath/ledgercore/internal/backup"
	"github.com/aristath/ledgercore/internal/events"
)

// AccountLister resolves the account ids a full recalculation should cover.
type AccountLister interface {
	ListNonArchived(ctx context.Context) ([]AccountRef, error)
}

// AccountRef is the minimal account identity a recalc job needs.
type AccountRef struct {
	ID string
}

// FullRecalcJob publishes an AccountsChanged domain event for every
// non-archived account, driving the same debounced queue pipeline a
// user-triggered account edit would, rather than duplicating the
// snapshot/valuation orchestration the queue.Manager already owns.
type FullRecalcJob struct {
	Tx       events.DomainEventTx
	Accounts AccountLister
}

func (j *FullRecalcJob) Name() string { return "full_recalc" }

func (j *FullRecalcJob) Run(ctx context.Context) error {
	accounts, err := j.Accounts.ListNonArchived(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	j.Tx.Send(events.DomainEvent{
		Kind:       events.AccountsChanged,
		AccountIDs: ids,
		EmittedAt:  time.Now(),
	})
	return nil
}

// BackupJob runs the periodic S3 export and retention rotation.
type BackupJob struct {
	Service       *backup.Service
	RetentionDays int
}

func (j *BackupJob) Name() string { return "backup" }

func (j *BackupJob) Run(ctx context.Context) error {
	if err := j.Service.Run(ctx); err != nil {
		return err
	}
	return j.Service.Rotate(ctx, j.RetentionDays)
}

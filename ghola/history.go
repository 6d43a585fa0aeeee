package ghola

import (
	"context"
	"fmt"
	"time"

	"github.com/seb7887/lazarus/sietch"
)

// Cycle is one deletion followed by a restoration.
type Cycle struct {
	DeletedAt     time.Time `json:"deleted_at"`
	RestoredAt    time.Time `json:"restored_at"`
	CycleDuration string    `json:"cycle_duration"`
}

// HistoryReport summarizes the deletion history of a record.
type HistoryReport struct {
	IsCurrentlyDeleted bool       `json:"is_currently_deleted"`
	IsRestored         bool       `json:"is_restored"`
	LastRestoration    *time.Time `json:"last_restoration"`
	LastDeletion       *time.Time `json:"last_deletion"`
	// DeletionRestorationCycle is set only when the last restoration
	// happened after the last deletion.
	DeletionRestorationCycle *Cycle `json:"deletion_restoration_cycle"`
}

// History builds the report of sd.
func History(sd sietch.SoftDeletable) HistoryReport {
	h := HistoryReport{
		IsCurrentlyDeleted: sd.IsDeleted(),
		IsRestored:         sd.IsRestored(),
		LastRestoration:    sd.GetRestoredAt(),
		LastDeletion:       sd.GetLastDeletionAt(),
	}
	if h.LastRestoration != nil && h.LastDeletion != nil && h.LastRestoration.After(*h.LastDeletion) {
		h.DeletionRestorationCycle = &Cycle{
			DeletedAt:     *h.LastDeletion,
			RestoredAt:    *h.LastRestoration,
			CycleDuration: h.LastRestoration.Sub(*h.LastDeletion).String(),
		}
	}
	return h
}

// History loads a record and returns its history report.
func (e *Engine) History(ctx context.Context, typeName, id string) (HistoryReport, error) {
	t, ok := e.registry.Lookup(typeName)
	if !ok {
		return HistoryReport{}, fmt.Errorf("%w: %s", sietch.ErrUnknownEntityType, typeName)
	}
	if !t.SoftDeletable() {
		return HistoryReport{}, fmt.Errorf("%w: %s", sietch.ErrNotSoftDeletable, typeName)
	}
	ent, err := e.store.Get(ctx, t, id)
	if err != nil {
		return HistoryReport{}, fmt.Errorf("history %s#%s: %w", typeName, id, err)
	}
	sd, _ := sietch.AsSoftDeletable(ent)
	return History(sd), nil
}

package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

var errNoTx = errors.New("outbox: transaction required")

// Repository owns the outbox_events table. Writes take the caller's
// transaction so they commit or roll back with the domain change.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// Pending reads relayable rows without locking them. Rows at or past
// maxAttempts are skipped; zero disables the cap.
func (r *Repository) Pending(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return pending(r.db.WithContext(ctx), limit, maxAttempts, false)
}

// Claim is Pending for the relay: on postgres the rows stay locked until tx
// ends and rows locked by another relay are skipped.
func (r *Repository) Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	return pending(tx, limit, maxAttempts, tx.Dialector.Name() == "postgres")
}

func pending(q *gorm.DB, limit, maxAttempts int, lock bool) ([]models.OutboxEvent, error) {
	q = q.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) Published(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errNoTx
	}
	return byID(tx, id).Update("published_at", time.Now().UTC()).Error
}

// Retry counts a failed attempt and keeps the row pending.
func (r *Repository) Retry(tx *gorm.DB, id uuid.UUID, cause error) error {
	if tx == nil {
		return errNoTx
	}
	return byID(tx, id).Updates(map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    cause.Error(),
	}).Error
}

// Park pins a row at attempts so Pending and Claim never return it again.
func (r *Repository) Park(tx *gorm.DB, id uuid.UUID, cause error, attempts int) error {
	if tx == nil {
		return errNoTx
	}
	updates := map[string]any{"attempt_count": attempts}
	if cause != nil {
		updates["last_error"] = cause.Error()
	}
	return byID(tx, id).Updates(updates).Error
}

// PrunePublished deletes relayed rows published before cutoff. A nil tx runs
// on the repository's own handle.
func (r *Repository) PrunePublished(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.Where("published_at IS NOT NULL AND published_at < ?", cutoff).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func byID(tx *gorm.DB, id uuid.UUID) *gorm.DB {
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id)
}

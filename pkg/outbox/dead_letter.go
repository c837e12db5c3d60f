package outbox

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// maxDLQErrorBytes bounds error_message; longer messages are cut on a rune
// boundary.
const maxDLQErrorBytes = 1024

// DeadLetter copies event into outbox_dlq and parks the source row at
// attempts. Both writes share tx, so an event is never pending and
// dead-lettered at once.
func (r *Repository) DeadLetter(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, attempts int) error {
	if tx == nil {
		return errNoTx
	}
	if cause == nil {
		cause = errors.New(string(reason))
	}
	msg := clipUTF8(cause.Error(), maxDLQErrorBytes)
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("insert dlq row for %s: %w", event.ID, err)
	}
	if err := r.Park(tx, event.ID, cause, attempts); err != nil {
		return fmt.Errorf("park %s: %w", event.ID, err)
	}
	return nil
}

func clipUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

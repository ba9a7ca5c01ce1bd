package outbox

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// error_message is indexed for the ops dashboard; keep it bounded
const maxDLQErrorLen = 1024

// DLQRepository stores outbox rows the publisher parked.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records entry inside the publisher's batch transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.EventID == uuid.Nil {
		return errors.New("dlq entry needs the source event id")
	}
	if entry.ErrorMessage != nil {
		msg := clampUTF8(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// clampUTF8 cuts s to at most n bytes without splitting a rune.
func clampUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

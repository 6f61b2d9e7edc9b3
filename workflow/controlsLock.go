package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireStatementControlLock serializes control cycles per statement across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB that runs the cycle.
func AcquireStatementControlLock(tx *gorm.DB, statementId int) error {
	lockName := fmt.Sprintf("controls:%d", statementId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire control lock for statement_id=%d", statementId)
	}
	return nil
}

func ReleaseStatementControlLock(tx *gorm.DB, statementId int) {
	lockName := fmt.Sprintf("controls:%d", statementId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

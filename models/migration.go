package models

import (
	"log"

	"github.com/Attendry/Konzern-sub004/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Company{}, &FinancialStatement{},
		&Account{}, &AccountBalance{},
		&IntercompanyTransaction{}, &IntercompanyReconciliation{},
		&PlausibilityRule{}, &PlausibilityCheck{}, &CheckRun{},
		&MaterialityThresholds{}, &VarianceAnalysis{},
		&ExceptionReport{},
		&AuditEvent{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

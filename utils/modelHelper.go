package utils

import (
	"context"

	"github.com/Attendry/Konzern-sub004/config"
)

/* DB fetching */

// fetch model from db by primary key
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch all models of a statement from db
func FetchStatementModels[T any](ctx context.Context, statementId int, associations ...string) ([]*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("statement_id = ?", statementId)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// check if id exists, return RecordNotFound error otherwise
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	db := config.GetDB()
	var m T
	var count int64
	if err := db.WithContext(ctx).Model(&m).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// check uniqueness of a column value (id > 0 excludes the row being updated)
func ValidateUnique[T any](ctx context.Context, field string, value interface{}, id int) error {
	db := config.GetDB()
	var m T
	dbCtx := db.WithContext(ctx).Model(&m).Where(field+" = ?", value)
	if id > 0 {
		dbCtx = dbCtx.Where("id != ?", id)
	}
	var count int64
	if err := dbCtx.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrorDuplicateValue(field)
	}
	return nil
}

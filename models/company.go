package models

import (
	"context"
	"errors"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
)

type ConsolidationMethod string

const (
	ConsolidationMethodFull         ConsolidationMethod = "full"
	ConsolidationMethodProportional ConsolidationMethod = "proportional"
	ConsolidationMethodEquity       ConsolidationMethod = "equity"
	ConsolidationMethodNone         ConsolidationMethod = "none"
)

type Company struct {
	ID                  int                 `gorm:"primary_key" json:"id"`
	Name                string              `gorm:"size:255;not null;index" json:"name" binding:"required"`
	LegalForm           string              `gorm:"size:50" json:"legal_form"`
	RegisterNumber      string              `gorm:"size:100" json:"register_number"`
	IsParent            *bool               `gorm:"not null;default:false" json:"is_parent"`
	OwnershipPercent    decimal.Decimal     `gorm:"type:decimal(7,4);default:100" json:"ownership_percent"`
	ConsolidationMethod ConsolidationMethod `gorm:"size:16;not null;default:'full'" json:"consolidation_method"`
	IsActive            *bool               `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCompany struct {
	Name                string              `json:"name" binding:"required"`
	LegalForm           string              `json:"legal_form"`
	RegisterNumber      string              `json:"register_number"`
	IsParent            bool                `json:"is_parent"`
	OwnershipPercent    decimal.Decimal     `json:"ownership_percent"`
	ConsolidationMethod ConsolidationMethod `json:"consolidation_method"`
}

func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {

	if err := utils.ValidateUnique[Company](ctx, "name", input.Name, 0); err != nil {
		return nil, err
	}

	method := input.ConsolidationMethod
	if method == "" {
		method = ConsolidationMethodFull
	}
	ownership := input.OwnershipPercent
	if ownership.IsZero() {
		ownership = decimal.NewFromInt(100)
	}

	company := Company{
		Name:                input.Name,
		LegalForm:           input.LegalForm,
		RegisterNumber:      input.RegisterNumber,
		IsParent:            &input.IsParent,
		OwnershipPercent:    ownership,
		ConsolidationMethod: method,
		IsActive:            utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func GetCompanies(ctx context.Context) ([]*Company, error) {
	db := config.GetDB()
	var companies []*Company
	err := db.WithContext(ctx).Order("name asc").Find(&companies).Error
	if err != nil {
		return nil, err
	}
	return companies, nil
}

type StatementType string

const (
	StatementTypeConsolidated StatementType = "consolidated"
	StatementTypeSingle       StatementType = "single"
)

type StatementStatus string

const (
	StatementStatusDraft         StatementStatus = "draft"
	StatementStatusInPreparation StatementStatus = "in_preparation"
	StatementStatusFinalized     StatementStatus = "finalized"
)

type FinancialStatement struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Name          string          `gorm:"size:255;not null" json:"name" binding:"required"`
	StatementType StatementType   `gorm:"size:16;not null;default:'consolidated';index" json:"statement_type"`
	FiscalYear    int             `gorm:"not null;index" json:"fiscal_year" binding:"required"`
	PeriodStart   time.Time       `gorm:"not null" json:"period_start"`
	PeriodEnd     time.Time       `gorm:"not null" json:"period_end"`
	CompanyId     int             `gorm:"index" json:"company_id"` // 0 for group statements
	Status        StatementStatus `gorm:"size:16;not null;default:'draft';index" json:"status"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewFinancialStatement struct {
	Name          string        `json:"name" binding:"required"`
	StatementType StatementType `json:"statement_type"`
	FiscalYear    int           `json:"fiscal_year" binding:"required"`
	PeriodStart   time.Time     `json:"period_start"`
	PeriodEnd     time.Time     `json:"period_end"`
	CompanyId     int           `json:"company_id"`
}

func CreateFinancialStatement(ctx context.Context, input *NewFinancialStatement) (*FinancialStatement, error) {

	if input.FiscalYear <= 0 {
		return nil, errors.New("fiscal year is required")
	}
	if input.CompanyId > 0 {
		if err := utils.ValidateResourceId[Company](ctx, input.CompanyId); err != nil {
			return nil, errors.New("company not found")
		}
	}

	stmtType := input.StatementType
	if stmtType == "" {
		stmtType = StatementTypeConsolidated
	}

	statement := FinancialStatement{
		Name:          input.Name,
		StatementType: stmtType,
		FiscalYear:    input.FiscalYear,
		PeriodStart:   input.PeriodStart,
		PeriodEnd:     input.PeriodEnd,
		CompanyId:     input.CompanyId,
		Status:        StatementStatusDraft,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&statement).Error; err != nil {
		return nil, err
	}
	return &statement, nil
}

func GetFinancialStatement(ctx context.Context, id int) (*FinancialStatement, error) {
	return utils.FetchModel[FinancialStatement](ctx, id)
}

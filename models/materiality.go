package models

import (
	"context"
	"errors"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
)

type MaterialityBasis string

const (
	MaterialityBasisTotalAssets MaterialityBasis = "total_assets"
	MaterialityBasisRevenue     MaterialityBasis = "revenue"
)

// MaterialityThresholds holds the three-tier materiality of one statement.
// At most one active record per statement (upsert semantics).
type MaterialityThresholds struct {
	ID          int              `gorm:"primary_key" json:"id"`
	StatementId int              `gorm:"not null;uniqueIndex" json:"statement_id"`
	BasisType   MaterialityBasis `gorm:"size:16;not null" json:"basis_type"`
	BasisAmount decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"basis_amount"`

	PlanningThreshold    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"planning_threshold"`
	PerformanceThreshold decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"performance_threshold"`
	TrivialThreshold     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"trivial_threshold"`

	PlanningPercent    decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"planning_percent"`
	PerformancePercent decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"performance_percent"`
	TrivialPercent     decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"trivial_percent"`

	QualitativeFactors string `gorm:"type:text" json:"qualitative_factors"`

	ApprovedBy string     `gorm:"size:64" json:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMaterialityThresholds struct {
	StatementId int              `json:"statement_id" binding:"required"`
	BasisType   MaterialityBasis `json:"basis_type" binding:"required"`
	BasisAmount decimal.Decimal  `json:"basis_amount" binding:"required"`

	PlanningThreshold    decimal.Decimal `json:"planning_threshold"`
	PerformanceThreshold decimal.Decimal `json:"performance_threshold"`
	TrivialThreshold     decimal.Decimal `json:"trivial_threshold"`

	PlanningPercent    decimal.Decimal `json:"planning_percent"`
	PerformancePercent decimal.Decimal `json:"performance_percent"`
	TrivialPercent     decimal.Decimal `json:"trivial_percent"`

	QualitativeFactors string `json:"qualitative_factors"`
}

func GetMaterialityThresholds(ctx context.Context, statementId int) (*MaterialityThresholds, error) {
	db := config.GetDB()
	var thresholds MaterialityThresholds
	err := db.WithContext(ctx).Where("statement_id = ?", statementId).First(&thresholds).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &thresholds, nil
}

// SetMaterialityThresholds creates or replaces the statement's thresholds.
// Re-setting clears a previous approval.
func SetMaterialityThresholds(ctx context.Context, input *NewMaterialityThresholds) (*MaterialityThresholds, error) {

	if err := utils.ValidateResourceId[FinancialStatement](ctx, input.StatementId); err != nil {
		return nil, errors.New("statement not found")
	}

	db := config.GetDB()

	existing, err := GetMaterialityThresholds(ctx, input.StatementId)
	if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, err
	}

	thresholds := MaterialityThresholds{
		StatementId:          input.StatementId,
		BasisType:            input.BasisType,
		BasisAmount:          input.BasisAmount,
		PlanningThreshold:    input.PlanningThreshold,
		PerformanceThreshold: input.PerformanceThreshold,
		TrivialThreshold:     input.TrivialThreshold,
		PlanningPercent:      input.PlanningPercent,
		PerformancePercent:   input.PerformancePercent,
		TrivialPercent:       input.TrivialPercent,
		QualitativeFactors:   input.QualitativeFactors,
	}

	if existing != nil {
		thresholds.ID = existing.ID
		thresholds.CreatedAt = existing.CreatedAt
		if err := db.WithContext(ctx).Save(&thresholds).Error; err != nil {
			return nil, err
		}
		recordAudit(ctx, "update", "MaterialityThresholds", thresholds.ID, existing, &thresholds, "materiality thresholds updated")
	} else {
		if err := db.WithContext(ctx).Create(&thresholds).Error; err != nil {
			return nil, err
		}
		recordAudit(ctx, "create", "MaterialityThresholds", thresholds.ID, nil, &thresholds, "materiality thresholds set")
	}
	return &thresholds, nil
}

func ApproveMaterialityThresholds(ctx context.Context, statementId int) (*MaterialityThresholds, error) {

	thresholds, err := GetMaterialityThresholds(ctx, statementId)
	if err != nil {
		return nil, errors.New("materiality thresholds not found")
	}
	if thresholds.ApprovedAt != nil {
		return nil, errors.New("materiality thresholds are already approved")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()
	before := *thresholds

	db := config.GetDB()
	err = db.WithContext(ctx).Model(thresholds).Updates(map[string]interface{}{
		"ApprovedBy": userId,
		"ApprovedAt": &now,
	}).Error
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, "approve", "MaterialityThresholds", thresholds.ID, &before, thresholds, "materiality thresholds approved")
	return thresholds, nil
}

// MaterialitySuggestion is the derived three-tier proposal for a basis amount.
type MaterialitySuggestion struct {
	BasisType   MaterialityBasis `json:"basis_type"`
	BasisAmount decimal.Decimal  `json:"basis_amount"`

	PlanningPercent    decimal.Decimal `json:"planning_percent"`
	PerformancePercent decimal.Decimal `json:"performance_percent"`
	TrivialPercent     decimal.Decimal `json:"trivial_percent"`

	PlanningThreshold    decimal.Decimal `json:"planning_threshold"`
	PerformanceThreshold decimal.Decimal `json:"performance_threshold"`
	TrivialThreshold     decimal.Decimal `json:"trivial_threshold"`
}

// CalculateSuggestedMateriality derives thresholds from a basis amount using
// common audit heuristics: planning 0.5% of total assets or 1% of revenue,
// performance at 75% of planning, trivial at 5% of planning.
func CalculateSuggestedMateriality(basisType MaterialityBasis, basisAmount decimal.Decimal) (*MaterialitySuggestion, error) {

	if basisAmount.IsNegative() || basisAmount.IsZero() {
		return nil, errors.New("basis amount must be positive")
	}

	var planningPercent decimal.Decimal
	switch basisType {
	case MaterialityBasisTotalAssets:
		planningPercent = decimal.NewFromFloat(0.5)
	case MaterialityBasisRevenue:
		planningPercent = decimal.NewFromInt(1)
	default:
		return nil, errors.New("unknown materiality basis")
	}

	hundred := decimal.NewFromInt(100)
	planning := basisAmount.Mul(planningPercent).Div(hundred)
	performancePercent := decimal.NewFromInt(75)
	trivialPercent := decimal.NewFromInt(5)

	return &MaterialitySuggestion{
		BasisType:            basisType,
		BasisAmount:          basisAmount,
		PlanningPercent:      planningPercent,
		PerformancePercent:   performancePercent,
		TrivialPercent:       trivialPercent,
		PlanningThreshold:    planning,
		PerformanceThreshold: planning.Mul(performancePercent).Div(hundred),
		TrivialThreshold:     planning.Mul(trivialPercent).Div(hundred),
	}, nil
}

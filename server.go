package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/models"
	"github.com/Attendry/Konzern-sub004/models/reports"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/Attendry/Konzern-sub004/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

/* rules */

func createRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPlausibilityRule
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		rule, err := models.CreateRule(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func updateRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewPlausibilityRule
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		rule, err := models.UpdateRule(c.Request.Context(), id, &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func deleteRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeleteRule(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

type setRuleActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func setRuleActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req setRuleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		rule, err := models.SetRuleActive(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func getActiveRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var categories []models.RuleCategory
		if raw := strings.TrimSpace(c.Query("categories")); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				if part = strings.TrimSpace(part); part != "" {
					categories = append(categories, models.RuleCategory(part))
				}
			}
		}
		rules, err := models.GetActiveRules(c.Request.Context(), categories...)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rules)
	}
}

func seedRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		created, err := models.SeedDefaultRules(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "created": created})
			return
		}
		c.JSON(http.StatusOK, gin.H{"created": created})
	}
}

/* checks */

type runChecksRequest struct {
	Categories []models.RuleCategory `json:"categories"`
}

func runChecksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req runChecksRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		run, err := models.RunAllChecks(c.Request.Context(), id, req.Categories...)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func getCheckResultsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		status := models.CheckStatus(c.Query("status"))
		checks, err := models.GetCheckResults(c.Request.Context(), id, status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, checks)
	}
}

func getCheckRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		runs, err := models.GetCheckRuns(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, runs)
	}
}

func getCheckSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		summary, err := models.GetCheckSummary(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func acknowledgeCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req commentRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		check, err := models.AcknowledgeCheck(c.Request.Context(), id, req.Comment)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, check)
	}
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func waiveCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req reasonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
			return
		}
		check, err := models.WaiveCheck(c.Request.Context(), id, req.Reason)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, check)
	}
}

/* materiality */

func getMaterialityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		thresholds, err := models.GetMaterialityThresholds(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "materiality thresholds not found"})
			return
		}
		c.JSON(http.StatusOK, thresholds)
	}
}

func setMaterialityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewMaterialityThresholds
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		input.StatementId = id
		thresholds, err := models.SetMaterialityThresholds(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, thresholds)
	}
}

func approveMaterialityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		thresholds, err := models.ApproveMaterialityThresholds(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, thresholds)
	}
}

type suggestMaterialityRequest struct {
	BasisType   models.MaterialityBasis `json:"basis_type" binding:"required"`
	BasisAmount decimal.Decimal         `json:"basis_amount" binding:"required"`
}

func suggestMaterialityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req suggestMaterialityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		suggestion, err := models.CalculateSuggestedMateriality(req.BasisType, req.BasisAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, suggestion)
	}
}

/* variances */

type runVarianceRequest struct {
	PriorStatementId int                  `json:"prior_statement_id" binding:"required"`
	Level            models.VarianceLevel `json:"level"`
}

func runVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req runVarianceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prior_statement_id is required"})
			return
		}
		level := req.Level
		if level == "" {
			level = models.VarianceLevelAccount
		}
		analyses, err := models.RunVarianceAnalysis(c.Request.Context(), id, req.PriorStatementId, level)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(analyses), "analyses": analyses})
	}
}

func getVariancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		materialOnly := c.Query("material") == "true"
		unexplainedOnly := c.Query("unexplained") == "true"
		analyses, err := models.GetVarianceAnalyses(c.Request.Context(), id, materialOnly, unexplainedOnly)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, analyses)
	}
}

func getVarianceSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		summary, err := models.GetVarianceSummary(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type explainVarianceRequest struct {
	Explanation string `json:"explanation" binding:"required"`
	Category    string `json:"category"`
}

func explainVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req explainVarianceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "explanation is required"})
			return
		}
		analysis, err := models.ExplainVariance(c.Request.Context(), id, req.Explanation, req.Category)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, analysis)
	}
}

func reviewVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req commentRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		analysis, err := models.ReviewVariance(c.Request.Context(), id, req.Comment)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, analysis)
	}
}

/* exceptions */

func createExceptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewExceptionReport
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		exception, err := models.CreateException(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

func createExceptionFromCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		exception, err := models.CreateExceptionFromCheck(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

func createExceptionFromVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		exception, err := models.CreateExceptionFromVariance(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

func getExceptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		exception, err := models.GetException(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "exception not found"})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

func getExceptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		status := models.ExceptionStatus(c.Query("status"))
		priority := models.ExceptionPriority(c.Query("priority"))
		exceptions, err := models.GetExceptions(c.Request.Context(), id, status, priority)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exceptions)
	}
}

func getOpenExceptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		exceptions, err := models.GetOpenExceptions(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exceptions)
	}
}

func getExceptionSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		summary, err := models.GetExceptionSummary(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type assignExceptionRequest struct {
	Assignee string `json:"assignee" binding:"required"`
}

func assignExceptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req assignExceptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "assignee is required"})
			return
		}
		exception, err := models.AssignException(c.Request.Context(), id, req.Assignee)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

type escalateExceptionRequest struct {
	EscalateTo string `json:"escalate_to" binding:"required"`
	Reason     string `json:"reason"`
}

func escalateExceptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req escalateExceptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "escalate_to is required"})
			return
		}
		exception, err := models.EscalateException(c.Request.Context(), id, req.EscalateTo, req.Reason)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

type resolveExceptionRequest struct {
	Resolution     string                `json:"resolution" binding:"required"`
	ResolutionType models.ResolutionType `json:"resolution_type"`
}

func resolveExceptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req resolveExceptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolution is required"})
			return
		}
		exception, err := models.ResolveException(c.Request.Context(), id, req.Resolution, req.ResolutionType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

func waiveExceptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req reasonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
			return
		}
		exception, err := models.WaiveException(c.Request.Context(), id, req.Reason)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

func closeExceptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		exception, err := models.CloseException(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

func reopenExceptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req reasonRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		exception, err := models.ReopenException(c.Request.Context(), id, req.Reason)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

type priorityRequest struct {
	Priority models.ExceptionPriority `json:"priority" binding:"required"`
}

func updateExceptionPriorityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req priorityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "priority is required"})
			return
		}
		exception, err := models.UpdateExceptionPriority(c.Request.Context(), id, req.Priority)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exception)
	}
}

func generateExceptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		fromChecks, err := models.GenerateExceptionsFromChecks(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		fromVariances, err := models.GenerateExceptionsFromVariances(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"from_checks":    fromChecks,
			"from_variances": fromVariances,
		})
	}
}

/* control cycle & export */

type controlCycleRequest struct {
	PriorStatementId int                   `json:"prior_statement_id"`
	Level            models.VarianceLevel  `json:"level"`
	Categories       []models.RuleCategory `json:"categories"`
}

func runControlCycleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req controlCycleRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		result, err := workflow.RunControlCycle(c.Request.Context(), &workflow.ControlCycleInput{
			StatementId:      id,
			PriorStatementId: req.PriorStatementId,
			VarianceLevel:    req.Level,
			Categories:       req.Categories,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func exportControlsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=controls.xlsx")
		if err := reports.ExportControlsReport(c.Request.Context(), id, c.Writer); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
	}
}

/* master data */

func createCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCompany
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		company, err := models.CreateCompany(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, company)
	}
}

func getCompaniesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companies, err := models.GetCompanies(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, companies)
	}
}

func createStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewFinancialStatement
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		statement, err := models.CreateFinancialStatement(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, statement)
	}
}

func getStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		statement, err := models.GetFinancialStatement(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "statement not found"})
			return
		}
		c.JSON(http.StatusOK, statement)
	}
}

func createAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		account, err := models.CreateAccount(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func createBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAccountBalance
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		balance, err := models.CreateAccountBalance(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, balance)
	}
}

func getBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		balances, err := models.GetAccountBalances(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, balances)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	// Caller identity from trusted gateway headers.
	r.Use(func(c *gin.Context) {
		ctx := c.Request.Context()
		if userId := c.GetHeader("x-user-id"); userId != "" {
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		if userName := c.GetHeader("x-user-name"); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness. Redis stays
		// optional; only the database is required.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-user-id", "x-user-name", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/companies", createCompanyHandler())
	r.GET("/companies", getCompaniesHandler())
	r.POST("/statements", createStatementHandler())
	r.GET("/statements/:id", getStatementHandler())
	r.POST("/accounts", createAccountHandler())
	r.POST("/balances", createBalanceHandler())
	r.GET("/statements/:id/balances", getBalancesHandler())

	r.POST("/rules", createRuleHandler())
	r.GET("/rules", getActiveRulesHandler())
	r.PUT("/rules/:id", updateRuleHandler())
	r.DELETE("/rules/:id", deleteRuleHandler())
	r.POST("/rules/:id/activate", setRuleActiveHandler())
	r.POST("/rules/seed", seedRulesHandler())

	r.POST("/statements/:id/checks/run", runChecksHandler())
	r.GET("/statements/:id/checks", getCheckResultsHandler())
	r.GET("/statements/:id/checks/runs", getCheckRunsHandler())
	r.GET("/statements/:id/checks/summary", getCheckSummaryHandler())
	r.POST("/checks/:id/acknowledge", acknowledgeCheckHandler())
	r.POST("/checks/:id/waive", waiveCheckHandler())

	r.GET("/statements/:id/materiality", getMaterialityHandler())
	r.PUT("/statements/:id/materiality", setMaterialityHandler())
	r.POST("/statements/:id/materiality/approve", approveMaterialityHandler())
	r.POST("/materiality/suggest", suggestMaterialityHandler())

	r.POST("/statements/:id/variances/run", runVarianceHandler())
	r.GET("/statements/:id/variances", getVariancesHandler())
	r.GET("/statements/:id/variances/summary", getVarianceSummaryHandler())
	r.POST("/variances/:id/explain", explainVarianceHandler())
	r.POST("/variances/:id/review", reviewVarianceHandler())

	r.POST("/exceptions", createExceptionHandler())
	r.GET("/exceptions/:id", getExceptionHandler())
	r.POST("/exceptions/from-check/:id", createExceptionFromCheckHandler())
	r.POST("/exceptions/from-variance/:id", createExceptionFromVarianceHandler())
	r.GET("/statements/:id/exceptions", getExceptionsHandler())
	r.GET("/statements/:id/exceptions/open", getOpenExceptionsHandler())
	r.GET("/statements/:id/exceptions/summary", getExceptionSummaryHandler())
	r.POST("/statements/:id/exceptions/generate", generateExceptionsHandler())
	r.POST("/exceptions/:id/assign", assignExceptionHandler())
	r.POST("/exceptions/:id/escalate", escalateExceptionHandler())
	r.POST("/exceptions/:id/resolve", resolveExceptionHandler())
	r.POST("/exceptions/:id/waive", waiveExceptionHandler())
	r.POST("/exceptions/:id/close", closeExceptionHandler())
	r.POST("/exceptions/:id/reopen", reopenExceptionHandler())
	r.POST("/exceptions/:id/priority", updateExceptionPriorityHandler())

	r.POST("/statements/:id/control-cycle", runControlCycleHandler())
	r.GET("/statements/:id/controls-export", exportControlsHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	models.SetAuditRecorder(models.GormAuditRecorder{})

	if strings.EqualFold(strings.TrimSpace(os.Getenv("SEED_DEFAULT_RULES")), "true") {
		ctx := utils.SetUserIdInContext(context.Background(), "system")
		if _, err := models.SeedDefaultRules(ctx); err != nil {
			logger.WithFields(logrus.Fields{"field": "RuleCatalog"}).Error("failed to seed default rules: " + err.Error())
		}
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

package reports

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Attendry/Konzern-sub004/models"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/xuri/excelize/v2"
)

var checkHeadings = []string{
	"Rule Code", "Rule Name", "Category", "Severity", "HGB Reference",
	"Status", "Expected", "Actual", "Difference", "Message",
}

var varianceHeadings = []string{
	"Comparison Key", "Level", "Current Year", "Prior Year",
	"Current Value", "Prior Value", "Variance", "Variance %",
	"Significance", "Explanation",
}

var exceptionHeadings = []string{
	"Title", "Source", "Category", "Priority", "Status",
	"Impact", "Assigned To", "Due Date", "Resolution",
}

func setRow(f *excelize.File, sheet string, rowNo int, values []interface{}) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}

func writeHeadings(f *excelize.File, sheet string, headings []string) error {
	values := make([]interface{}, len(headings))
	for i, h := range headings {
		values[i] = h
	}
	return setRow(f, sheet, 1, values)
}

// BuildControlsWorkbook renders one statement's checks, variances and
// exceptions into a three-sheet workbook.
func BuildControlsWorkbook(ctx context.Context, statementId int) (*excelize.File, error) {

	checks, err := models.GetCheckResults(ctx, statementId, "")
	if err != nil {
		return nil, fmt.Errorf("load checks: %w", err)
	}
	variances, err := models.GetVarianceAnalyses(ctx, statementId, false, false)
	if err != nil {
		return nil, fmt.Errorf("load variances: %w", err)
	}
	exceptions, err := models.GetExceptions(ctx, statementId, "", "")
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	if len(checks) == 0 && len(variances) == 0 && len(exceptions) == 0 {
		return nil, errors.New("nothing to export for this statement")
	}

	f := excelize.NewFile()

	checkSheet := "Checks"
	if err := f.SetSheetName("Sheet1", checkSheet); err != nil {
		return nil, err
	}
	if err := writeHeadings(f, checkSheet, checkHeadings); err != nil {
		return nil, err
	}
	for i, check := range checks {
		row := []interface{}{
			check.RuleCode, check.RuleName, string(check.Category), string(check.Severity), check.HGBReference,
			string(check.Status),
			utils.FormatAmount(check.ExpectedValue),
			utils.FormatAmount(check.ActualValue),
			utils.FormatAmount(check.DifferenceValue),
			check.Message,
		}
		if err := setRow(f, checkSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	varianceSheet := "Variances"
	if _, err := f.NewSheet(varianceSheet); err != nil {
		return nil, err
	}
	if err := writeHeadings(f, varianceSheet, varianceHeadings); err != nil {
		return nil, err
	}
	for i, variance := range variances {
		row := []interface{}{
			variance.ComparisonKey, string(variance.Level),
			variance.CurrentFiscalYear, variance.PriorFiscalYear,
			utils.FormatAmount(variance.CurrentValue),
			utils.FormatAmount(variance.PriorValue),
			utils.FormatAmount(variance.AbsoluteVariance),
			utils.FormatPercent(variance.PercentageVariance),
			string(variance.Significance),
			variance.Explanation,
		}
		if err := setRow(f, varianceSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	exceptionSheet := "Exceptions"
	if _, err := f.NewSheet(exceptionSheet); err != nil {
		return nil, err
	}
	if err := writeHeadings(f, exceptionSheet, exceptionHeadings); err != nil {
		return nil, err
	}
	for i, exception := range exceptions {
		dueDate := ""
		if exception.DueDate != nil {
			dueDate = exception.DueDate.Format("2006-01-02")
		}
		row := []interface{}{
			exception.Title, string(exception.SourceType), exception.Category,
			string(exception.Priority), string(exception.Status),
			utils.FormatAmount(exception.ImpactAmount),
			exception.AssignedTo, dueDate, exception.Resolution,
		}
		if err := setRow(f, exceptionSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// ExportControlsReport streams the workbook, e.g. into an HTTP response.
func ExportControlsReport(ctx context.Context, statementId int, w io.Writer) error {
	f, err := BuildControlsWorkbook(ctx, statementId)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

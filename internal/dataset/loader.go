// Package dataset loads loan portfolios and reference tables from CSV into
// the typed models, enforcing the schema contract before any engine runs.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
)

const dateLayout = "2006-01-02"

var requiredLoanColumns = []string{
	"loan_id", "borrower", "amount", "rate", "sector",
	"maturity_date", "credit_rating", "status",
}

var requiredDefaultRateColumns = []string{
	"credit_rating", "default_probability", "recovery_rate", "risk_weight",
}

var requiredHistoryColumns = []string{
	"loan_id", "snapshot_date", "credit_rating",
}

// Loader parses CSV datasets into validated typed records.
type Loader struct {
	validate *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{validate: validator.New()}
}

// header maps column names to their positions, case-insensitively.
type header map[string]int

func readHeader(r *csv.Reader, required []string) (header, error) {
	row, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	h := make(header, len(row))
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, &models.SchemaError{Column: col, Reason: "required column missing"}
		}
	}
	return h, nil
}

func (h header) get(row []string, column string) string {
	idx, ok := h[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// LoadPortfolio reads a loan dataset and returns a validated portfolio.
// Any malformed row aborts the load with a SchemaError carrying the row
// number; a structurally valid file with zero rows returns ErrEmptyDataset.
func (l *Loader) LoadPortfolio(id string, r io.Reader) (*models.Portfolio, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	h, err := readHeader(reader, requiredLoanColumns)
	if err != nil {
		return nil, err
	}

	var loans []models.LoanRecord
	rowNum := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", rowNum+1, err)
		}
		rowNum++

		loan, err := l.parseLoan(h, row, rowNum)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *loan)
	}

	if len(loans) == 0 {
		return nil, models.ErrEmptyDataset
	}
	return models.NewPortfolio(id, loans)
}

func (l *Loader) parseLoan(h header, row []string, rowNum int) (*models.LoanRecord, error) {
	amount, err := parseDecimal(h.get(row, "amount"), "amount", rowNum)
	if err != nil {
		return nil, err
	}
	rate, err := parseDecimal(h.get(row, "rate"), "rate", rowNum)
	if err != nil {
		return nil, err
	}
	maturity, err := time.Parse(dateLayout, h.get(row, "maturity_date"))
	if err != nil {
		return nil, &models.SchemaError{Column: "maturity_date", Row: rowNum, Reason: "expected YYYY-MM-DD date"}
	}

	loan := &models.LoanRecord{
		LoanID:       h.get(row, "loan_id"),
		Borrower:     h.get(row, "borrower"),
		Amount:       amount,
		Rate:         rate,
		Sector:       h.get(row, "sector"),
		Country:      h.get(row, "country"),
		MaturityDate: maturity,
		CreditRating: h.get(row, "credit_rating"),
		Status:       models.LoanStatus(h.get(row, "status")),
	}

	for _, optional := range []struct {
		column string
		target **decimal.Decimal
	}{
		{"debt_to_equity", &loan.DebtToEquity},
		{"interest_coverage", &loan.InterestCoverage},
		{"leverage_ratio", &loan.LeverageRatio},
	} {
		raw := h.get(row, optional.column)
		if raw == "" {
			continue
		}
		value, err := parseDecimal(raw, optional.column, rowNum)
		if err != nil {
			return nil, err
		}
		*optional.target = &value
	}

	if err := l.validate.Struct(loan); err != nil {
		return nil, &models.SchemaError{Row: rowNum, Reason: err.Error()}
	}
	if err := loan.Validate(); err != nil {
		return nil, err
	}
	return loan, nil
}

// LoadDefaultRates reads the default-rate reference table. One entry per
// rating; duplicates are rejected.
func (l *Loader) LoadDefaultRates(r io.Reader) ([]models.DefaultRateEntry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	h, err := readHeader(reader, requiredDefaultRateColumns)
	if err != nil {
		return nil, err
	}

	var entries []models.DefaultRateEntry
	seen := make(map[string]struct{})
	rowNum := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", rowNum+1, err)
		}
		rowNum++

		pd, err := parseDecimal(h.get(row, "default_probability"), "default_probability", rowNum)
		if err != nil {
			return nil, err
		}
		recovery, err := parseDecimal(h.get(row, "recovery_rate"), "recovery_rate", rowNum)
		if err != nil {
			return nil, err
		}
		weight, err := parseDecimal(h.get(row, "risk_weight"), "risk_weight", rowNum)
		if err != nil {
			return nil, err
		}

		entry := models.DefaultRateEntry{
			CreditRating:       h.get(row, "credit_rating"),
			DefaultProbability: pd,
			RecoveryRate:       recovery,
			RiskWeight:         weight,
		}
		if entry.CreditRating == "" {
			return nil, &models.SchemaError{Column: "credit_rating", Row: rowNum, Reason: "must not be empty"}
		}
		if _, dup := seen[entry.CreditRating]; dup {
			return nil, &models.SchemaError{Column: "credit_rating", Row: rowNum, Reason: "duplicate rating " + entry.CreditRating}
		}
		seen[entry.CreditRating] = struct{}{}
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, models.ErrEmptyDataset
	}
	return entries, nil
}

// LoadRatingHistory reads the rating snapshot table. Rows must be unique on
// (loan_id, snapshot_date).
func (l *Loader) LoadRatingHistory(r io.Reader) ([]models.RatingSnapshot, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	h, err := readHeader(reader, requiredHistoryColumns)
	if err != nil {
		return nil, err
	}

	var snapshots []models.RatingSnapshot
	seen := make(map[string]struct{})
	rowNum := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", rowNum+1, err)
		}
		rowNum++

		date, err := time.Parse(dateLayout, h.get(row, "snapshot_date"))
		if err != nil {
			return nil, &models.SchemaError{Column: "snapshot_date", Row: rowNum, Reason: "expected YYYY-MM-DD date"}
		}

		snapshot := models.RatingSnapshot{
			LoanID:       h.get(row, "loan_id"),
			SnapshotDate: date,
			CreditRating: h.get(row, "credit_rating"),
		}
		if snapshot.LoanID == "" {
			return nil, &models.SchemaError{Column: "loan_id", Row: rowNum, Reason: "must not be empty"}
		}
		if snapshot.CreditRating == "" {
			return nil, &models.SchemaError{Column: "credit_rating", Row: rowNum, Reason: "must not be empty"}
		}

		key := snapshot.LoanID + "|" + date.Format(dateLayout)
		if _, dup := seen[key]; dup {
			return nil, &models.SchemaError{Column: "snapshot_date", Row: rowNum,
				Reason: "duplicate snapshot for loan " + snapshot.LoanID}
		}
		seen[key] = struct{}{}
		snapshots = append(snapshots, snapshot)
	}

	if len(snapshots) == 0 {
		return nil, models.ErrEmptyDataset
	}
	return snapshots, nil
}

func parseDecimal(raw, column string, rowNum int) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, &models.SchemaError{Column: column, Row: rowNum, Reason: "must not be empty"}
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, &models.SchemaError{Column: column, Row: rowNum, Reason: "not a valid number"}
	}
	return value, nil
}

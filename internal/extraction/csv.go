package extraction

import (
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Header aliases accepted by the CSV fallback, all lowercase.
var (
	dateAliases        = []string{"date", "transaction date", "posting date", "posted date", "value date"}
	descriptionAliases = []string{"description", "details", "memo", "narrative", "payee", "transaction"}
	amountAliases      = []string{"amount", "value"}
	debitAliases       = []string{"debit", "withdrawal", "withdrawals", "money out"}
	creditAliases      = []string{"credit", "deposit", "deposits", "money in"}
	currencyAliases    = []string{"currency", "ccy"}
)

var errNoStatementHeader = errors.New("no statement header row found")

// isCSVLike reports whether the document looks like a plain CSV export,
// judged by extension and mime type.
func isCSVLike(filename, mimeType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])) {
	case "text/csv", "application/csv":
		return true
	}
	return false
}

type columnIndex struct {
	date        int
	description int
	amount      int
	debit       int
	credit      int
	currency    int
}

// parseCSVStatement extracts raw transaction rows from a CSV bank or card
// export. The header must carry a date column and either an amount column
// or a debit/credit pair; with a pair, the amount is the credit value or
// the negated debit. Rows missing a date or any amount are skipped.
func parseCSVStatement(data []byte) ([]RawRow, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return nil, errNoStatementHeader
	}

	cols, err := mapHeader(records[0])
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	for _, record := range records[1:] {
		row, ok := rowFromRecord(record, cols)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func mapHeader(header []string) (columnIndex, error) {
	cols := columnIndex{date: -1, description: -1, amount: -1, debit: -1, credit: -1, currency: -1}
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case cols.date < 0 && matchesAlias(name, dateAliases):
			cols.date = i
		case cols.description < 0 && matchesAlias(name, descriptionAliases):
			cols.description = i
		case cols.amount < 0 && matchesAlias(name, amountAliases):
			cols.amount = i
		case cols.debit < 0 && matchesAlias(name, debitAliases):
			cols.debit = i
		case cols.credit < 0 && matchesAlias(name, creditAliases):
			cols.credit = i
		case cols.currency < 0 && matchesAlias(name, currencyAliases):
			cols.currency = i
		}
	}
	if cols.date < 0 {
		return cols, errNoStatementHeader
	}
	if cols.amount < 0 && (cols.debit < 0 || cols.credit < 0) {
		return cols, errNoStatementHeader
	}
	return cols, nil
}

func matchesAlias(name string, aliases []string) bool {
	for _, a := range aliases {
		if name == a {
			return true
		}
	}
	return false
}

func rowFromRecord(record []string, cols columnIndex) (RawRow, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := RawRow{
		Date:        field(cols.date),
		Description: field(cols.description),
		Currency:    field(cols.currency),
	}
	if row.Date == "" {
		return RawRow{}, false
	}

	if cols.amount >= 0 {
		row.Amount = field(cols.amount)
	} else {
		credit := field(cols.credit)
		debit := field(cols.debit)
		switch {
		case credit != "":
			row.Amount = credit
		case debit != "":
			row.Amount = "-" + debit
		}
	}
	if row.Amount == "" {
		return RawRow{}, false
	}
	return row, true
}

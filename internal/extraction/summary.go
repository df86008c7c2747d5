package extraction

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harborlight/corpusd/internal/store"
)

// statementSummary renders a retrievable one-paragraph summary of extracted
// statement rows. This text is what the indexer embeds for the document.
func statementSummary(doc *store.Document, rows []store.Transaction) string {
	if len(rows) == 0 {
		return fmt.Sprintf("%s %s: no transactions extracted.", docTypeLabel(doc.DocType), doc.Filename)
	}

	first, last := rows[0].Date, rows[0].Date
	var credits, debits float64
	for _, row := range rows {
		if row.Date < first {
			first = row.Date
		}
		if row.Date > last {
			last = row.Date
		}
		value, err := strconv.ParseFloat(row.Amount, 64)
		if err != nil {
			continue
		}
		if value >= 0 {
			credits += value
		} else {
			debits += -value
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d transactions from %s to %s.",
		docTypeLabel(doc.DocType), doc.Filename, len(rows), first, last)
	fmt.Fprintf(&b, " Total credits %.2f, total debits %.2f.", credits, debits)
	b.WriteString(" Transactions: ")
	for i, row := range rows {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s %s %s", row.Date, row.Description, row.Amount)
	}
	return b.String()
}

// invoiceSummary renders the retrievable summary of extracted invoice
// line items.
func invoiceSummary(doc *store.Document, items []store.InvoiceItem, vendor, total string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s", doc.Filename)
	if vendor != "" {
		fmt.Fprintf(&b, " from %s", vendor)
	}
	fmt.Fprintf(&b, ": %d line items", len(items))
	if total != "" {
		fmt.Fprintf(&b, ", total %s", total)
	}
	b.WriteString(".")
	if len(items) > 0 {
		b.WriteString(" Items: ")
		for i, item := range items {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s %s", item.Description, item.Amount)
		}
	}
	return b.String()
}

func docTypeLabel(docType string) string {
	switch docType {
	case store.DocTypeBankStatement:
		return "Bank statement"
	case store.DocTypeCreditCardStatement:
		return "Credit card statement"
	case store.DocTypeInvoice:
		return "Invoice"
	default:
		return "Document"
	}
}

// Package intake turns uploaded spreadsheets and pasted text into the
// operation list of a verification batch.
package intake

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/franklinjsmith-create/SupplyVerify/model"
)

// Result holds the operations that parsed and one message per rejected row.
type Result struct {
	Operations []model.OperationInput
	Errors     []string
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Column aliases accepted in spreadsheet headers, after normalizeHeader.
var (
	nameColumns     = []string{"operation_name", "operation", "supplier_name", "supplier"}
	idColumns       = []string{"nop_id", "nopid", "oid_number", "oid", "oid_num"}
	productsColumns = []string{"products", "product", "ingredients", "ingredient"}
)

var headerSpace = regexp.MustCompile(`\s+`)

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return headerSpace.ReplaceAllString(strings.ToLower(strings.TrimSpace(h)), "_")
}

// columns maps each field to the index of the first matching header, or -1.
type columns struct {
	name, id, products int
}

func resolveColumns(header []string) columns {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}
	pick := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				return i
			}
		}
		return -1
	}
	return columns{name: pick(nameColumns), id: pick(idColumns), products: pick(productsColumns)}
}

// cell returns the trimmed value at column i, empty when the row is short.
func (c columns) cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// splitProducts splits a comma separated product cell, dropping blanks.
func splitProducts(raw string) []string {
	products := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			products = append(products, p)
		}
	}
	return products
}

// addRow validates one spreadsheet row. label is the row reference used in
// error messages ("Row 3", "Line 2").
func (r *Result) addRow(label, name, id, products string) {
	op, err := model.NewOperationInput(name, id, splitProducts(products))
	if err != nil {
		r.addError("%s: Missing required field (NOP ID)", label)
		return
	}
	r.Operations = append(r.Operations, op)
}

func parseTable(rows [][]string, firstDataRow int) Result {
	res := Result{Operations: []model.OperationInput{}}
	if len(rows) == 0 {
		res.addError("File contains no header row")
		return res
	}

	cols := resolveColumns(rows[0])
	if cols.id < 0 {
		res.addError("Missing required column (NOP ID). Accepted headers: %s", strings.Join(idColumns, ", "))
		return res
	}

	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		res.addRow(
			fmt.Sprintf("Row %d", i+firstDataRow),
			cols.cell(row, cols.name),
			cols.cell(row, cols.id),
			cols.cell(row, cols.products),
		)
	}
	return res
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

package intake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/franklinjsmith-create/SupplyVerify/model"
)

// ParseCSV reads a header row followed by one operation per line. Rows are
// numbered from the first data row.
func ParseCSV(r io.Reader) Result {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var rows [][]string
	var parseErrors []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				parseErrors = append(parseErrors, fmt.Sprintf("CSV parsing error at row %d: %v", pe.StartLine, pe.Err))
				continue
			}
			return Result{Operations: []model.OperationInput{}, Errors: []string{fmt.Sprintf("CSV parsing error: %v", err)}}
		}
		rows = append(rows, record)
	}

	res := parseTable(rows, 1)
	res.Errors = append(parseErrors, res.Errors...)
	return res
}

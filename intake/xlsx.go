package intake

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/franklinjsmith-create/SupplyVerify/model"
)

// ParseXLSX reads the first sheet of a workbook. Row numbers in errors match
// the sheet, so the first data row is Row 2.
func ParseXLSX(r io.Reader) Result {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return failed("XLSX parsing error: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return failed("XLSX file contains no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return failed("XLSX parsing error: %v", err)
	}
	return parseTable(rows, 2)
}

func failed(format string, args ...any) Result {
	return Result{Operations: []model.OperationInput{}, Errors: []string{fmt.Sprintf(format, args...)}}
}

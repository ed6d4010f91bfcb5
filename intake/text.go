package intake

import (
	"fmt"
	"strings"

	"github.com/franklinjsmith-create/SupplyVerify/model"
)

// ParseText reads pasted text, one operation per non-blank line, in one of
// three pipe separated forms:
//
//	NOP ID
//	NOP ID | products
//	Operation Name | NOP ID | products
//
// Products are comma separated.
func ParseText(text string) Result {
	res := Result{Operations: []model.OperationInput{}}

	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n++

		parts := strings.Split(line, "|")
		var name, id, products string
		switch len(parts) {
		case 1:
			id = parts[0]
		case 2:
			id, products = parts[0], parts[1]
		default:
			name, id, products = parts[0], parts[1], parts[2]
		}
		res.addRow(fmt.Sprintf("Line %d", n), name, id, products)
	}
	return res
}

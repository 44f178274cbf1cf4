package budget

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gryphon/budget-core/internal/domain/shared"
)

// PONumber is a human-readable purchase order number such as "ICEM/25-26/DM/01"
type PONumber string

const (
	poPrefixDigitalMarketing = "ICEM"
	poPrefixGeneral          = "GA"
)

// FormatPONumber builds "{prefix}/{fiscalYear}/{deptCode}/{sequence}".
// The prefix is ICEM for the dm department and GA otherwise; the sequence is
// zero padded to at least two digits.
func FormatPONumber(department Department, fiscalYear FiscalYear, sequence int64) PONumber {
	prefix := poPrefixGeneral
	if strings.EqualFold(string(department), "dm") {
		prefix = poPrefixDigitalMarketing
	}
	return PONumber(fmt.Sprintf("%s/%s/%s/%02d", prefix, fiscalYear, DepartmentCode(string(department)), sequence))
}

// Sequence returns the trailing counter of the number
func (n PONumber) Sequence() (int64, error) {
	s := string(n)
	i := strings.LastIndex(s, "/")
	if i < 0 || i == len(s)-1 {
		return 0, shared.NewValidationError(fmt.Sprintf("malformed purchase order number %q", s))
	}
	seq, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return 0, shared.NewValidationError(fmt.Sprintf("malformed purchase order number %q", s))
	}
	return seq, nil
}

// String returns the number
func (n PONumber) String() string {
	return string(n)
}

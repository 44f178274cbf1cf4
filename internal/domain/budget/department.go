package budget

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gryphon/budget-core/internal/domain/shared"
)

// Department is a lowercase department key such as "dm" or "placement"
type Department string

var departmentPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// departmentCodes maps department keys to the short code printed on PO numbers
var departmentCodes = map[string]string{
	"lnd":        "T",
	"dm":         "DM",
	"sales":      "Sales",
	"cr":         "CR",
	"hr":         "HR&Admin",
	"admin":      "MAN",
	"management": "MAN",
	"placement":  "CR",
}

// DepartmentCode returns the PO-number code for department.
// The lookup ignores case; unknown departments fall back to their upper-cased key.
func DepartmentCode(department string) string {
	if code, ok := departmentCodes[strings.ToLower(department)]; ok {
		return code
	}
	return strings.ToUpper(department)
}

// ParseDepartment normalizes s to lower case and validates it
func ParseDepartment(s string) (Department, error) {
	d := Department(strings.ToLower(strings.TrimSpace(s)))
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d, nil
}

// Validate checks that the department key is present and well formed
func (d Department) Validate() error {
	if d == "" {
		return shared.NewValidationError("department is required")
	}
	if !departmentPattern.MatchString(string(d)) {
		return shared.NewValidationError(fmt.Sprintf("invalid department %q", string(d)))
	}
	return nil
}

// Code returns the PO-number code for the department
func (d Department) Code() string {
	return DepartmentCode(string(d))
}

// String returns the department key
func (d Department) String() string {
	return string(d)
}

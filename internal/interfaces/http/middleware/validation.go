package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/interfaces/http/dto"
)

var setupOnce sync.Once

// SetupValidator configures gin's validator with JSON field names and the
// budget tags: department, fiscal_year and component_key
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		// Use JSON tag names for field names in errors
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
		_ = v.RegisterValidation("department", validateDepartment)
		_ = v.RegisterValidation("fiscal_year", validateFiscalYear)
		_ = v.RegisterValidation("component_key", validateComponentKey)
	})
}

func validateDepartment(fl validator.FieldLevel) bool {
	_, err := budget.ParseDepartment(fl.Field().String())
	return err == nil
}

func validateFiscalYear(fl validator.FieldLevel) bool {
	_, err := budget.ParseFiscalYear(fl.Field().String())
	return err == nil
}

func validateComponentKey(fl validator.FieldLevel) bool {
	return budget.ComponentKey(fl.Field().String()).Validate() == nil
}

// FormatValidationErrors formats validation errors into a standard response
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   e.Field(),
				Message: getValidationMessage(e),
			})
		}
	}

	return dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	)
}

// HandleValidationError returns a validation error response
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "department":
		return "Must be a lower-case department key"
	case "fiscal_year":
		return "Must be a fiscal year like 25-26"
	case "component_key":
		return "Must be a budget component key like employeeSalary"
	default:
		return "Invalid value"
	}
}

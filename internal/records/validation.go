package records

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/syncbook/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRecord はレコードの構造体タグに基づいて入力を検証する。
// 失敗した場合はVALIDATION_ERRORのAPIErrorを返す。
func validateRecord(rec any) error {
	err := validate.Struct(rec)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return model.NewValidationError(err.Error())
	}

	reasons := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		reasons = append(reasons, formatFieldError(fe))
	}
	return model.NewValidationError(strings.Join(reasons, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

package store

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/models"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func eventValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateEvent checks a calendar row before it is stored or processed.
// Failures are returned as *errors.ValidationError.
func ValidateEvent(e models.CalendarEvent) error {
	if err := eventValidator().Struct(e); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewValidationError(strings.ToLower(fe.Field()), fe.Value(),
				fmt.Sprintf("failed %q rule", fe.Tag()))
		}
		return apperrors.NewValidationError("event", e.Name, err.Error())
	}

	for field, v := range map[string]*float64{"forecast": e.Forecast, "previous": e.Previous, "actual": e.Actual} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return apperrors.NewValidationError(field, *v, "must be a finite number")
		}
	}
	return nil
}

package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/christopherklint97/daylog/internal/pm"
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidDate reports whether s is a real calendar date in strict YYYY-MM-DD
// form.
func ValidDate(s string) bool {
	if !isoDate.MatchString(s) {
		return false
	}
	_, err := time.Parse(pm.DateLayout, s)
	return err == nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the "isodate" tag registered
// and field names reported by their JSON names.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			return ValidDate(fl.Field().String())
		})
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// Validate checks v's struct tags and reports the first failure as a
// ValidationError.
func Validate(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Message: fieldMessage(fe)}
	}
	return &ValidationError{Message: err.Error()}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "isodate":
		return "must be a YYYY-MM-DD date"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	}
	return "failed " + fe.Tag() + " validation"
}

func validateEntries(entries []pm.Entry) error {
	if len(entries) == 0 {
		return &ValidationError{Field: "entries", Message: "must contain at least one entry"}
	}
	for i, e := range entries {
		if err := Validate(e); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return invalid(fmt.Sprintf("entries[%d].%s", i, ve.Field), "%s", ve.Message)
			}
			return err
		}
	}
	return nil
}

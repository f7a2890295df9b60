package store

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var ldbNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ldbname", func(fl validator.FieldLevel) bool {
		return ldbNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// validateLDBName enforces spec §3's "[a-z0-9_-]+" naming rule. It runs
// in the application before any dynamically-quoted identifier reaches
// SQL, as a defense layered on top of the %I quoting the stored
// procedures already apply.
func validateLDBName(name string) error {
	if err := validate.Var(name, "required,ldbname"); err != nil {
		return errors.Wrapf(ErrInvalidPath, "ldb name %q: %s", name, err)
	}
	return nil
}

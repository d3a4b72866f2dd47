// Package schema type-checks sanitized backend payloads against the versioned
// analysis and rewrite contracts. Numeric ranges are strict; enum values
// degrade to safe defaults.
package schema

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/zombar/textengine/internal/apperr"
)

// ValidatorSvc holds the validator singleton and its english translator
type ValidatorSvc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *ValidatorSvc
)

// Validator returns the shared validator, building it on first use
func Validator() *ValidatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// report json names so messages match the payload the backend sent
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		vSvc = &ValidatorSvc{Validator: v, Translator: trans}
	})
	return vSvc
}

// check validates v and reports the first failing field as a SchemaViolation
func check(schemaName string, v any) error {
	svc := Validator()
	err := svc.Validator.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &apperr.SchemaViolation{
			Schema: schemaName,
			Field:  fieldPath(fe.Namespace()),
			Reason: fe.Translate(svc.Translator),
		}
	}
	return &apperr.SchemaViolation{Schema: schemaName, Reason: err.Error()}
}

// fieldPath drops the root struct name from a validator namespace, so
// "analysisV3.quality.clarity" becomes "quality.clarity"
func fieldPath(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

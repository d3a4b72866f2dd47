package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zombar/textengine/internal/apperr"
)

// ErrMalformed marks a payload that is not parsable JSON at all
var ErrMalformed = errors.New("malformed json")

// Decoder turns one sanitized backend payload into a typed result.
// Failures are either ErrMalformed or an *apperr.SchemaViolation.
type Decoder[T any] interface {
	Name() string
	Decode(payload []byte) (T, error)
}

// decodeJSON unmarshals payload into dst. Type mismatches on known fields are
// reported as schema violations, anything else as ErrMalformed.
func decodeJSON(schemaName string, payload []byte, dst any) error {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty document", ErrMalformed)
	}

	err := json.Unmarshal(payload, dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			return &apperr.SchemaViolation{
				Schema: schemaName,
				Reason: fmt.Sprintf("payload must be an object, got %s", typeErr.Value),
			}
		}
		return &apperr.SchemaViolation{
			Schema: schemaName,
			Field:  field,
			Reason: fmt.Sprintf("%s must be of type %s, got %s", field, typeErr.Type, typeErr.Value),
		}
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// hasAny reports whether the top-level object carries any of keys
func hasAny(fields map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

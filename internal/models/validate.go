package models

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// validate is shared; validator caches struct metadata per type.
var validate = validator.New()

// Validate checks the struct fields against their validate tags.
func Validate(val interface{}) error {
	return validate.Struct(val)
}

// NormalizeHandle returns the canonical form of a user handle:
// NFC-normalized, trimmed, lower-case, with an optional leading '@' removed.
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(norm.NFC.String(handle))
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(h)
}

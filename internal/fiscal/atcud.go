package fiscal

import (
	"fmt"
	"regexp"
	"strings"
)

var atcudPattern = regexp.MustCompile(`^[A-Z0-9]+-[0-9]+$`)

// GenerateATCUD derives the regulator-facing unique document code from the
// series validation code and the allocated sequence number.
//
// A series without a validation code (not yet registered with the tax
// authority, typical of staging and test tenants) always falls back to
// "0-{number}". The fallback is uniform for every emission path; the empty
// string is never produced here.
func GenerateATCUD(validationCode string, number int64) string {
	code := strings.TrimSpace(validationCode)
	if code == "" {
		return fmt.Sprintf("0-%d", number)
	}
	return fmt.Sprintf("%s-%d", code, number)
}

// ValidateATCUD reports whether s matches the required ATCUD shape:
// an uppercase alphanumeric validation code, a dash, and a decimal number.
func ValidateATCUD(s string) bool {
	return atcudPattern.MatchString(s)
}

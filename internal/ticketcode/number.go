// Package ticketcode mints ticket numbers and the signed payload encoded
// into a ticket's scannable code.
package ticketcode

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

const numberPrefix = "tkt"

// NewNumber returns a ticket number of the form "tkt_<suffix>". The suffix
// is a UUIDv7 so numbers sort by issuance time and the random bits make
// them impractical to guess.
func NewNumber() (string, error) {
	tid, err := typeid.Generate(numberPrefix)
	if err != nil {
		return "", fmt.Errorf("generate ticket number: %w", err)
	}
	return tid.String(), nil
}

// ValidNumber reports whether s parses as a ticket number.
func ValidNumber(s string) bool {
	if !strings.HasPrefix(s, numberPrefix+"_") {
		return false
	}
	tid, err := typeid.Parse(s)
	return err == nil && tid.Prefix() == numberPrefix
}

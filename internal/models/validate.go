package models

import (
	"fmt"
	"strings"
)

// Validate applies the same constraints the intake form enforces: a name of
// at least two characters, a known gender value and a plausible email when
// one is given.
func (r RespondentInfo) Validate() error {
	if len(strings.TrimSpace(r.Name)) < 2 {
		return fmt.Errorf("respondent name must be at least 2 characters")
	}
	switch r.Gender {
	case "", "male", "female", "other", "prefer_not_to_say":
	default:
		return fmt.Errorf("unknown gender %q", r.Gender)
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		return fmt.Errorf("invalid email %q", r.Email)
	}
	return nil
}

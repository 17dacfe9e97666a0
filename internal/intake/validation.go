package intake

import (
	"fmt"
	"strings"
	"unicode"

	"leadmarket-platform/internal/leads"
)

// Submission is the public lead intake payload.
type Submission struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
	Email string `json:"email"`

	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state" binding:"required"`
	Zip     string `json:"zip" binding:"required"`

	Urgency leads.Urgency `json:"urgency" binding:"required"`
	Notes   string        `json:"notes"`
}

// FieldError names the offending field so the form can highlight it.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors aggregates every failing field in one pass, so the
// submitter sees all problems at once instead of one per attempt.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return "invalid submission: " + strings.Join(msgs, "; ")
}

// Validate normalizes the submission in place and returns every field
// problem found.
func (s *Submission) Validate() error {
	var errs ValidationErrors

	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.City = strings.TrimSpace(s.City)
	s.State = strings.ToUpper(strings.TrimSpace(s.State))
	s.Zip = strings.TrimSpace(s.Zip)
	s.Phone = normalizePhone(s.Phone)

	if len(s.Name) < 2 {
		errs = append(errs, FieldError{Field: "name", Reason: "must be at least 2 characters"})
	}
	if n := len(s.Phone); n < 10 || n > 15 {
		errs = append(errs, FieldError{Field: "phone", Reason: "must contain 10 to 15 digits"})
	}
	if s.Email != "" && !strings.Contains(s.Email, "@") {
		errs = append(errs, FieldError{Field: "email", Reason: "must be a valid address"})
	}
	if len(s.State) != 2 || !isAlpha(s.State) {
		errs = append(errs, FieldError{Field: "state", Reason: "must be a 2-letter code"})
	}
	if len(s.Zip) < 5 || !isDigits(s.Zip[:5]) {
		errs = append(errs, FieldError{Field: "zip", Reason: "must start with 5 digits"})
	}
	if !leads.ValidUrgency(s.Urgency) {
		errs = append(errs, FieldError{Field: "urgency", Reason: "must be STANDARD or STAT"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// normalizePhone strips formatting, keeping digits only.
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return s != ""
}

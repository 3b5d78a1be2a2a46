package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{1,2}[0-9]{7,15}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidationError lists the offending fields of an inbound event.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

// IsValidPhoneNumber checks the +<country><number> international shape.
func IsValidPhoneNumber(phone string) bool {
	return phonePattern.MatchString(phone)
}

func (e ApplicationEvent) Validate() error {
	fields := map[string]string{}
	required := map[string]string{
		"id":                      e.ID,
		"job_id":                  e.JobID,
		"candidate_id":            e.CandidateID,
		"candidate.phone_number":  e.Candidate.PhoneNumber,
		"candidate.first_name":    e.Candidate.FirstName,
		"candidate.last_name":     e.Candidate.LastName,
		"candidate.email_address": e.Candidate.EmailAddress,
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			fields[name] = "required"
		}
	}
	if _, missing := fields["candidate.phone_number"]; !missing && !IsValidPhoneNumber(e.Candidate.PhoneNumber) {
		fields["candidate.phone_number"] = "invalid phone number format"
	}
	if _, missing := fields["candidate.email_address"]; !missing && !emailPattern.MatchString(e.Candidate.EmailAddress) {
		fields["candidate.email_address"] = "invalid email address"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

package app

import (
	"fmt"
	"net/http"

	"statq/api/internal/access"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// accessDenied maps a gatekeeper verdict to a DomainError. Missing
// authentication is 401, a form that is not accepting responses is 403.
func accessDenied(verdict access.Verdict) *DomainError {
	status := http.StatusForbidden
	message := "Form is not accepting responses"
	switch verdict.Reason {
	case access.ReasonLoginRequired:
		status = http.StatusUnauthorized
		message = "Sign in to respond to this form"
	case access.ReasonPasswordRequired:
		status = http.StatusUnauthorized
		message = "This form requires a password"
	case access.ReasonNotPublished:
		message = "Form is not published"
	case access.ReasonNotStarted:
		message = "Form is not yet open"
	case access.ReasonEnded:
		message = "Form is closed"
	case access.ReasonFull:
		message = "Form has reached its response limit"
	}

	details := map[string]any{"reason": string(verdict.Reason)}
	if verdict.StartsAt != nil {
		details["startsAt"] = verdict.StartsAt.Unix()
	}
	if verdict.EndsAt != nil {
		details["endsAt"] = verdict.EndsAt.Unix()
	}
	return domainError(status, "ACCESS_DENIED", message, details)
}

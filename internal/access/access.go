// Package access decides whether a respondent may submit to a form. All
// functions are pure; password verification happens elsewhere and arrives
// here as a boolean fact.
package access

import "time"

// Reason identifies why a form rejected a respondent. Checks run in a fixed
// priority order and the first failure wins.
type Reason string

const (
	ReasonNotPublished     Reason = "not_published"
	ReasonNotStarted       Reason = "not_started"
	ReasonEnded            Reason = "ended"
	ReasonFull             Reason = "full"
	ReasonLoginRequired    Reason = "login_required"
	ReasonPasswordRequired Reason = "password_required"
)

// Status is the coarse human-facing lifecycle of a form.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusScheduled  Status = "scheduled"
	StatusActive     Status = "active"
	StatusEndingSoon Status = "ending_soon"
	StatusClosed     Status = "closed"
	StatusFull       Status = "full"
)

// endingSoonWindow is how long before the schedule end a form reports
// ending_soon instead of active.
const endingSoonWindow = 24 * time.Hour

// Config is the access-relevant slice of a form.
type Config struct {
	IsPublished      bool
	ScheduleStart    *time.Time
	ScheduleEnd      *time.Time
	MaxResponses     *int
	CurrentResponses int
	PasswordHash     string
	RequireLogin     bool
}

// Caller is what we know about the respondent.
type Caller struct {
	HasPassword bool // supplied and verified, never the raw password
	IsLoggedIn  bool
}

// Verdict is a typed allow/deny decision.
type Verdict struct {
	Allowed            bool
	Reason             Reason     // set iff not allowed
	StartsAt           *time.Time // set with ReasonNotStarted
	EndsAt             *time.Time // set with ReasonEnded
	ResponsesRemaining *int       // set on allow when MaxResponses is configured
}

// Evaluate runs the priority chain: published, schedule start, schedule end,
// quota, login, password. Later checks are skipped once one fails.
func Evaluate(cfg Config, caller Caller, now time.Time) Verdict {
	if !cfg.IsPublished {
		return Verdict{Reason: ReasonNotPublished}
	}
	if cfg.ScheduleStart != nil && now.Before(*cfg.ScheduleStart) {
		return Verdict{Reason: ReasonNotStarted, StartsAt: cfg.ScheduleStart}
	}
	if cfg.ScheduleEnd != nil && now.After(*cfg.ScheduleEnd) {
		return Verdict{Reason: ReasonEnded, EndsAt: cfg.ScheduleEnd}
	}
	if cfg.MaxResponses != nil && cfg.CurrentResponses >= *cfg.MaxResponses {
		return Verdict{Reason: ReasonFull}
	}
	if cfg.RequireLogin && !caller.IsLoggedIn {
		return Verdict{Reason: ReasonLoginRequired}
	}
	if cfg.PasswordHash != "" && !caller.HasPassword {
		return Verdict{Reason: ReasonPasswordRequired}
	}

	verdict := Verdict{Allowed: true}
	if cfg.MaxResponses != nil {
		remaining := *cfg.MaxResponses - cfg.CurrentResponses
		verdict.ResponsesRemaining = &remaining
	}
	return verdict
}

// StatusOf derives the coarse status. An unpublished form is always draft;
// otherwise full wins over scheduled, scheduled over closed, closed over
// ending_soon, and active is the remainder.
func StatusOf(cfg Config, now time.Time) Status {
	if !cfg.IsPublished {
		return StatusDraft
	}
	if cfg.MaxResponses != nil && cfg.CurrentResponses >= *cfg.MaxResponses {
		return StatusFull
	}
	if cfg.ScheduleStart != nil && now.Before(*cfg.ScheduleStart) {
		return StatusScheduled
	}
	if cfg.ScheduleEnd != nil {
		if now.After(*cfg.ScheduleEnd) {
			return StatusClosed
		}
		if cfg.ScheduleEnd.Sub(now) <= endingSoonWindow {
			return StatusEndingSoon
		}
	}
	return StatusActive
}

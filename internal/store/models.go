package store

import (
	"encoding/json"
	"time"
)

// Form statuses. Published is the only status that accepts responses.
const (
	FormStatusDraft     = "draft"
	FormStatusPublished = "published"
	FormStatusClosed    = "closed"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Form is a questionnaire owned by an author. Schema is the ordered question
// definition as an opaque JSON document; the API never interprets individual
// field types.
type Form struct {
	ID            string
	OwnerID       string
	Title         string
	Description   string
	Schema        json.RawMessage
	Status        string
	ScheduleStart *time.Time
	ScheduleEnd   *time.Time
	MaxResponses  *int
	PasswordHash  string
	RequireLogin  bool
	CollectEmail  bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Response is one submission attempt. Its Answer rows are lifecycle-bound:
// deleting the response removes them (FK cascade).
type Response struct {
	ID              string
	FormID          string
	RespondentID    *string
	RespondentEmail string
	CreatedAt       time.Time
}

// Answer is one answered question within a response.
type Answer struct {
	ID         string
	ResponseID string
	QuestionID string
	Value      json.RawMessage
}

// FormSummary is the list-view projection for the author dashboard.
type FormSummary struct {
	ID            string
	Title         string
	Status        string
	ResponseCount int
	UpdatedAt     time.Time
}

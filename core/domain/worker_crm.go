package domain

import (
	"time"

	"github.com/google/uuid"
)

// Opportunity statuses.
const (
	OpportunityStatusOpen = "open"
	OpportunityStatusWon  = "won"
	OpportunityStatusLost = "lost"
)

// Lead statuses.
const (
	LeadStatusNew = "new"
)

// Follow-up statuses.
const (
	FollowUpStatusPending = "pending"
)

// Contact is keyed by normalized email.
type Contact struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	ContactType string    `json:"contact_type,omitempty"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stage is a named pipeline stage for opportunities.
type Stage struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type Opportunity struct {
	ID         int64      `json:"id"`
	ContactID  int64      `json:"contact_id"`
	Title      string     `json:"title"`
	Source     string     `json:"source,omitempty"`
	SubSource  string     `json:"sub_source,omitempty"`
	StageID    *int64     `json:"stage_id,omitempty"`
	Status     string     `json:"status"`
	Value      float64    `json:"value"`
	AssignedTo string     `json:"assigned_to,omitempty"`
	EmailID    *int64     `json:"email_id,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Lead is unique per (contact, conversation).
type Lead struct {
	ID             int64     `json:"id"`
	ContactID      int64     `json:"contact_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Source         string    `json:"source,omitempty"`
	Status         string    `json:"status"`
	AssignedTo     string    `json:"assigned_to,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Value          float64   `json:"value"`
	EmailID        *int64    `json:"email_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Activity struct {
	ID             int64     `json:"id"`
	ContactID      int64     `json:"contact_id"`
	OpportunityID  *int64    `json:"opportunity_id,omitempty"`
	Type           string    `json:"type"`
	Description    string    `json:"description,omitempty"`
	Direction      string    `json:"direction,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	EmailID        *int64    `json:"email_id,omitempty"`
	User           string    `json:"user,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type FollowUp struct {
	ID        int64     `json:"id"`
	ContactID int64     `json:"contact_id"`
	LeadID    *int64    `json:"lead_id,omitempty"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes,omitempty"`
	DueDate   time.Time `json:"due_date"`
	Status    string    `json:"status"`
	EmailID   *int64    `json:"email_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CommissionSnapshot freezes an opportunity's commission-relevant fields.
// At most one exists per (opportunity, email).
type CommissionSnapshot struct {
	ID            int64      `json:"id"`
	OpportunityID int64      `json:"opportunity_id"`
	EmailID       *int64     `json:"email_id,omitempty"`
	Value         float64    `json:"value"`
	Source        string     `json:"source,omitempty"`
	SubSource     string     `json:"sub_source,omitempty"`
	LockedBy      *uuid.UUID `json:"locked_by,omitempty"`
	LockedAt      time.Time  `json:"locked_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

package domain

import "time"

// ActionResult is the structured outcome of one action. Failures are values.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`

	// Created is false when an existing record was reused.
	Created       bool   `json:"created"`
	ContactID     *int64 `json:"contactId,omitempty"`
	OpportunityID *int64 `json:"opportunityId,omitempty"`
	RecordID      *int64 `json:"recordId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// RuleResult records one action executed for one matched rule.
type RuleResult struct {
	RuleID   int64        `json:"ruleId"`
	RuleName string       `json:"rule"`
	Action   ActionType   `json:"action"`
	Result   ActionResult `json:"result"`
}

// EmailResult is the per-message processing result.
type EmailResult struct {
	Success         bool                   `json:"success"`
	EmailID         int64                  `json:"emailId"`
	Skipped         bool                   `json:"skipped,omitempty"`
	Error           string                 `json:"error,omitempty"`
	CategoryMapping *CategoryMappingResult `json:"categoryMapping,omitempty"`
	MatchedRules    []int64                `json:"matchedRules,omitempty"`
	RuleResults     []RuleResult           `json:"ruleResults"`
	Processed       bool                   `json:"processed"`
	Duration        time.Duration          `json:"-"`
}

// ContactsCreated counts create_contact actions that inserted a new contact.
func (r *EmailResult) ContactsCreated() int {
	n := 0
	for _, rr := range r.RuleResults {
		if rr.Action == ActionCreateContact && rr.Result.Success && rr.Result.Created {
			n++
		}
	}
	return n
}

// BatchSummary aggregates a processing pass.
type BatchSummary struct {
	Processed       int           `json:"processed"`
	Skipped         int           `json:"skipped"`
	Failed          int           `json:"failed"`
	ContactsCreated int           `json:"contactsCreated"`
	Results         []EmailResult `json:"results"`
}

// Add folds one message result into the summary.
func (s *BatchSummary) Add(r EmailResult) {
	s.Results = append(s.Results, r)
	switch {
	case !r.Success:
		s.Failed++
	case r.Skipped:
		s.Skipped++
	default:
		s.Processed++
		s.ContactsCreated += r.ContactsCreated()
	}
}

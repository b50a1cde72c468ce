package rules

import (
	"strings"

	"crm_worker/core/domain"
)

// ObservedState accumulates the side effects of actions run earlier in the
// same pass over one message. Later conditions and actions read through it
// instead of relying on mutation of the message.
type ObservedState struct {
	contactID       *int64
	opportunityID   *int64
	addedCategories []string
}

// NewObservedState starts an empty state for one message.
func NewObservedState() *ObservedState {
	return &ObservedState{}
}

// ContactID returns the contact resolved in this pass, else the message's own.
func (s *ObservedState) ContactID(msg *domain.Message) *int64 {
	if s != nil && s.contactID != nil {
		return s.contactID
	}
	return msg.ContactID
}

// OpportunityID returns the opportunity touched in this pass, else the message's own.
func (s *ObservedState) OpportunityID(msg *domain.Message) *int64 {
	if s != nil && s.opportunityID != nil {
		return s.opportunityID
	}
	return msg.OpportunityID
}

// Categories returns the message categories plus any assigned in this pass.
func (s *ObservedState) Categories(msg *domain.Message) []string {
	if s == nil || len(s.addedCategories) == 0 {
		return msg.Categories
	}
	out := append([]string{}, msg.Categories...)
	for _, c := range s.addedCategories {
		if !containsFold(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *ObservedState) setContact(id int64) {
	s.contactID = &id
}

func (s *ObservedState) setOpportunity(id int64) {
	s.opportunityID = &id
}

func (s *ObservedState) addCategory(c string) {
	if !containsFold(s.addedCategories, c) {
		s.addedCategories = append(s.addedCategories, c)
	}
}

// Apply returns a copy of the message with the observed effects folded in.
func (s *ObservedState) Apply(msg *domain.Message) *domain.Message {
	out := msg.Clone()
	out.ContactID = s.ContactID(msg)
	out.OpportunityID = s.OpportunityID(msg)
	out.Categories = s.Categories(msg)
	return out
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

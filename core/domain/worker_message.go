package domain

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Direction values for a message.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Provider values for a message.
const (
	ProviderOutlook = "outlook"
	ProviderGoogle  = "google"
)

// Message is the normalized email the rules engine consumes.
type Message struct {
	ID               int64      `json:"id"`
	ExternalID       string     `json:"external_id"`
	Provider         string     `json:"provider,omitempty"`
	Subject          string     `json:"subject"`
	Body             string     `json:"body"`
	FromEmail        string     `json:"from_email"`
	ToEmail          string     `json:"to_email"`
	ContactID        *int64     `json:"contact_id"`
	OpportunityID    *int64     `json:"opportunity_id"`
	ConversationID   string     `json:"conversation_id,omitempty"`
	Direction        string     `json:"direction,omitempty"`
	Categories       Categories `json:"categories"`
	IsFlagged        bool       `json:"is_flagged"`
	FlagDueDate      *time.Time `json:"flag_due_date,omitempty"`
	FolderID         string     `json:"folder_id,omitempty"`
	ProcessedByRules bool       `json:"processed_by_rules"`
	ReceivedAt       time.Time  `json:"received_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Clone returns a copy whose slices and pointers are not shared.
func (m *Message) Clone() *Message {
	c := *m
	c.Categories = append(Categories(nil), m.Categories...)
	if m.ContactID != nil {
		id := *m.ContactID
		c.ContactID = &id
	}
	if m.OpportunityID != nil {
		id := *m.OpportunityID
		c.OpportunityID = &id
	}
	if m.FlagDueDate != nil {
		t := *m.FlagDueDate
		c.FlagDueDate = &t
	}
	return &c
}

// HasCategory reports whether the message already carries the category (case-insensitive).
func (m *Message) HasCategory(name string) bool {
	for _, c := range m.Categories {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// NormalizeEmail lower-cases and trims an address. It is the contact dedup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// =============================================================================
// Categories
// =============================================================================

// Categories is the provider-assigned tag list of a message.
type Categories []string

// UnmarshalJSON accepts an array, a JSON-encoded array string, or a comma-separated string.
func (c *Categories) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*c = cleanCategories(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// null or an unexpected shape leaves the list empty
		*c = nil
		return nil
	}
	*c = ParseCategories(s)
	return nil
}

// ParseCategories decodes a stored category value. JSON arrays are tried first,
// anything else is treated as a comma-separated list.
func ParseCategories(raw string) Categories {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
			return cleanCategories(list)
		}
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
			return ParseCategories(inner)
		}
	}
	return cleanCategories(strings.Split(trimmed, ","))
}

// Encode returns the JSON array form used for storage.
func (c Categories) Encode() string {
	if len(c) == 0 {
		return "[]"
	}
	data, err := json.Marshal([]string(c))
	if err != nil {
		return "[]"
	}
	return string(data)
}

func cleanCategories(list []string) Categories {
	out := make(Categories, 0, len(list))
	for _, item := range list {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

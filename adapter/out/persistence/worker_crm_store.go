package persistence

import (
	"crm_worker/core/port/out"

	"github.com/jmoiron/sqlx"
)

// NewCRMStore wires every CRM repository against one database handle.
func NewCRMStore(db *sqlx.DB) out.CRMStore {
	return out.CRMStore{
		Contacts:      NewContactAdapter(db),
		Opportunities: NewOpportunityAdapter(db),
		Stages:        NewStageAdapter(db),
		Leads:         NewLeadAdapter(db),
		Activities:    NewActivityAdapter(db),
		FollowUps:     NewFollowUpAdapter(db),
		Commissions:   NewCommissionAdapter(db),
		Messages:      NewEmailAdapter(db),
	}
}

var (
	_ out.RuleRepository            = (*RuleAdapter)(nil)
	_ out.CategoryMappingRepository = (*CategoryMappingAdapter)(nil)
	_ out.MessageRepository         = (*EmailAdapter)(nil)
	_ out.ContactRepository         = (*ContactAdapter)(nil)
	_ out.OpportunityRepository     = (*OpportunityAdapter)(nil)
	_ out.StageRepository           = (*StageAdapter)(nil)
	_ out.LeadRepository            = (*LeadAdapter)(nil)
	_ out.ActivityRepository        = (*ActivityAdapter)(nil)
	_ out.FollowUpRepository        = (*FollowUpAdapter)(nil)
	_ out.CommissionRepository      = (*CommissionAdapter)(nil)
)

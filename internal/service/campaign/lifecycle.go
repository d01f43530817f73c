package campaign

import "github.com/ignite/audience-dispatch/internal/domain"

// transitions lists every status edge the service will attempt.
//
//	draft    -> queued              schedule
//	queued   -> sending | canceled  claim, cancel
//	sending  -> sent | failed       complete, fail
//	sending  -> queued              release (validation failure after claim)
//	sent     -> sending             resend claim
//	failed   -> sending             resend claim after a run that delivered nothing
var transitions = map[domain.CampaignStatus][]domain.CampaignStatus{
	domain.CampaignDraft:   {domain.CampaignQueued},
	domain.CampaignQueued:  {domain.CampaignSending, domain.CampaignCanceled},
	domain.CampaignSending: {domain.CampaignSent, domain.CampaignFailed, domain.CampaignQueued},
	domain.CampaignSent:    {domain.CampaignSending},
	domain.CampaignFailed:  {domain.CampaignSending},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to domain.CampaignStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

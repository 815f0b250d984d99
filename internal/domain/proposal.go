package domain

import "time"

// ProposalStatus of a force-match proposal.
type ProposalStatus string

const (
	ProposalProposed ProposalStatus = "proposed"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is one maker–checker force-match request, persisted in
// <run_id>_proposals.json. Approval requires a checker distinct from the
// maker.
type Proposal struct {
	ProposalID string         `json:"proposal_id"`
	RRN        string         `json:"rrn"`
	Action     string         `json:"action"`
	Direction  Direction      `json:"direction,omitempty"`
	RunID      string         `json:"run_id"`
	Reason     string         `json:"reason"`
	Maker      string         `json:"maker"`
	Checker    string         `json:"checker,omitempty"`
	Comments   string         `json:"comments,omitempty"`
	Status     ProposalStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
}

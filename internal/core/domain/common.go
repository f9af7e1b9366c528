package domain

import "time"

// AuditFields holds standard audit information for domain entities.
type AuditFields struct {
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"` // Acting user/agent ID
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy string    `json:"lastUpdatedBy"`
}

// AuditEntry is one immutable line in an entity's audit trail.
// Every mutating operation on a transaction appends exactly one.
type AuditEntry struct {
	Action    string            `json:"action"`
	Actor     string            `json:"actor"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// ApprovalLevel is the authority tier required to approve a transaction.
type ApprovalLevel string

const (
	ApprovalLevelClerk   ApprovalLevel = "CLERK"
	ApprovalLevelManager ApprovalLevel = "MANAGER"
	ApprovalLevelAdmin   ApprovalLevel = "ADMIN"
)

// Rank orders approval levels so authority checks can compare them.
func (l ApprovalLevel) Rank() int {
	switch l {
	case ApprovalLevelClerk:
		return 1
	case ApprovalLevelManager:
		return 2
	case ApprovalLevelAdmin:
		return 3
	default:
		return 0
	}
}

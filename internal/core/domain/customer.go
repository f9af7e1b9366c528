package domain

// KYCLevel is the tiered identity-verification depth of a customer.
// Referenced only for risk weighting; onboarding maintains it elsewhere.
type KYCLevel string

const (
	KYCBasic    KYCLevel = "BASIC"
	KYCStandard KYCLevel = "STANDARD"
	KYCEnhanced KYCLevel = "ENHANCED"
)

// Customer is the slice of the customer record the risk evaluator consumes.
type Customer struct {
	CustomerID string   `json:"customerID"`
	FullName   string   `json:"fullName"`
	KYCLevel   KYCLevel `json:"kycLevel"`
	HighRisk   bool     `json:"highRisk"` // Flagged by compliance
	PINSet     bool     `json:"pinSet"`
	AuditFields
}

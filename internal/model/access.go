package model

// AccessDecision is the outcome of the access predicate. Permissions are
// only meaningful when Allowed is true; for cross-organization access they
// are exactly the grant's set, never broader.
type AccessDecision struct {
	Allowed     bool           `json:"allowed"`
	AccessType  AccessType     `json:"access_type,omitempty"`
	Permissions PermissionList `json:"permissions,omitempty"`
}

// Deny is the zero decision.
func Deny() *AccessDecision {
	return &AccessDecision{}
}

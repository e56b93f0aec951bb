package model

// Principal is the authenticated end user embedded in a session token.  The
// JSON names follow the identity payload returned by the platform.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"firstName"`
	Email       string `json:"email"`
}

// CredentialRecord pairs a subject (site id or user id) with the platform
// access credential that authorizes it.  There is at most one record per
// SubjectID; writing a record replaces the previous one.
type CredentialRecord struct {
	SubjectID        string
	AccessCredential string
}

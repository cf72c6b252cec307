package model

// User is the signed-in identity as reported by the identity provider.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// SessionContext carries the identity every store call needs. It is handed to
// the directory and session controller explicitly rather than looked up per call.
type SessionContext struct {
	User *User
}

// UserID returns the signed-in user's id, or "" when signed out.
func (c SessionContext) UserID() string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}

// SignedIn reports whether a user is present.
func (c SessionContext) SignedIn() bool {
	return c.User != nil && c.User.ID != ""
}

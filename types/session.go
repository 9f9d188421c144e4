package types

// Session records which author, if any, is authenticated for a caller.
// It is loaded per request and handed explicitly to the operations that
// read or change it.
type Session struct {
	LoggedIn bool   `json:"logged_in"`
	User     string `json:"user,omitempty"`
}

// IsLoggedIn reports whether the session carries an authenticated author.
func (s *Session) IsLoggedIn() bool {
	return s != nil && s.LoggedIn && s.User != ""
}

// Clear drops any authenticated identity from the session.
func (s *Session) Clear() {
	if s == nil {
		return
	}
	s.LoggedIn = false
	s.User = ""
}

package chat

// Turn is one prior exchange supplied by the caller. History retention is
// the caller's concern; the backend never stores these.
type Turn struct {
	User string `json:"user,omitempty"`
	Bot  string `json:"bot,omitempty"`
}

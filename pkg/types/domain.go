package types

// Turn is one exchange of a conversation: the user message and the bot reply.
type Turn [2]string

// User returns the user half of the turn.
func (t Turn) User() string { return t[0] }

// Bot returns the bot half of the turn.
func (t Turn) Bot() string { return t[1] }

// History is a conversation as two parallel turn lists. Internal is what the
// model is prompted with, Visible is what a client displays. Both lists always
// have the same length.
type History struct {
	// Turns used to build prompts.
	Internal []Turn `json:"internal"`
	// Turns shown to the user (HTML-escaped user text).
	Visible []Turn `json:"visible"`
}

// Len returns the number of turns.
func (h History) Len() int { return len(h.Internal) }

// Consistent reports whether the internal and visible lists line up.
func (h History) Consistent() bool { return len(h.Internal) == len(h.Visible) }

// Copy returns a history that shares no backing arrays with h.
func (h History) Copy() History {
	out := History{
		Internal: make([]Turn, len(h.Internal)),
		Visible:  make([]Turn, len(h.Visible)),
	}
	copy(out.Internal, h.Internal)
	copy(out.Visible, h.Visible)
	return out
}

// ScoreResult is the log-likelihood of one scored prompt.
type ScoreResult struct {
	// Sum of the log-probabilities of every observed next token.
	// example: -12.73
	Logit float64 `json:"logit" example:"-12.73"`
	// Number of tokens in the scored prompt.
	// example: 17
	Len int `json:"len" example:"17"`
	// Set when this prompt could not be scored; Logit and Len are zero then.
	Error string `json:"error,omitempty"`
}

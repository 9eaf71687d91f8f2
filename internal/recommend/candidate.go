// Package recommend extracts track recommendations from assistant replies and
// stores them per user.
package recommend

type Track struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

// Candidate is a recommendation parsed from one reply and not yet stored.
type Candidate struct {
	ID        string  `json:"id"`
	Track     Track   `json:"track"`
	Reason    string  `json:"reason"`
	Mood      *string `json:"mood,omitempty"`
	Context   *string `json:"context,omitempty"`
	Timestamp int64   `json:"timestamp"` // epoch ms
}

// Batch is every storable candidate of one turn.
type Batch struct {
	TurnID     string      `json:"turn_id"`
	UserID     string      `json:"user_id"`
	Candidates []Candidate `json:"candidates"`
}

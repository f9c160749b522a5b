// Package domain contains entity without logic, just meta-data
package domain

// MaxLabelLen counts characters, as the max=36 validation tags do.
const MaxLabelLen = 36

// ParticipantID is the server-assigned id of one live signaling connection.
// A reconnect gets a fresh id.
type ParticipantID string

type Participant struct {
	ID          ParticipantID `json:"-"`
	Label       string        `json:"name"`
	IsPresenter bool          `json:"isPresenter"`
}

// NewParticipant falls back to the connection id when no label was given.
func NewParticipant(id ParticipantID, label string, isPresenter bool) *Participant {
	if label == "" {
		label = string(id)
	}
	if runes := []rune(label); len(runes) > MaxLabelLen {
		label = string(runes[:MaxLabelLen])
	}
	return &Participant{ID: id, Label: label, IsPresenter: isPresenter}
}

package domain

// TranscriptDiff represents the changes between two snapshots of a session.
// It is designed to be serialized to JSON for partial updates on the client.
type TranscriptDiff struct {
	SessionID     string         `json:"session_id"`
	Generation    uint64         `json:"generation"`
	CurrentNodeID *string        `json:"current_node_id,omitempty"`
	Status        *SessionStatus `json:"status,omitempty"`
	Processing    *bool          `json:"processing,omitempty"`

	// Appended holds the new turns. When Reset is set it holds the whole transcript
	// and clients must discard what they rendered before.
	Appended []Turn `json:"appended,omitempty"`
	Reset    bool   `json:"reset,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// It returns nil when nothing changed.
func Diff(oldState, newState *State) *TranscriptDiff {
	if newState == nil {
		return nil
	}

	diff := &TranscriptDiff{
		SessionID:  newState.SessionID,
		Generation: newState.Generation,
	}

	reset := oldState == nil ||
		oldState.Generation != newState.Generation ||
		len(newState.Transcript) < len(oldState.Transcript)

	if reset || oldState.CurrentNodeID != newState.CurrentNodeID {
		id := newState.CurrentNodeID
		diff.CurrentNodeID = &id
	}
	if reset || oldState.Status != newState.Status {
		status := newState.Status
		diff.Status = &status
	}
	if reset || oldState.Processing != newState.Processing {
		processing := newState.Processing
		diff.Processing = &processing
	}

	if reset {
		diff.Reset = true
		diff.Appended = append([]Turn{}, newState.Transcript...)
		return diff
	}
	if len(newState.Transcript) > len(oldState.Transcript) {
		diff.Appended = append([]Turn{}, newState.Transcript[len(oldState.Transcript):]...)
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *TranscriptDiff) IsEmpty() bool {
	return d.CurrentNodeID == nil &&
		d.Status == nil &&
		d.Processing == nil &&
		len(d.Appended) == 0 &&
		!d.Reset
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotFormatVersion is the current backup payload version
const SnapshotFormatVersion = 1

// Snapshot is the unit exchanged with remote storage. It is always a complete
// replacement for the local Conversation Set, never a delta.
type Snapshot struct {
	Conversations []Conversation `json:"conversations"`
	ActiveID      *string        `json:"activeId"`
	SavedAt       time.Time      `json:"savedAt"`
	FormatVersion int            `json:"formatVersion"`
}

// NewSnapshot captures a set for upload
func NewSnapshot(set *ConversationSet, now time.Time) *Snapshot {
	c := set.Clone()
	return &Snapshot{
		Conversations: c.Conversations,
		ActiveID:      c.ActiveID,
		SavedAt:       now.UTC(),
		FormatVersion: SnapshotFormatVersion,
	}
}

// Set returns the Conversation Set carried by the snapshot
func (s *Snapshot) Set() *ConversationSet {
	set := &ConversationSet{Conversations: s.Conversations, ActiveID: s.ActiveID}
	set.Normalize()
	return set.Clone()
}

// DecodeSnapshot parses a backup blob. Malformed content and unknown versions
// are reported as ErrStorageCorrupt.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	if snap.FormatVersion != SnapshotFormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrStorageCorrupt, snap.FormatVersion)
	}
	if snap.Conversations == nil {
		snap.Conversations = []Conversation{}
	}
	return &snap, nil
}

package core

import (
	"sort"

	"pkt.systems/codesync/schema"
)

// Presence derives the presence view from the roster and cursor map.
// Roster entries come first in roster order, followed by cursors whose
// owner is not on the roster, sorted by id.
func (s *State) Presence() []schema.PresenceEntry {
	out := make([]schema.PresenceEntry, 0, len(s.roster)+len(s.cursors))
	seen := make(map[schema.ParticipantID]struct{}, len(s.roster))
	for _, p := range s.roster {
		entry := schema.PresenceEntry{
			ID:     p.ID,
			Name:   p.Name,
			Online: p.Online,
			Self:   p.ID == s.self,
		}
		if pos, ok := s.cursors[p.ID]; ok {
			pos := pos
			entry.Cursor = &pos
		}
		seen[p.ID] = struct{}{}
		out = append(out, entry)
	}
	var stale []schema.ParticipantID
	for id := range s.cursors {
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	sortParticipants(stale)
	for _, id := range stale {
		pos := s.cursors[id]
		out = append(out, schema.PresenceEntry{
			ID:     id,
			Name:   s.names[id],
			Cursor: &pos,
			Self:   id == s.self,
			Stale:  true,
		})
	}
	return out
}

func sortParticipants(ids []schema.ParticipantID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

package core

import "pkt.systems/codesync/schema"

type reactionKey struct {
	user schema.ParticipantID
	kind schema.ReactionKind
}

// reactionSet holds reactions with set semantics per message.
type reactionSet struct {
	byMessage map[schema.MessageID]map[reactionKey]struct{}
}

func newReactionSet() *reactionSet {
	return &reactionSet{byMessage: make(map[schema.MessageID]map[reactionKey]struct{})}
}

// toggle adds the reaction if absent and removes it if present.
// It reports whether the reaction is present afterwards.
func (r *reactionSet) toggle(messageID schema.MessageID, user schema.ParticipantID, kind schema.ReactionKind) bool {
	key := reactionKey{user: user, kind: kind}
	set := r.byMessage[messageID]
	if _, ok := set[key]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(r.byMessage, messageID)
		}
		return false
	}
	if set == nil {
		set = make(map[reactionKey]struct{})
		r.byMessage[messageID] = set
	}
	set[key] = struct{}{}
	return true
}

func (r *reactionSet) has(messageID schema.MessageID, user schema.ParticipantID, kind schema.ReactionKind) bool {
	_, ok := r.byMessage[messageID][reactionKey{user: user, kind: kind}]
	return ok
}

// tallies summarizes a message's reactions in display order of kinds.
func (r *reactionSet) tallies(messageID schema.MessageID, self schema.ParticipantID) []schema.ReactionTally {
	set := r.byMessage[messageID]
	if len(set) == 0 {
		return nil
	}
	var out []schema.ReactionTally
	for _, kind := range schema.ReactionKinds() {
		tally := schema.ReactionTally{Kind: kind}
		for key := range set {
			if key.kind != kind {
				continue
			}
			tally.Count++
			tally.ReactedBy = append(tally.ReactedBy, key.user)
			if key.user == self {
				tally.Mine = true
			}
		}
		if tally.Count > 0 {
			sortParticipants(tally.ReactedBy)
			out = append(out, tally)
		}
	}
	return out
}

func (r *reactionSet) snapshot(self schema.ParticipantID) map[schema.MessageID][]schema.ReactionTally {
	out := make(map[schema.MessageID][]schema.ReactionTally, len(r.byMessage))
	for id := range r.byMessage {
		if tallies := r.tallies(id, self); len(tallies) > 0 {
			out[id] = tallies
		}
	}
	return out
}

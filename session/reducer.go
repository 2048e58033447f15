package session

import "slices"

// Reduce returns the state that follows s after ev. It is pure: s is never
// modified and the result shares no mutable backing arrays that a later
// Reduce would write to.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case StatusChanged:
		s.Status = ev.Status
		if ev.Tunnels != nil {
			s.PreviewEndpoint = ev.Tunnels[PreviewPort]
		}
		if ev.FilePaths != nil {
			s.FileTreePaths = slices.Clone(ev.FilePaths)
		}
		s.LastError = ""

	case ChatUpdated:
		s = applyChatUpdate(s, ev)
		s.PreviewFingerprint++

	case ChatChunk:
		s = applyChatChunk(s, ev)
		s.PreviewFingerprint++

	case Connecting:
		s.Status = StatusConnecting
		s.LastError = ""

	case Disconnected:
		s.Status = StatusDisconnected
		s.LastError = ev.Reason

	case UserMessageAdded:
		m := ev.Message.clone()
		m.Role = RoleUser
		m.ID = ""
		s.Transcript = appendMessage(s.Transcript, m)

	case UserMessageRetracted:
		i := slices.IndexFunc(s.Transcript, func(m Message) bool {
			return m.LocalID == ev.LocalID && !m.Persisted()
		})
		if ev.LocalID != "" && i >= 0 {
			s.Transcript = slices.Delete(slices.Clone(s.Transcript), i, i+1)
		}

	case Seeded:
		s = applySeed(s, ev.Seed)

	case NavigationConsumed:
		s.PendingNavigationPath = ""

	case Failed:
		s.LastError = ev.Reason
	}
	return s
}

// ReduceAll folds events over s left to right
func ReduceAll(s State, events ...Event) State {
	for _, ev := range events {
		s = Reduce(s, ev)
	}
	return s
}

func applyChatUpdate(s State, ev ChatUpdated) State {
	m := ev.Message.clone()
	m.LocalID = ""

	switch i := s.indexOf(m.ID); {
	case i >= 0:
		s.Transcript = replaceAt(s.Transcript, i, m)
	case m.Role == RoleAssistant && lastStreaming(s):
		s.Transcript = replaceAt(s.Transcript, len(s.Transcript)-1, m)
	case m.Role == RoleUser && optimisticCopy(s, m) >= 0:
		i := optimisticCopy(s, m)
		m.LocalID = s.Transcript[i].LocalID
		s.Transcript = replaceAt(s.Transcript, i, m)
	default:
		s.Transcript = appendMessage(s.Transcript, m)
	}

	if ev.FollowUps != nil {
		s.SuggestedFollowUps = slices.Clone(ev.FollowUps)
	}
	if ev.NavigateTo != "" {
		s.PendingNavigationPath = ev.NavigateTo
	}
	return s
}

func applyChatChunk(s State, ev ChatChunk) State {
	if lastStreaming(s) {
		i := len(s.Transcript) - 1
		m := s.Transcript[i]
		m.Content += ev.Content
		m.ThinkingContent += ev.ThinkingContent
		s.Transcript = replaceAt(s.Transcript, i, m)
		return s
	}
	s.Transcript = appendMessage(s.Transcript, Message{
		Role:            RoleAssistant,
		Content:         ev.Content,
		ThinkingContent: ev.ThinkingContent,
	})
	return s
}

// applySeed places the persisted transcript ahead of local entries the
// build service has not acknowledged yet
func applySeed(s State, seed Seed) State {
	merged := make([]Message, 0, len(seed.Transcript)+len(s.Transcript))
	seen := make(map[MessageID]bool, len(seed.Transcript))
	for _, m := range seed.Transcript {
		if m.ID != "" {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
		}
		merged = append(merged, m.clone())
	}
	for _, m := range s.Transcript {
		if m.ID != "" && seen[m.ID] {
			continue
		}
		merged = append(merged, m.clone())
	}
	s.Transcript = merged

	if seed.Title != "" {
		s.Title = seed.Title
	}
	if seed.FilePaths != nil {
		s.FileTreePaths = slices.Clone(seed.FilePaths)
	}
	return s
}

func lastStreaming(s State) bool {
	last, ok := s.LastMessage()
	return ok && last.streaming()
}

// optimisticCopy finds the oldest unacknowledged user message with the
// same content as m
func optimisticCopy(s State, m Message) int {
	return slices.IndexFunc(s.Transcript, func(o Message) bool {
		return o.Role == RoleUser && !o.Persisted() && o.Content == m.Content
	})
}

func appendMessage(in []Message, m Message) []Message {
	out := make([]Message, len(in), len(in)+1)
	copy(out, in)
	return append(out, m)
}

func replaceAt(in []Message, i int, m Message) []Message {
	out := slices.Clone(in)
	out[i] = m
	return out
}

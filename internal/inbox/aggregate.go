// Package inbox turns a flat list of direct messages into per-counterpart conversations.
package inbox

import (
	"sort"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
)

// Aggregate builds one conversation per distinct counterpart of userID.
// Messages not involving userID are ignored. Participants supplies display
// details and may omit counterparts. The result is ordered by most recent
// message first.
func Aggregate(userID uuid.UUID, messages []domain.Message, participants map[uuid.UUID]domain.Participant) []domain.Conversation {
	byCounterpart := make(map[uuid.UUID]*domain.Conversation)

	for _, m := range messages {
		if m.SenderID != userID && m.RecipientID != userID {
			continue
		}
		other := m.Counterpart(userID)
		if other == userID {
			continue
		}

		c, ok := byCounterpart[other]
		if !ok {
			c = &domain.Conversation{UserID: other}
			if p, found := participants[other]; found {
				c.DisplayName = p.DisplayName
				c.Role = p.Role
			}
			byCounterpart[other] = c
		}

		if !ok || m.CreatedAt.After(c.LastMessageTime) {
			c.LastMessage = m.Content
			c.LastMessageTime = m.CreatedAt
		}
		if m.RecipientID == userID && !m.IsRead {
			c.UnreadCount++
		}
	}

	out := make([]domain.Conversation, 0, len(byCounterpart))
	for _, c := range byCounterpart {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].LastMessageTime.After(out[j].LastMessageTime)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

// UnreadTotal counts unread messages addressed to userID.
func UnreadTotal(userID uuid.UUID, messages []domain.Message) int {
	n := 0
	for _, m := range messages {
		if m.RecipientID == userID && !m.IsRead {
			n++
		}
	}
	return n
}

// Package roster aggregates conversation state for the contact
// sidebar: last-message previews, unread counts, search and ranking.
// All functions are pure; callers feed them repository data.
package roster

import (
	"sort"
	"strings"
	"time"

	"chatify-service/internal/conversation"
	"chatify-service/internal/models"
)

// Filter selects which contacts appear when no search query is set.
type Filter string

const (
	// FilterRecent shows only contacts with an existing conversation.
	FilterRecent Filter = "recent"
	// FilterAll shows every registered user.
	FilterAll Filter = "all"
)

// ParseFilter maps a query parameter to a Filter, defaulting to recent.
func ParseFilter(s string) Filter {
	if s == string(FilterAll) {
		return FilterAll
	}
	return FilterRecent
}

// Stats is the aggregate of one conversation from the viewer's side.
type Stats struct {
	Latest *models.Message
	Unread int
}

// Aggregate scans the viewer's full message set and computes, per
// conversation, the latest message and the count of unread messages
// from the other party.
func Aggregate(msgs []models.Message, selfID string) map[string]Stats {
	out := make(map[string]Stats)
	for i := range msgs {
		m := msgs[i]
		s := out[m.ConversationID]
		if s.Latest == nil || m.CreatedAt.After(s.Latest.CreatedAt) {
			s.Latest = &msgs[i]
		}
		if m.SenderID != selfID && !m.Read {
			s.Unread++
		}
		out[m.ConversationID] = s
	}
	return out
}

// BuildContacts filters and ranks the user set (already excluding the
// viewer). A non-empty query does a case-insensitive substring match on
// username or email and overrides the filter mode; otherwise the filter
// applies. The result is sorted descending by the conversation's latest
// message timestamp, contacts without a conversation last.
func BuildContacts(users []models.User, stats map[string]Stats, selfID, query string, filter Filter) []models.Contact {
	query = strings.ToLower(strings.TrimSpace(query))

	contacts := make([]models.Contact, 0, len(users))
	for _, u := range users {
		s := stats[conversation.DeriveID(selfID, u.ID)]

		if query != "" {
			if !strings.Contains(strings.ToLower(u.Username), query) &&
				!strings.Contains(strings.ToLower(u.Email), query) {
				continue
			}
		} else if filter == FilterRecent && s.Latest == nil {
			continue
		}

		contacts = append(contacts, models.Contact{
			User:        u,
			UnreadCount: s.Unread,
			LastMessage: s.Latest,
		})
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		return lastActivity(contacts[i]).After(lastActivity(contacts[j]))
	})
	return contacts
}

func lastActivity(c models.Contact) time.Time {
	if c.LastMessage == nil {
		return time.Unix(0, 0)
	}
	return c.LastMessage.CreatedAt
}

package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatify-service/internal/models"
)

func msg(conversationID, senderID string, read bool, at int64) models.Message {
	return models.Message{
		MessageID:      senderID + "-" + time.Unix(at, 0).String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Read:           read,
		CreatedAt:      time.Unix(at, 0),
	}
}

func TestAggregateCountsUnreadFromOtherPartyOnly(t *testing.T) {
	msgs := []models.Message{
		msg("alice_bob", "bob", false, 1),
		msg("alice_bob", "bob", false, 2),
		msg("alice_bob", "bob", true, 3),
		msg("alice_bob", "alice", false, 4), // own unread does not count
		msg("alice_carol", "carol", true, 5),
	}

	stats := Aggregate(msgs, "alice")

	require.Contains(t, stats, "alice_bob")
	assert.Equal(t, 2, stats["alice_bob"].Unread)
	assert.Equal(t, 0, stats["alice_carol"].Unread)
}

func TestAggregatePicksLatestMessage(t *testing.T) {
	msgs := []models.Message{
		msg("alice_bob", "bob", true, 20),
		msg("alice_bob", "alice", true, 5),
		msg("alice_bob", "bob", true, 10),
	}

	stats := Aggregate(msgs, "alice")

	require.NotNil(t, stats["alice_bob"].Latest)
	assert.Equal(t, time.Unix(20, 0), stats["alice_bob"].Latest.CreatedAt)
}

func TestBuildContactsRanksByRecency(t *testing.T) {
	users := []models.User{
		{ID: "bob", Username: "bob", Email: "bob@x.dev"},
		{ID: "carol", Username: "carol", Email: "carol@x.dev"},
		{ID: "dave", Username: "dave", Email: "dave@x.dev"},
	}
	msgs := []models.Message{
		msg("alice_bob", "bob", true, 5),
		msg("alice_carol", "carol", true, 20),
		msg("alice_dave", "dave", true, 10),
	}
	stats := Aggregate(msgs, "alice")

	contacts := BuildContacts(users, stats, "alice", "", FilterAll)

	require.Len(t, contacts, 3)
	assert.Equal(t, "carol", contacts[0].ID)
	assert.Equal(t, "dave", contacts[1].ID)
	assert.Equal(t, "bob", contacts[2].ID)
}

func TestBuildContactsNoConversationSortsLast(t *testing.T) {
	users := []models.User{
		{ID: "erin", Username: "erin", Email: "erin@x.dev"},
		{ID: "bob", Username: "bob", Email: "bob@x.dev"},
	}
	msgs := []models.Message{msg("alice_bob", "bob", true, 5)}
	stats := Aggregate(msgs, "alice")

	contacts := BuildContacts(users, stats, "alice", "", FilterAll)

	require.Len(t, contacts, 2)
	assert.Equal(t, "bob", contacts[0].ID)
	assert.Equal(t, "erin", contacts[1].ID)
	assert.Nil(t, contacts[1].LastMessage)
}

func TestBuildContactsRecentFilterSkipsEmptyConversations(t *testing.T) {
	users := []models.User{
		{ID: "erin", Username: "erin", Email: "erin@x.dev"},
		{ID: "bob", Username: "bob", Email: "bob@x.dev"},
	}
	msgs := []models.Message{msg("alice_bob", "bob", true, 5)}
	stats := Aggregate(msgs, "alice")

	contacts := BuildContacts(users, stats, "alice", "", FilterRecent)

	require.Len(t, contacts, 1)
	assert.Equal(t, "bob", contacts[0].ID)
}

func TestBuildContactsQueryOverridesFilter(t *testing.T) {
	users := []models.User{
		{ID: "erin", Username: "erin", Email: "erin@x.dev"},
		{ID: "bob", Username: "bob", Email: "bob@x.dev"},
	}

	// erin has no conversation, yet matches the search.
	contacts := BuildContacts(users, nil, "alice", "ERIN", FilterRecent)

	require.Len(t, contacts, 1)
	assert.Equal(t, "erin", contacts[0].ID)
}

func TestBuildContactsQueryMatchesEmail(t *testing.T) {
	users := []models.User{
		{ID: "erin", Username: "erin", Email: "erin@corp.example"},
		{ID: "bob", Username: "bob", Email: "bob@x.dev"},
	}

	contacts := BuildContacts(users, nil, "alice", "corp", FilterAll)

	require.Len(t, contacts, 1)
	assert.Equal(t, "erin", contacts[0].ID)
}

func TestParseFilter(t *testing.T) {
	assert.Equal(t, FilterAll, ParseFilter("all"))
	assert.Equal(t, FilterRecent, ParseFilter("recent"))
	assert.Equal(t, FilterRecent, ParseFilter(""))
	assert.Equal(t, FilterRecent, ParseFilter("bogus"))
}

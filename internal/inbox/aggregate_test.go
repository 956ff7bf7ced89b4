package inbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(from, to uuid.UUID, content string, at time.Time, read bool) domain.Message {
	return domain.Message{ID: uuid.New(), SenderID: from, RecipientID: to, Content: content, CreatedAt: at, IsRead: read}
}

func TestAggregate(t *testing.T) {
	me := uuid.New()
	league := uuid.New()
	ref := uuid.New()
	stranger := uuid.New()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	messages := []domain.Message{
		msg(league, me, "can you do saturday?", t0, true),
		msg(me, league, "yes", t0.Add(time.Minute), false),
		msg(league, me, "great, confirmed", t0.Add(2*time.Minute), false),
		msg(ref, me, "swap games?", t0.Add(5*time.Minute), false),
		msg(ref, me, "let me know", t0.Add(6*time.Minute), false),
		msg(stranger, league, "not mine", t0.Add(10*time.Minute), false),
	}
	participants := map[uuid.UUID]domain.Participant{
		league: {UserID: league, DisplayName: "Metro Youth League", Role: domain.RoleLeague},
	}

	got := Aggregate(me, messages, participants)
	require.Len(t, got, 2)

	assert.Equal(t, ref, got[0].UserID)
	assert.Equal(t, "let me know", got[0].LastMessage)
	assert.Equal(t, 2, got[0].UnreadCount)
	assert.Empty(t, got[0].DisplayName)

	assert.Equal(t, league, got[1].UserID)
	assert.Equal(t, "great, confirmed", got[1].LastMessage)
	assert.Equal(t, t0.Add(2*time.Minute), got[1].LastMessageTime)
	assert.Equal(t, 1, got[1].UnreadCount, "own unread outgoing messages do not count")
	assert.Equal(t, "Metro Youth League", got[1].DisplayName)
	assert.Equal(t, domain.RoleLeague, got[1].Role)
}

func TestAggregate_OutOfOrderInput(t *testing.T) {
	me := uuid.New()
	other := uuid.New()
	t0 := time.Now()

	got := Aggregate(me, []domain.Message{
		msg(other, me, "newest", t0.Add(time.Hour), false),
		msg(other, me, "oldest", t0, false),
	}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, "newest", got[0].LastMessage)
	assert.Equal(t, 2, got[0].UnreadCount)
}

func TestAggregate_MarkReadIsIdempotent(t *testing.T) {
	me := uuid.New()
	other := uuid.New()
	t0 := time.Now()
	messages := []domain.Message{
		msg(other, me, "one", t0, false),
		msg(other, me, "two", t0.Add(time.Second), false),
	}

	markRead := func(ms []domain.Message) int {
		changed := 0
		for i := range ms {
			if ms[i].RecipientID == me && ms[i].SenderID == other && !ms[i].IsRead {
				ms[i].IsRead = true
				changed++
			}
		}
		return changed
	}

	assert.Equal(t, 2, markRead(messages))
	first := Aggregate(me, messages, nil)
	assert.Equal(t, 0, markRead(messages))
	second := Aggregate(me, messages, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, 0, second[0].UnreadCount)
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(uuid.New(), nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUnreadTotal(t *testing.T) {
	me := uuid.New()
	a, b := uuid.New(), uuid.New()
	now := time.Now()

	assert.Equal(t, 2, UnreadTotal(me, []domain.Message{
		msg(a, me, "x", now, false),
		msg(b, me, "y", now, false),
		msg(b, me, "z", now, true),
		msg(me, a, "w", now, false),
	}))
}

package infra

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxRepo struct {
	pending []domain.OutboxDraft
	marked  []int64
}

func (f *fakeOutboxRepo) Insert(_ context.Context, _ repository.DBTX, d domain.OutboxDraft) error {
	d.ID = int64(len(f.pending) + 1)
	f.pending = append(f.pending, d)
	return nil
}

func (f *fakeOutboxRepo) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]domain.OutboxDraft, error) {
	var out []domain.OutboxDraft
	for _, d := range f.pending {
		if !f.isMarked(d.ID) && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeOutboxRepo) MarkPublished(_ context.Context, _ repository.DBTX, ids []int64) error {
	f.marked = append(f.marked, ids...)
	return nil
}

func (f *fakeOutboxRepo) isMarked(id int64) bool {
	for _, m := range f.marked {
		if m == id {
			return true
		}
	}
	return false
}

type sentMessage struct {
	topic string
	key   string
	value []byte
}

type fakePublisher struct {
	sent   []sentMessage
	failAt int
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	if p.failAt > 0 && len(p.sent)+1 == p.failAt {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, sentMessage{topic: topic, key: string(key), value: value})
	return nil
}

func seedAssignmentEvents(t *testing.T, repo *fakeOutboxRepo, n int) uuid.UUID {
	t.Helper()
	gameID := uuid.New()
	for i := 0; i < n; i++ {
		a := &domain.Assignment{ID: uuid.New(), GameID: gameID, Status: domain.AssignmentRequested}
		require.NoError(t, repo.Insert(context.Background(), nil, domain.NewAssignmentEvent(domain.EventAssignmentRequested, a)))
	}
	return gameID
}

func TestOutboxPoller_PublishesAndMarks(t *testing.T) {
	repo := &fakeOutboxRepo{}
	gameID := seedAssignmentEvents(t, repo, 3)
	pub := &fakePublisher{}

	p := NewOutboxPoller(nil, repo, pub, OutboxPollerConfig{TopicPrefix: "staging"}, testLogger())
	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 3}, repo.marked)

	require.Len(t, pub.sent, 3)
	for _, m := range pub.sent {
		assert.Equal(t, "staging.refnexus.assignment.requested", m.topic)
		assert.Equal(t, gameID.String(), m.key)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(m.value, &body))
		assert.Equal(t, "assignment", body["aggregate_type"])
		assert.Contains(t, body, "payload")
	}

	n, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxPoller_StopsAtFirstFailure(t *testing.T) {
	repo := &fakeOutboxRepo{}
	seedAssignmentEvents(t, repo, 3)
	pub := &fakePublisher{failAt: 2}

	p := NewOutboxPoller(nil, repo, pub, OutboxPollerConfig{}, testLogger())
	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, repo.marked)

	pub.failAt = 0
	n, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2, 3}, repo.marked)
}

func TestOutboxPoller_Topic(t *testing.T) {
	p := NewOutboxPoller(nil, &fakeOutboxRepo{}, &fakePublisher{}, OutboxPollerConfig{}, testLogger())
	assert.Equal(t, "refnexus.message.sent", p.Topic(domain.EventMessageSent))
}

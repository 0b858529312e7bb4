package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"groupbuy-be/internal/domain"
	"groupbuy-be/pkg/logger"
	"groupbuy-be/pkg/redis"
)

type recordingDispatcher struct {
	events []domain.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e domain.Event) {
	d.events = append(d.events, e)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func groupEvent(kind domain.EventKind, groupID int64) domain.Event {
	e := domain.NewEvent(kind, "test", time.Now().UTC())
	e.CampaignID = 1
	e.GroupID = groupID
	return e
}

func TestDedupDispatcherSuppressesDuplicates(t *testing.T) {
	next := &recordingDispatcher{}
	d := NewDedupDispatcher(next, newTestRedis(t), logger.NewNop())

	// The same transition observed twice, as two sweep runs would.
	d.Dispatch(context.Background(), groupEvent(domain.EventGroupFailed, 7))
	d.Dispatch(context.Background(), groupEvent(domain.EventGroupFailed, 7))
	require.Len(t, next.events, 1)

	// A different transition is its own key.
	d.Dispatch(context.Background(), groupEvent(domain.EventGroupFailed, 8))
	d.Dispatch(context.Background(), groupEvent(domain.EventRefundIssued, 7))
	assert.Len(t, next.events, 3)
}

func TestDedupDispatcherWithoutRedisPassesThrough(t *testing.T) {
	next := &recordingDispatcher{}
	d := NewDedupDispatcher(next, nil, logger.NewNop())

	d.Dispatch(context.Background(), groupEvent(domain.EventGroupSuccess, 1))
	d.Dispatch(context.Background(), groupEvent(domain.EventGroupSuccess, 1))

	// No dedup backend: deliver everything rather than drop.
	assert.Len(t, next.events, 2)
}

func TestLogCollaboratorsNeverFail(t *testing.T) {
	log := logger.NewNop()

	NewLogDispatcher(log).Dispatch(context.Background(), groupEvent(domain.EventGroupCreated, 1))

	err := NewLogBookingExporter(log).Export(context.Background(), []domain.BookingRecord{
		{Reference: "GB-ABC123", IsMaster: true, GroupCode: "GB-ABC123", PaxCount: 2},
	})
	assert.NoError(t, err)
}

package broker

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker() *Broker {
	return &Broker{
		Namespace: "default",
		Service:   "svc",
		exchange:  "default.svc",
		pending:   make(map[string]chan amqp.Delivery),
	}
}

func TestAwaitReplyDeliversMatchingCorrelation(t *testing.T) {
	b := newTestBroker()
	waiter := b.AwaitReply("corr-1")
	assert.Equal(t, 1, b.PendingCount())

	b.deliverReply(amqp.Delivery{CorrelationId: "corr-1", Body: []byte("hello")})

	select {
	case d := <-waiter:
		assert.Equal(t, []byte("hello"), d.Body)
	case <-time.After(time.Second):
		t.Fatal("expected delivery on waiter channel")
	}
	assert.Equal(t, 0, b.PendingCount())
}

func TestDeliverReplyDropsLateOrSpuriousReplies(t *testing.T) {
	b := newTestBroker()
	require.NotPanics(t, func() {
		b.deliverReply(amqp.Delivery{CorrelationId: "unknown"})
	})
	assert.Equal(t, 0, b.PendingCount())
}

func TestCancelReplyRemovesPendingWaiter(t *testing.T) {
	b := newTestBroker()
	b.AwaitReply("corr-2")
	assert.Equal(t, 1, b.PendingCount())

	b.CancelReply("corr-2")
	assert.Equal(t, 0, b.PendingCount())

	// A reply that arrives after cancellation is treated as spurious.
	require.NotPanics(t, func() {
		b.deliverReply(amqp.Delivery{CorrelationId: "corr-2"})
	})
}

func TestQueueNameFormat(t *testing.T) {
	b := newTestBroker()
	assert.Equal(t, "default.svc.queue.precision-100", b.QueueName("precision-100"))
}

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ReplyPseudoQueue is RabbitMQ's built-in direct-reply-to pseudo queue, used
// by the router to receive RPC replies without declaring a dedicated queue
// per in-flight request.
const ReplyPseudoQueue = "amq.rabbitmq.reply-to"

// QueueType is the only routing discriminator the headers exchange matches
// on today; kept as a constant because the wire protocol hard-codes it.
const QueueType = "queue"

// Broker owns a single AMQP connection/channel pair and the namespaced
// headers exchange that the router publishes onto and consumers bind queues
// to.
type Broker struct {
	Namespace string
	Service   string

	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string

	mu      sync.Mutex
	pending map[string]chan amqp.Delivery
}

// Dial connects to RabbitMQ and declares the durable headers exchange for
// namespace/service, named "<namespace>.<service>" to mirror the exchange
// naming the router and consumer agree on out of band.
func Dial(url, namespace, service string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("broker: dial %s: %w", url, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker: open channel: %w", err)
	}

	exchange := fmt.Sprintf("%s.%s", namespace, service)
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeHeaders, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("broker: declare exchange %s: %w", exchange, err)
	}

	return &Broker{
		Namespace: namespace,
		Service:   service,
		conn:      conn,
		channel:   ch,
		exchange:  exchange,
		pending:   make(map[string]chan amqp.Delivery),
	}, nil
}

// Close tears down the channel and connection.
func (b *Broker) Close() error {
	if b.channel != nil {
		_ = b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// QueueName returns the durable per-flavour queue name bound to the headers
// exchange, "<namespace>.<service>.queue.<flavour>".
func (b *Broker) QueueName(flavour string) string {
	return fmt.Sprintf("%s.%s.queue.%s", b.Namespace, b.Service, flavour)
}

// DeclareFlavourQueue declares (idempotently) and binds the durable queue
// that a consumer worker for flavour should read from.
func (b *Broker) DeclareFlavourQueue(flavour string) (amqp.Queue, error) {
	name := b.QueueName(flavour)
	q, err := b.channel.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("broker: declare queue %s: %w", name, err)
	}
	args := amqp.Table{"x-match": "all", "q_type": QueueType, "flavour": flavour}
	if err := b.channel.QueueBind(name, "", b.exchange, false, args); err != nil {
		return amqp.Queue{}, fmt.Errorf("broker: bind queue %s: %w", name, err)
	}
	return q, nil
}

// Channel exposes the underlying AMQP channel for consumers that need to set
// QoS or start a Consume loop directly.
func (b *Broker) Channel() *amqp.Channel { return b.channel }

// PublishRequest publishes a router-originated RequestEnvelope onto the
// headers exchange, tagged with q_type/flavour so the matching consumer
// queue receives it. expiration of zero means the message never expires.
func (b *Broker) PublishRequest(ctx context.Context, flavour string, body []byte, correlationID, replyTo string, expiration time.Duration) error {
	msg := amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		CorrelationId: correlationID,
		ReplyTo:       replyTo,
		Headers: amqp.Table{
			"q_type":    QueueType,
			"flavour":   flavour,
			"namespace": b.Namespace,
			"service":   b.Service,
		},
	}
	if expiration > 0 {
		msg.Expiration = fmt.Sprintf("%d", expiration.Milliseconds())
	}
	if err := b.channel.PublishWithContext(ctx, b.exchange, "", true, false, msg); err != nil {
		return fmt.Errorf("broker: publish to %s: %w", b.exchange, err)
	}
	return nil
}

// PublishReply publishes a consumer-originated ResponseEnvelope directly to
// replyTo (the router's amq.rabbitmq.reply-to routing key) via the default
// exchange, matching RabbitMQ's direct-reply-to contract.
func (b *Broker) PublishReply(ctx context.Context, replyTo, correlationID string, body []byte) error {
	msg := amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		CorrelationId: correlationID,
	}
	if err := b.channel.PublishWithContext(ctx, "", replyTo, false, false, msg); err != nil {
		return fmt.Errorf("broker: publish reply to %s: %w", replyTo, err)
	}
	return nil
}

// ConsumeReplies starts the single long-lived consumer on the direct-reply-to
// pseudo queue and demultiplexes incoming deliveries to whichever goroutine
// is waiting on the matching correlation ID via AwaitReply. It must be
// called once per Broker.
func (b *Broker) ConsumeReplies(ctx context.Context) error {
	deliveries, err := b.channel.Consume(ReplyPseudoQueue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("broker: consume %s: %w", ReplyPseudoQueue, err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				b.deliverReply(d)
			}
		}
	}()
	return nil
}

func (b *Broker) deliverReply(d amqp.Delivery) {
	b.mu.Lock()
	ch, ok := b.pending[d.CorrelationId]
	if ok {
		delete(b.pending, d.CorrelationId)
	}
	b.mu.Unlock()
	if !ok {
		// Late or spurious reply: no router goroutine is still waiting, drop it.
		return
	}
	ch <- d
	close(ch)
}

// AwaitReply registers correlationID as pending and returns a channel that
// receives exactly one delivery once ConsumeReplies demultiplexes the
// matching reply. Callers must eventually call CancelReply if they stop
// waiting before a reply arrives (e.g. on timeout) to avoid leaking the
// pending entry.
func (b *Broker) AwaitReply(correlationID string) <-chan amqp.Delivery {
	ch := make(chan amqp.Delivery, 1)
	b.mu.Lock()
	b.pending[correlationID] = ch
	b.mu.Unlock()
	return ch
}

// CancelReply removes a pending wait, used when the caller times out before
// a reply is demultiplexed to it.
func (b *Broker) CancelReply(correlationID string) {
	b.mu.Lock()
	delete(b.pending, correlationID)
	b.mu.Unlock()
}

// PendingCount reports the number of in-flight RPCs awaiting a reply, used
// by tests and diagnostics to assert the pending map drains after timeouts.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

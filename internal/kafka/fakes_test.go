package kafka

import (
	"context"
	"sync"

	"github.com/IBM/sarama"

	"github.com/jittakal/kafcoldstore/pkg/consumer"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

type markedOffset struct {
	topic     string
	partition int32
	offset    int64
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []markedOffset
	commit int
}

func newFakeSession(ctx context.Context) *fakeSession { return &fakeSession{ctx: ctx} }

func (s *fakeSession) Claims() map[string][]int32 { return map[string][]int32{"sensors": {0, 1}} }
func (s *fakeSession) MemberID() string           { return "member-1" }
func (s *fakeSession) GenerationID() int32        { return 7 }
func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, markedOffset{topic, partition, offset})
}
func (s *fakeSession) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit++
}
func (s *fakeSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string)              {}
func (s *fakeSession) Context() context.Context { return s.ctx }

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func newFakeClaim(buffer int) *fakeClaim {
	return &fakeClaim{messages: make(chan *sarama.ConsumerMessage, buffer)}
}

func (c *fakeClaim) Topic() string                            { return "sensors" }
func (c *fakeClaim) Partition() int32                         { return 1 }
func (c *fakeClaim) InitialOffset() int64                     { return 10 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 100 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func (c *fakeClaim) send(offsets ...int64) {
	for _, off := range offsets {
		c.messages <- &sarama.ConsumerMessage{Topic: "sensors", Partition: 1, Offset: off, Value: []byte("v")}
	}
}

// fakeProcessor records every call. onBatch runs after a batch is recorded.
type fakeProcessor struct {
	mu        sync.Mutex
	opened    int
	batches   [][]int64
	empty     int
	reasons   []event.CloseReason
	processFn func(ctx context.Context, events []*event.Event) error
	onBatch   func()
}

func (p *fakeProcessor) Open(ctx context.Context, lease consumer.LeaseContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened++
	return nil
}

func (p *fakeProcessor) ProcessEvents(ctx context.Context, lease consumer.LeaseContext, events []*event.Event) error {
	p.mu.Lock()
	if len(events) == 0 {
		p.empty++
	} else {
		offsets := make([]int64, len(events))
		for i, e := range events {
			offsets[i] = e.Offset
		}
		p.batches = append(p.batches, offsets)
	}
	fn, hook := p.processFn, p.onBatch
	p.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, events); err != nil {
			return err
		}
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (p *fakeProcessor) Close(ctx context.Context, lease consumer.LeaseContext, reason event.CloseReason) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasons = append(p.reasons, reason)
	return nil
}

type fakeFactory struct {
	proc *fakeProcessor
}

func (f *fakeFactory) NewProcessor(event.PartitionID) (consumer.EventProcessor, error) {
	return f.proc, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	offsets map[event.PartitionID]int64
	saveErr error
}

func (l *fakeLedger) Save(partition event.PartitionID, offset int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saveErr != nil {
		return l.saveErr
	}
	if l.offsets == nil {
		l.offsets = make(map[event.PartitionID]int64)
	}
	l.offsets[partition] = offset
	return nil
}

func (l *fakeLedger) Load(partition event.PartitionID) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	off, ok := l.offsets[partition]
	return off, ok, nil
}

type fakeHostMetrics struct {
	mu       sync.Mutex
	consumed int
	skipped  int
	commits  int
	assigned map[string]float64
}

func (m *fakeHostMetrics) IncMessagesConsumed(string, int32) { m.mu.Lock(); m.consumed++; m.mu.Unlock() }
func (m *fakeHostMetrics) IncMessagesSkipped(string, int32)  { m.mu.Lock(); m.skipped++; m.mu.Unlock() }
func (m *fakeHostMetrics) IncRebalances(string)              {}
func (m *fakeHostMetrics) IncOffsetCommits(string, int32, string) {
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
}
func (m *fakeHostMetrics) ObserveCommitLatency(string, int32, float64) {}
func (m *fakeHostMetrics) SetPartitionsAssigned(topic string, count float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assigned == nil {
		m.assigned = make(map[string]float64)
	}
	m.assigned[topic] = count
}

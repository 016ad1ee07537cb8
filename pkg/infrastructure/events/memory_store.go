package events

import (
	"sync"

	"go.uber.org/zap"
)

// DefaultCapacity is the number of events kept when no capacity is given
const DefaultCapacity = 10000

// InMemoryEventStore keeps the most recent events in memory and notifies
// subscribers asynchronously. Beyond its capacity the oldest events are
// dropped; versions and positions keep counting.
type InMemoryEventStore struct {
	streams     map[string][]Event
	versions    map[string]int
	subscribers map[string][]EventHandler
	mutex       sync.RWMutex
	allEvents   []Event
	dropped     int
	capacity    int
	pending     sync.WaitGroup
	logger      *zap.Logger
}

// StoreOption configures an InMemoryEventStore
type StoreOption func(*InMemoryEventStore)

// WithCapacity bounds the number of events kept. n < 1 keeps the default.
func WithCapacity(n int) StoreOption {
	return func(s *InMemoryEventStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// NewInMemoryEventStore creates an empty store. A nil logger discards
// handler errors.
func NewInMemoryEventStore(logger *zap.Logger, opts ...StoreOption) *InMemoryEventStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InMemoryEventStore{
		streams:     make(map[string][]Event),
		versions:    make(map[string]int),
		subscribers: make(map[string][]EventHandler),
		allEvents:   make([]Event, 0),
		capacity:    DefaultCapacity,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ EventStore = (*InMemoryEventStore)(nil)

func (s *InMemoryEventStore) AppendEvent(streamID string, event Event) error {
	s.mutex.Lock()
	s.versions[streamID]++
	stored := BaseEvent{
		EventType:    event.Type(),
		Stream:       streamID,
		EventData:    event.Data(),
		EventTime:    event.Timestamp(),
		EventVersion: s.versions[streamID],
		Position:     s.dropped + len(s.allEvents),
	}
	s.streams[streamID] = append(s.streams[streamID], stored)
	s.allEvents = append(s.allEvents, stored)
	s.evict()
	handlers := append([]EventHandler(nil), s.subscribers[stored.EventType]...)
	s.mutex.Unlock()

	for _, handler := range handlers {
		if !handler.CanHandle(stored.EventType) {
			continue
		}
		s.pending.Add(1)
		go func(h EventHandler) {
			defer s.pending.Done()
			if err := h.Handle(stored); err != nil {
				s.logger.Warn("events: handler failed",
					zap.String("type", stored.EventType),
					zap.String("stream", streamID),
					zap.Error(err),
				)
			}
		}(handler)
	}
	return nil
}

// evict drops the oldest events beyond capacity. The oldest event of the
// log is also the oldest of its stream. Callers hold the write lock.
func (s *InMemoryEventStore) evict() {
	for len(s.allEvents) > s.capacity {
		oldest := s.allEvents[0]
		s.allEvents[0] = nil
		s.allEvents = s.allEvents[1:]
		s.dropped++

		stream := s.streams[oldest.StreamID()][1:]
		if len(stream) == 0 {
			delete(s.streams, oldest.StreamID())
			continue
		}
		s.streams[oldest.StreamID()] = stream
	}
}

// ReadEvents returns the kept events of a stream from the given version on
func (s *InMemoryEventStore) ReadEvents(streamID string, fromVersion int) ([]Event, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	events := s.streams[streamID]
	if len(events) == 0 {
		return []Event{}, nil
	}
	idx := fromVersion - events[0].Version()
	if idx < 0 {
		idx = 0
	}
	if idx >= len(events) {
		return []Event{}, nil
	}
	return append([]Event(nil), events[idx:]...), nil
}

// ReadAllEvents returns the kept events from the given log position on.
// A position that was already dropped starts at the oldest kept event.
func (s *InMemoryEventStore) ReadAllEvents(fromPosition int) ([]Event, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	idx := fromPosition - s.dropped
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.allEvents) {
		return []Event{}, nil
	}
	return append([]Event(nil), s.allEvents[idx:]...), nil
}

// NextPosition is the log position the next appended event will take
func (s *InMemoryEventStore) NextPosition() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.dropped + len(s.allEvents)
}

func (s *InMemoryEventStore) Subscribe(eventTypes []string, handler EventHandler) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, eventType := range eventTypes {
		s.subscribers[eventType] = append(s.subscribers[eventType], handler)
	}
	return nil
}

func (s *InMemoryEventStore) Unsubscribe(handler EventHandler) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for eventType, handlers := range s.subscribers {
		kept := make([]EventHandler, 0, len(handlers))
		for _, h := range handlers {
			if h != handler {
				kept = append(kept, h)
			}
		}
		s.subscribers[eventType] = kept
	}
	return nil
}

// Wait blocks until every handler started so far has returned
func (s *InMemoryEventStore) Wait() {
	s.pending.Wait()
}

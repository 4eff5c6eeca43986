package journal

import (
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/badgerdao/harvest-forwarder/build"
)

var log = logging.Logger("journal")

// MemJournal keeps every recorded event in memory. It backs tests and
// short-lived processes that inspect the audit trail directly.
type MemJournal struct {
	EventTypeRegistry

	lk     sync.Mutex
	events []*Event
	closed bool
}

var _ Journal = (*MemJournal)(nil)

func NewMemJournal(disabled DisabledEvents) *MemJournal {
	return &MemJournal{EventTypeRegistry: NewEventTypeRegistry(disabled)}
}

func (m *MemJournal) RecordEvent(evtType EventType, supplier func() interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("recovered from panic while recording journal event; type=%s, err=%v", evtType, r)
		}
	}()

	if !evtType.Enabled() {
		return
	}

	je := &Event{
		EventType: evtType,
		ID:        uuid.New(),
		Timestamp: build.Clock.Now(),
		Data:      supplier(),
	}

	m.lk.Lock()
	defer m.lk.Unlock()
	if m.closed {
		log.Warnw("journal closed but tried to log event", "event", je)
		return
	}
	m.events = append(m.events, je)
}

// Events returns a copy of the recorded events, oldest first.
func (m *MemJournal) Events() []*Event {
	m.lk.Lock()
	defer m.lk.Unlock()

	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOf returns the recorded events of a single type.
func (m *MemJournal) EventsOf(evtType EventType) []*Event {
	var out []*Event
	for _, e := range m.Events() {
		if e.System == evtType.System && e.Event == evtType.Event {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemJournal) Close() error {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.closed = true
	return nil
}

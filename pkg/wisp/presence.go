package wisp

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// A Member is one identified subscriber of a presence channel. UserInfo is
// an opaque payload supplied by the authorizing backend.
type Member struct {
	UserID   string          `json:"user_id"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}

// MemberChangeType says what happened to the member set.
type MemberChangeType int

const (
	// MemberSnapshot replaces the whole member set from a subscription
	// succeeded frame.
	MemberSnapshot MemberChangeType = iota
	// MemberAdded inserts one member.
	MemberAdded
	// MemberRemoved deletes one member.
	MemberRemoved
)

// A MemberChange describes one mutation of a presence channel's member set.
// Member is set for adds and removes; Members holds the full set for
// snapshots.
type MemberChange struct {
	Type    MemberChangeType
	Member  Member
	Members []Member
}

// A MemberHandler observes presence membership changes. These notifications
// are distinct from generic channel events.
type MemberHandler func(change MemberChange)

// presenceTracker maintains a presence channel's member set: a wholesale
// snapshot on subscription success, then join/leave deltas. The set is
// keyed by user id; no duplicates, removes of absent ids are no-ops.
type presenceTracker struct {
	log *logrus.Logger

	mtx      sync.RWMutex // Protects members and handlers
	members  map[string]Member
	handlers []MemberHandler
}

func newPresenceTracker(log *logrus.Logger) *presenceTracker {
	return &presenceTracker{
		log:     log,
		members: make(map[string]Member),
	}
}

func (p *presenceTracker) bind(handler MemberHandler) {
	p.mtx.Lock()
	p.handlers = append(p.handlers, handler)
	p.mtx.Unlock()
}

// handleEvent applies presence protocol events to the member set. Non
// presence events are ignored.
func (p *presenceTracker) handleEvent(event string, data json.RawMessage) {
	switch event {
	case EventSubscriptionSucceeded:
		p.replace(data)
	case EventMemberAdded:
		p.add(data)
	case EventMemberRemoved:
		p.remove(data)
	}
}

type memberSnapshotData struct {
	Members []Member `json:"members"`
}

// replace swaps in the member set advertised by a subscription succeeded
// frame, discarding whatever was tracked before.
func (p *presenceTracker) replace(data json.RawMessage) {
	var snapshot memberSnapshotData
	if err := json.Unmarshal(data, &snapshot); err != nil {
		p.log.WithFields(logrus.Fields{
			"error": err,
		}).Warn("Ignoring malformed presence snapshot")
		return
	}

	members := make(map[string]Member, len(snapshot.Members))
	for _, m := range snapshot.Members {
		members[m.UserID] = m
	}

	p.mtx.Lock()
	p.members = members
	handlers := p.handlersLocked()
	p.mtx.Unlock()

	p.notify(handlers, MemberChange{Type: MemberSnapshot, Members: p.snapshot()})
}

// add inserts the member carried by a member added frame. Inserting an
// already present id updates its info without a notification.
func (p *presenceTracker) add(data json.RawMessage) {
	var m Member
	if err := json.Unmarshal(data, &m); err != nil || m.UserID == "" {
		p.log.WithFields(logrus.Fields{
			"error": err,
		}).Warn("Ignoring malformed member added frame")
		return
	}

	p.mtx.Lock()
	_, present := p.members[m.UserID]
	p.members[m.UserID] = m
	handlers := p.handlersLocked()
	p.mtx.Unlock()

	if present {
		return
	}
	p.notify(handlers, MemberChange{Type: MemberAdded, Member: m})
}

type memberRemovedData struct {
	UserID string `json:"user_id"`
}

// remove deletes the id carried by a member removed frame; absent ids are
// no-ops.
func (p *presenceTracker) remove(data json.RawMessage) {
	var removed memberRemovedData
	if err := json.Unmarshal(data, &removed); err != nil || removed.UserID == "" {
		p.log.WithFields(logrus.Fields{
			"error": err,
		}).Warn("Ignoring malformed member removed frame")
		return
	}

	p.mtx.Lock()
	m, present := p.members[removed.UserID]
	if present {
		delete(p.members, removed.UserID)
	}
	handlers := p.handlersLocked()
	p.mtx.Unlock()

	if !present {
		return
	}
	p.notify(handlers, MemberChange{Type: MemberRemoved, Member: m})
}

// clear empties the member set without notifying handlers. Used when the
// channel unsubscribes.
func (p *presenceTracker) clear() {
	p.mtx.Lock()
	p.members = make(map[string]Member)
	p.mtx.Unlock()
}

// snapshot returns the current members sorted by user id.
func (p *presenceTracker) snapshot() []Member {
	p.mtx.RLock()
	members := make([]Member, 0, len(p.members))
	for _, m := range p.members {
		members = append(members, m)
	}
	p.mtx.RUnlock()

	sort.Slice(members, func(i, j int) bool {
		return members[i].UserID < members[j].UserID
	})
	return members
}

func (p *presenceTracker) count() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.members)
}

func (p *presenceTracker) handlersLocked() []MemberHandler {
	handlers := make([]MemberHandler, len(p.handlers))
	copy(handlers, p.handlers)
	return handlers
}

func (p *presenceTracker) notify(handlers []MemberHandler, change MemberChange) {
	for _, handler := range handlers {
		handler(change)
	}
}

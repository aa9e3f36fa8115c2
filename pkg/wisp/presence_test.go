package wisp

import (
	"encoding/json"
	"reflect"
	"testing"
)

func newPresenceChannel(t *testing.T, rec *recorder) *Channel {
	t.Helper()
	ch, err := NewPresenceChannel("presence-room", ChannelConfig{
		Conn: rec,
		Authorizer: func(channelName, socketID string) (Credential, error) {
			return Credential{"auth": "sig"}, nil
		},
		Log: testLog(),
	})
	if err != nil {
		t.Fatalf("Cannot create channel: %s", err)
	}
	return ch
}

func memberIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}

func TestPresenceSnapshotAndDeltas(t *testing.T) {
	ch := newPresenceChannel(t, &recorder{})

	ch.HandleEvent(EventSubscriptionSucceeded, json.RawMessage(
		`{"members":[{"user_id":"a","user_info":{"name":"Ada"}},{"user_id":"b"}]}`))
	if wanted := []string{"a", "b"}; !reflect.DeepEqual(wanted, memberIDs(ch.Members())) {
		t.Errorf("Wanted members %v, got %v", wanted, memberIDs(ch.Members()))
	}

	ch.HandleEvent(EventMemberRemoved, json.RawMessage(`{"user_id":"a"}`))
	ch.HandleEvent(EventMemberAdded, json.RawMessage(`{"user_id":"c"}`))

	if wanted := []string{"b", "c"}; !reflect.DeepEqual(wanted, memberIDs(ch.Members())) {
		t.Errorf("Wanted members %v, got %v", wanted, memberIDs(ch.Members()))
	}
	if ch.MemberCount() != 2 {
		t.Errorf("Wanted 2 members, got %d", ch.MemberCount())
	}
}

func TestPresenceIdempotentMutations(t *testing.T) {
	ch := newPresenceChannel(t, &recorder{})

	var changes []MemberChangeType
	ch.BindMemberChange(func(change MemberChange) {
		changes = append(changes, change.Type)
	})

	ch.HandleEvent(EventSubscriptionSucceeded, json.RawMessage(`{"members":[{"user_id":"a"}]}`))
	ch.HandleEvent(EventMemberAdded, json.RawMessage(`{"user_id":"a"}`))    // already present
	ch.HandleEvent(EventMemberRemoved, json.RawMessage(`{"user_id":"zz"}`)) // absent

	if ch.MemberCount() != 1 {
		t.Errorf("Wanted 1 member, got %d", ch.MemberCount())
	}
	wanted := []MemberChangeType{MemberSnapshot}
	if !reflect.DeepEqual(wanted, changes) {
		t.Errorf("Wanted notifications %v, got %v", wanted, changes)
	}
}

func TestPresenceMemberChangeNotifications(t *testing.T) {
	ch := newPresenceChannel(t, &recorder{})

	type change struct {
		typ MemberChangeType
		id  string
	}
	var got []change
	ch.BindMemberChange(func(c MemberChange) {
		got = append(got, change{c.Type, c.Member.UserID})
	})

	ch.HandleEvent(EventSubscriptionSucceeded, json.RawMessage(`{"members":[{"user_id":"a"}]}`))
	ch.HandleEvent(EventMemberAdded, json.RawMessage(`{"user_id":"b","user_info":{"name":"Bea"}}`))
	ch.HandleEvent(EventMemberRemoved, json.RawMessage(`{"user_id":"a"}`))

	wanted := []change{
		{MemberSnapshot, ""},
		{MemberAdded, "b"},
		{MemberRemoved, "a"},
	}
	if !reflect.DeepEqual(wanted, got) {
		t.Errorf("Wanted %v, got %v", wanted, got)
	}
}

func TestPresenceSnapshotReplacesWholesale(t *testing.T) {
	ch := newPresenceChannel(t, &recorder{})

	ch.HandleEvent(EventSubscriptionSucceeded, json.RawMessage(`{"members":[{"user_id":"a"},{"user_id":"b"}]}`))
	ch.HandleEvent(EventSubscriptionSucceeded, json.RawMessage(`{"members":[{"user_id":"c"}]}`))

	if wanted := []string{"c"}; !reflect.DeepEqual(wanted, memberIDs(ch.Members())) {
		t.Errorf("Second snapshot did not replace the member set: %v", memberIDs(ch.Members()))
	}
}

func TestUnsubscribeClearsMembers(t *testing.T) {
	rec := &recorder{}
	ch := newPresenceChannel(t, rec)
	if err := ch.Subscribe(); err != nil {
		t.Fatalf("Subscribe: %s", err)
	}

	ch.HandleEvent(EventSubscriptionSucceeded, json.RawMessage(`{"members":[{"user_id":"a"}]}`))
	if err := ch.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %s", err)
	}

	if ch.MemberCount() != 0 {
		t.Errorf("Member set survived unsubscribe: %d members", ch.MemberCount())
	}
}

func TestNonPresenceChannelHasNoMembers(t *testing.T) {
	ch := newBoundChannel(t)
	if ch.Members() != nil {
		t.Errorf("Public channel reported members")
	}
	// Binding member changes on a non-presence channel is a no-op.
	ch.BindMemberChange(func(MemberChange) {
		t.Error("Member handler fired on a public channel")
	})
	ch.HandleEvent(EventMemberAdded, json.RawMessage(`{"user_id":"a"}`))
}

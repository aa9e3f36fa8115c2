package wisp

import (
	"encoding/json"
	"reflect"
	"testing"
)

func newBoundChannel(t *testing.T) *Channel {
	t.Helper()
	ch, err := NewChannel("updates", ChannelConfig{Conn: &recorder{}, Log: testLog()})
	if err != nil {
		t.Fatalf("Cannot create channel: %s", err)
	}
	return ch
}

func TestBindAndDispatch(t *testing.T) {
	ch := newBoundChannel(t)

	var got []string
	ch.Bind("message", func(data json.RawMessage) {
		got = append(got, string(data))
	})

	ch.HandleEvent("message", json.RawMessage(`{"text":"hi"}`))
	wanted := []string{`{"text":"hi"}`}
	if !reflect.DeepEqual(wanted, got) {
		t.Errorf("Wanted %v, got %v", wanted, got)
	}

	// Events with no bound handlers are no-ops.
	ch.HandleEvent("other", json.RawMessage(`{}`))
	if len(got) != 1 {
		t.Errorf("Unbound event reached a handler")
	}

	ch.Unbind("message")
	ch.HandleEvent("message", json.RawMessage(`{"text":"again"}`))
	if len(got) != 1 {
		t.Errorf("Handler fired after Unbind")
	}
}

func TestDispatchOrder(t *testing.T) {
	ch := newBoundChannel(t)

	var order []int
	ch.Bind("e", func(json.RawMessage) { order = append(order, 1) })
	ch.Bind("e", func(json.RawMessage) { order = append(order, 2) })
	ch.Bind("e", func(json.RawMessage) { order = append(order, 3) })

	ch.HandleEvent("e", nil)
	if !reflect.DeepEqual([]int{1, 2, 3}, order) {
		t.Errorf("Handlers ran out of binding order: %v", order)
	}
}

func TestUnbindSingleHandler(t *testing.T) {
	ch := newBoundChannel(t)

	var first, second int
	b := ch.Bind("e", func(json.RawMessage) { first++ })
	ch.Bind("e", func(json.RawMessage) { second++ })

	b.Unbind()
	b.Unbind() // unbinding twice is a no-op
	ch.HandleEvent("e", nil)

	if first != 0 {
		t.Errorf("Removed handler still fired")
	}
	if second != 1 {
		t.Errorf("Remaining handler fired %d times, wanted 1", second)
	}
}

func TestPanickingHandlerDoesNotStopDispatch(t *testing.T) {
	ch := newBoundChannel(t)

	var after int
	ch.Bind("e", func(json.RawMessage) { panic("listener bug") })
	ch.Bind("e", func(json.RawMessage) { after++ })

	ch.HandleEvent("e", nil)
	if after != 1 {
		t.Errorf("Handler after the panicking one did not run")
	}

	// Channel state must survive a panicking handler.
	if ch.State() != StateUnsubscribed {
		t.Errorf("Panic corrupted channel state: %s", ch.State())
	}
}

func TestBindGlobal(t *testing.T) {
	ch := newBoundChannel(t)

	type seen struct {
		event string
		data  string
	}
	var got []seen
	gb := ch.BindGlobal(func(event string, data json.RawMessage) {
		got = append(got, seen{event, string(data)})
	})

	ch.HandleEvent("a", json.RawMessage(`1`))
	ch.HandleEvent("b", json.RawMessage(`2`))

	wanted := []seen{{"a", "1"}, {"b", "2"}}
	if !reflect.DeepEqual(wanted, got) {
		t.Errorf("Wanted %v, got %v", wanted, got)
	}

	gb.Unbind()
	ch.HandleEvent("c", nil)
	if len(got) != 2 {
		t.Errorf("Global handler fired after Unbind")
	}
}

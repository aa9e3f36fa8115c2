package wisp

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// A Handler receives the data payload of a dispatched event.
type Handler func(data json.RawMessage)

// A GlobalHandler receives every event dispatched on a channel.
type GlobalHandler func(event string, data json.RawMessage)

// A Binding ties one handler to one event name on one channel. Removing the
// binding detaches exactly that handler; other handlers bound to the same
// event are unaffected.
type Binding struct {
	event   string
	handler Handler
	reg     *bindingRegistry
}

// Unbind removes this binding. Unbinding twice is a no-op.
func (b *Binding) Unbind() {
	b.reg.remove(b)
}

// A GlobalBinding ties a catch-all handler to a channel.
type GlobalBinding struct {
	handler GlobalHandler
	reg     *bindingRegistry
}

// Unbind removes this global binding.
func (b *GlobalBinding) Unbind() {
	b.reg.removeGlobal(b)
}

// bindingRegistry maps event names to handlers in insertion order.
// Insertion order is dispatch order.
type bindingRegistry struct {
	log *logrus.Logger

	mtx      sync.RWMutex // Protects bindings and globals
	bindings map[string][]*Binding
	globals  []*GlobalBinding
}

func newBindingRegistry(log *logrus.Logger) *bindingRegistry {
	return &bindingRegistry{
		log:      log,
		bindings: make(map[string][]*Binding),
	}
}

func (r *bindingRegistry) bind(event string, handler Handler) *Binding {
	b := &Binding{event: event, handler: handler, reg: r}
	r.mtx.Lock()
	r.bindings[event] = append(r.bindings[event], b)
	r.mtx.Unlock()
	return b
}

func (r *bindingRegistry) bindGlobal(handler GlobalHandler) *GlobalBinding {
	b := &GlobalBinding{handler: handler, reg: r}
	r.mtx.Lock()
	r.globals = append(r.globals, b)
	r.mtx.Unlock()
	return b
}

// unbindAll removes every handler bound to event.
func (r *bindingRegistry) unbindAll(event string) {
	r.mtx.Lock()
	delete(r.bindings, event)
	r.mtx.Unlock()
}

func (r *bindingRegistry) remove(b *Binding) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	bound := r.bindings[b.event]
	for i := range bound {
		if bound[i] == b {
			r.bindings[b.event] = append(bound[:i], bound[i+1:]...)
			break
		}
	}
	if len(r.bindings[b.event]) == 0 {
		delete(r.bindings, b.event)
	}
}

func (r *bindingRegistry) removeGlobal(b *GlobalBinding) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for i := range r.globals {
		if r.globals[i] == b {
			r.globals = append(r.globals[:i], r.globals[i+1:]...)
			return
		}
	}
}

// dispatch invokes every handler bound to event, in binding order, then the
// global handlers. A panicking handler is logged and skipped; it must not
// stop the handlers after it.
func (r *bindingRegistry) dispatch(event string, data json.RawMessage) {
	r.mtx.RLock()
	bound := make([]*Binding, len(r.bindings[event]))
	copy(bound, r.bindings[event])
	globals := make([]*GlobalBinding, len(r.globals))
	copy(globals, r.globals)
	r.mtx.RUnlock()

	for _, b := range bound {
		r.call(event, func() { b.handler(data) })
	}
	for _, g := range globals {
		r.call(event, func() { g.handler(event, data) })
	}
}

func (r *bindingRegistry) call(event string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{
				"event": event,
				"error": rec,
			}).Error("Event handler panicked")
		}
	}()
	fn()
}

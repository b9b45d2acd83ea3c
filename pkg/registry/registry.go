// Package registry holds the listeners, filters and commands contributed by
// plugins. Mutations are serialized; readers get snapshots, so dispatches of
// different items may read concurrently.
package registry

import "sync"

type Registry struct {
	mu sync.RWMutex

	detected  [2]*orderedSet[*DetectedListener]
	processed [2]*orderedSet[*ProcessedListener]
	filters   *orderedSet[*Filter]

	// commandOrder holds names in first-registration order; commands maps a
	// name to the stack of commands registered under it, newest last.
	commandOrder []string
	commands     map[string][]*Command
}

func New() *Registry {
	return &Registry{
		detected:  [2]*orderedSet[*DetectedListener]{newOrderedSet[*DetectedListener](), newOrderedSet[*DetectedListener]()},
		processed: [2]*orderedSet[*ProcessedListener]{newOrderedSet[*ProcessedListener](), newOrderedSet[*ProcessedListener]()},
		filters:   newOrderedSet[*Filter](),
		commands:  make(map[string][]*Command),
	}
}

func (r *Registry) AddDetectedListener(kind Kind, l *DetectedListener) {
	if l == nil || !kind.valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected[kind].add(l)
}

func (r *Registry) RemoveDetectedListener(kind Kind, l *DetectedListener) {
	if l == nil || !kind.valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected[kind].remove(l)
}

// DetectedListeners returns the listeners for kind in registration order.
func (r *Registry) DetectedListeners(kind Kind) []*DetectedListener {
	if !kind.valid() {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detected[kind].snapshot()
}

func (r *Registry) AddProcessedListener(kind Kind, l *ProcessedListener) {
	if l == nil || !kind.valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[kind].add(l)
}

func (r *Registry) RemoveProcessedListener(kind Kind, l *ProcessedListener) {
	if l == nil || !kind.valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[kind].remove(l)
}

func (r *Registry) ProcessedListeners(kind Kind) []*ProcessedListener {
	if !kind.valid() {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.processed[kind].snapshot()
}

func (r *Registry) AddFilter(f *Filter) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters.add(f)
}

func (r *Registry) RemoveFilter(f *Filter) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters.remove(f)
}

// Filters returns the message filters in registration order.
func (r *Registry) Filters() []*Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filters.snapshot()
}

// AddCommand registers c under c.Name. A second command with the same name
// shadows the first until it is removed.
func (r *Registry) AddCommand(c *Command) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stack, ok := r.commands[c.Name]
	for _, existing := range stack {
		if existing == c {
			return
		}
	}
	if !ok {
		r.commandOrder = append(r.commandOrder, c.Name)
	}
	r.commands[c.Name] = append(stack, c)
}

// RemoveCommand removes exactly c; other commands sharing its name stay.
func (r *Registry) RemoveCommand(c *Command) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stack := r.commands[c.Name]
	for i, existing := range stack {
		if existing != c {
			continue
		}
		stack = append(stack[:i:i], stack[i+1:]...)
		if len(stack) > 0 {
			r.commands[c.Name] = stack
			return
		}
		delete(r.commands, c.Name)
		for j, name := range r.commandOrder {
			if name == c.Name {
				r.commandOrder = append(r.commandOrder[:j], r.commandOrder[j+1:]...)
				break
			}
		}
		return
	}
}

// Commands returns the effective command for each name in registration order.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.commandOrder) == 0 {
		return nil
	}
	out := make([]*Command, 0, len(r.commandOrder))
	for _, name := range r.commandOrder {
		stack := r.commands[name]
		out = append(out, stack[len(stack)-1])
	}
	return out
}

// Stats counts registrations per category.
type Stats struct {
	DetectedMessageListeners  int `json:"detected_message_listeners"`
	ProcessedMessageListeners int `json:"processed_message_listeners"`
	DetectedCommandListeners  int `json:"detected_command_listeners"`
	ProcessedCommandListeners int `json:"processed_command_listeners"`
	Filters                   int `json:"filters"`
	Commands                  int `json:"commands"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		DetectedMessageListeners:  r.detected[KindMessage].len(),
		ProcessedMessageListeners: r.processed[KindMessage].len(),
		DetectedCommandListeners:  r.detected[KindCommand].len(),
		ProcessedCommandListeners: r.processed[KindCommand].len(),
		Filters:                   r.filters.len(),
		Commands:                  len(r.commandOrder),
	}
}

func (k Kind) valid() bool {
	return k == KindMessage || k == KindCommand
}

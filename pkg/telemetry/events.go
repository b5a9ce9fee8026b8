package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notable occurrence during a reconcile run or task trigger.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id,omitempty"`
	Kind      string                 `json:"kind,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeReconcileStarted   = "reconcile.started"
	EventTypeReconcileCompleted = "reconcile.completed"
	EventTypeReconcileFailed    = "reconcile.failed"
	EventTypeResourceChanged    = "resource.changed"
	EventTypeResourceFailed     = "resource.failed"
	EventTypeTaskTriggered      = "task.triggered"
	EventTypePolicyViolation    = "policy.violation"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles events.
type EventSubscriber func(event Event)

// EventFilter reports whether an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, either inline or on a
// background goroutine fed by a bounded buffer.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	mu          sync.RWMutex
	wg          sync.WaitGroup
	closeOnce   sync.Once
	closed      bool
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a publisher. A disabled publisher drops every
// event.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	ep := &EventPublisher{config: cfg}
	if cfg.Enabled && cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}
	return ep
}

// Subscribe registers a subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: subscriber, filter: filter})
}

// Publish delivers an event, assigning an ID and timestamp when missing.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	if ep.buffer == nil {
		ep.deliver(event)
		return nil
	}

	ep.mu.RLock()
	defer ep.mu.RUnlock()
	if ep.closed {
		return fmt.Errorf("event publisher closed")
	}
	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, dropped %s", event.Type)
	}
}

// PublishReconcileStarted publishes a reconcile started event.
func (ep *EventPublisher) PublishReconcileStarted(runID, project string) error {
	return ep.Publish(Event{
		Type:    EventTypeReconcileStarted,
		RunID:   runID,
		Kind:    "project",
		Name:    project,
		Message: fmt.Sprintf("Reconcile %s started for project %s", runID, project),
	})
}

// PublishReconcileCompleted publishes a reconcile completed event.
func (ep *EventPublisher) PublishReconcileCompleted(runID string, counts map[string]int, duration time.Duration) error {
	data := map[string]interface{}{"duration": duration.Seconds()}
	for k, v := range counts {
		data[k] = v
	}
	return ep.Publish(Event{
		Type:    EventTypeReconcileCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("Reconcile %s completed", runID),
		Data:    data,
	})
}

// PublishReconcileFailed publishes a reconcile failed event.
func (ep *EventPublisher) PublishReconcileFailed(runID string, err error) error {
	return ep.Publish(Event{
		Type:    EventTypeReconcileFailed,
		RunID:   runID,
		Message: fmt.Sprintf("Reconcile %s failed: %v", runID, err),
		Level:   EventLevelError,
	})
}

// PublishResourceChanged publishes a create or update of one resource.
func (ep *EventPublisher) PublishResourceChanged(runID, kind, name, action string, id int) error {
	return ep.Publish(Event{
		Type:    EventTypeResourceChanged,
		RunID:   runID,
		Kind:    kind,
		Name:    name,
		Message: fmt.Sprintf("%s %q %s", kind, name, action),
		Data: map[string]interface{}{
			"action": action,
			"id":     id,
		},
	})
}

// PublishResourceFailed publishes a failed resource step.
func (ep *EventPublisher) PublishResourceFailed(runID, kind, name string, err error) error {
	return ep.Publish(Event{
		Type:    EventTypeResourceFailed,
		RunID:   runID,
		Kind:    kind,
		Name:    name,
		Message: fmt.Sprintf("%s %q failed: %v", kind, name, err),
		Level:   EventLevelError,
	})
}

// PublishTaskTriggered publishes a template run.
func (ep *EventPublisher) PublishTaskTriggered(template string, taskID int) error {
	return ep.Publish(Event{
		Type:    EventTypeTaskTriggered,
		Kind:    "template",
		Name:    template,
		Message: fmt.Sprintf("Task %d queued for template %q", taskID, template),
		Data:    map[string]interface{}{"task_id": taskID},
	})
}

// PublishPolicyViolation publishes a policy violation found in desired state.
func (ep *EventPublisher) PublishPolicyViolation(policy, message, severity string) error {
	level := EventLevelWarning
	if severity == "error" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Message: message,
		Level:   level,
		Data:    map[string]interface{}{"policy": policy, "severity": severity},
	})
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for event := range ep.buffer {
		ep.deliver(event)
	}
}

func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	subs := make([]subscriberEntry, len(ep.subscribers))
	copy(subs, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range subs {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Close drains buffered events and stops the background goroutine.
func (ep *EventPublisher) Close() {
	if ep == nil {
		return
	}
	ep.closeOnce.Do(func() {
		ep.mu.Lock()
		ep.closed = true
		if ep.buffer != nil {
			close(ep.buffer)
		}
		ep.mu.Unlock()
		ep.wg.Wait()
	})
}

// FilterByType accepts events of the given types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(event Event) bool {
		_, ok := set[event.Type]
		return ok
	}
}

// FilterByLevel accepts events at or above the given level.
func FilterByLevel(minLevel string) EventFilter {
	rank := map[string]int{EventLevelInfo: 0, EventLevelWarning: 1, EventLevelError: 2}
	minRank := rank[minLevel]
	return func(event Event) bool {
		return rank[event.Level] >= minRank
	}
}

// FilterByRunID accepts events of one run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

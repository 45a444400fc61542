package fymodules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventSource is the CloudEvents source of every lifecycle event.
const EventSource = "fymodules/lifecycle"

// Lifecycle event types, in reverse domain notation.
const (
	EventTypeModuleEnabled          = "com.fearlessyou.module.enabled"
	EventTypeModuleDisabled         = "com.fearlessyou.module.disabled"
	EventTypeModuleActivationFailed = "com.fearlessyou.module.activation_failed"
	EventTypeModuleRecovered        = "com.fearlessyou.module.recovered"
	EventTypeModuleToggleRejected   = "com.fearlessyou.module.toggle_rejected"
	EventTypeSettingsUpdated        = "com.fearlessyou.module.settings_updated"
)

// Observer is notified of lifecycle events.
type Observer interface {
	// OnEvent handles one event. Errors are logged by the subject and never
	// affect the operation that emitted the event.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID identifies the observer for registration tracking.
	ObserverID() string
}

// Subject fans events out to registered observers.
type Subject interface {
	RegisterObserver(observer Observer, eventTypes ...string) error
	UnregisterObserver(observer Observer) error
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
}

// ObserverFunc is an Observer backed by a function.
type ObserverFunc struct {
	ID      string
	Handler func(ctx context.Context, event cloudevents.Event) error
}

func (f ObserverFunc) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.Handler(ctx, event)
}

func (f ObserverFunc) ObserverID() string {
	return f.ID
}

type registration struct {
	observer   Observer
	eventTypes []string
}

// EventBus is an in-process Subject. Observers are called synchronously in
// registration order.
type EventBus struct {
	mu            sync.RWMutex
	registrations []registration
	logger        Logger
}

// NewEventBus creates an EventBus that logs observer failures to logger.
func NewEventBus(logger Logger) *EventBus {
	if logger == nil {
		logger = nopLogger{}
	}
	return &EventBus{logger: logger}
}

// RegisterObserver subscribes observer to eventTypes, or to every event when
// none are given. Registering the same observer id again replaces it.
func (b *EventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return errors.New("observer is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registrations = slices.DeleteFunc(b.registrations, func(r registration) bool {
		return r.observer.ObserverID() == observer.ObserverID()
	})
	b.registrations = append(b.registrations, registration{
		observer:   observer,
		eventTypes: slices.Clone(eventTypes),
	})
	return nil
}

// UnregisterObserver removes observer. Unknown observers are ignored.
func (b *EventBus) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registrations = slices.DeleteFunc(b.registrations, func(r registration) bool {
		return r.observer.ObserverID() == observer.ObserverID()
	})
	return nil
}

// NotifyObservers delivers event to every interested observer. Observer
// errors are logged and joined into the returned error.
func (b *EventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	b.mu.RLock()
	regs := slices.Clone(b.registrations)
	b.mu.RUnlock()

	var errs []error
	for _, r := range regs {
		if len(r.eventTypes) > 0 && !slices.Contains(r.eventTypes, event.Type()) {
			continue
		}
		if err := r.observer.OnEvent(ctx, event); err != nil {
			b.logger.Debug("Observer failed to handle event", "observer", r.observer.ObserverID(), "eventType", event.Type(), "error", err)
			errs = append(errs, fmt.Errorf("observer %s: %w", r.observer.ObserverID(), err))
		}
	}
	return errors.Join(errs...)
}

// NewCloudEvent creates a lifecycle event with a time-ordered id. The module
// id is carried both in the subject attribute and the payload.
func NewCloudEvent(eventType, moduleID string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(EventSource)
	event.SetType(eventType)
	event.SetSubject(moduleID)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// generateEventID returns a UUIDv7, falling back to v4.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

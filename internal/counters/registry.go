package counters

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// -------------------------------------------------------------------------
// Registry Errors
// -------------------------------------------------------------------------

// Sentinel errors for Registry operations.
var (
	// ErrCounterLimit indicates the registry already holds the maximum
	// number of counters.
	ErrCounterLimit = errors.New("counter limit reached")

	// ErrKeyTooLong indicates a key longer than the configured maximum.
	ErrKeyTooLong = errors.New("counter key too long")

	// ErrLabelTooLong indicates a label longer than the configured maximum.
	ErrLabelTooLong = errors.New("counter label too long")

	// ErrUnknownCounter indicates no counter exists for the given id.
	ErrUnknownCounter = errors.New("unknown counter")

	// ErrDuplicateRegistration indicates a counter already exists for the
	// given registration id.
	ErrDuplicateRegistration = errors.New("duplicate counter registration")
)

// -------------------------------------------------------------------------
// Limits
// -------------------------------------------------------------------------

// Limits bounds what the registry accepts.
type Limits struct {
	// MaxCounters is the maximum number of concurrently registered counters.
	MaxCounters int

	// MaxKeyLength is the maximum key length in bytes.
	MaxKeyLength int

	// MaxLabelLength is the maximum label length in bytes.
	MaxLabelLength int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxCounters:    4096,
		MaxKeyLength:   112,
		MaxLabelLength: 380,
	}
}

// -------------------------------------------------------------------------
// Counter
// -------------------------------------------------------------------------

// Counter is a read-only view of a registered counter. Key is a copy owned
// by the Counter.
type Counter struct {
	// ID is the counter id allocated by the registry.
	ID int32

	// RegistrationID is the correlation id of the creating AddCounter
	// command.
	RegistrationID int64

	// TypeID classifies the counter.
	TypeID int32

	// Key is the opaque key supplied at registration.
	Key []byte

	// Label is the human-readable label.
	Label string

	// Registered is when the counter was added.
	Registered time.Time
}

// -------------------------------------------------------------------------
// Registry
// -------------------------------------------------------------------------

// Registry holds registered counters, indexed by counter id and by
// registration id.
type Registry struct {
	mu             sync.RWMutex
	byID           map[int32]*Counter
	byRegistration map[int64]int32

	ids    *IDAllocator
	limits Limits
	now    func() time.Time
	logger *slog.Logger
}

// Option configures optional Registry parameters.
type Option func(*Registry)

// WithLimits overrides DefaultLimits. Non-positive fields keep their
// default.
func WithLimits(l Limits) Option {
	return func(r *Registry) {
		if l.MaxCounters > 0 {
			r.limits.MaxCounters = l.MaxCounters
		}
		if l.MaxKeyLength > 0 {
			r.limits.MaxKeyLength = l.MaxKeyLength
		}
		if l.MaxLabelLength > 0 {
			r.limits.MaxLabelLength = l.MaxLabelLength
		}
	}
}

// WithClock sets the time source used for Counter.Registered.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates an empty Registry.
func New(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		byID:           make(map[int32]*Counter),
		byRegistration: make(map[int64]int32),
		limits:         DefaultLimits(),
		now:            time.Now,
		logger:         logger.With(slog.String("component", "counters.registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ids = NewIDAllocator(int32(r.limits.MaxCounters))
	return r
}

// Limits returns the effective limits.
func (r *Registry) Limits() Limits {
	return r.limits
}

// Add registers a counter and returns its counter id. key is copied.
//
// Returns ErrKeyTooLong, ErrLabelTooLong, ErrDuplicateRegistration or
// ErrCounterLimit.
func (r *Registry) Add(registrationID int64, typeID int32, key []byte, label string) (int32, error) {
	if len(key) > r.limits.MaxKeyLength {
		return 0, fmt.Errorf("add counter %d: key length %d > %d: %w",
			registrationID, len(key), r.limits.MaxKeyLength, ErrKeyTooLong)
	}
	if len(label) > r.limits.MaxLabelLength {
		return 0, fmt.Errorf("add counter %d: label length %d > %d: %w",
			registrationID, len(label), r.limits.MaxLabelLength, ErrLabelTooLong)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.byRegistration[registrationID]; exists {
		return 0, fmt.Errorf("add counter %d: registered as counter %d: %w",
			registrationID, id, ErrDuplicateRegistration)
	}

	id, err := r.ids.Allocate()
	if err != nil {
		return 0, fmt.Errorf("add counter %d: %w: %w", registrationID, ErrCounterLimit, err)
	}

	r.byID[id] = &Counter{
		ID:             id,
		RegistrationID: registrationID,
		TypeID:         typeID,
		Key:            slices.Clone(key),
		Label:          label,
		Registered:     r.now(),
	}
	r.byRegistration[registrationID] = id

	r.logger.Debug("counter added",
		slog.Int("counter_id", int(id)),
		slog.Int64("registration_id", registrationID),
		slog.Int("type_id", int(typeID)),
		slog.String("label", label),
	)

	return id, nil
}

// Remove deletes the counter created by registrationID and releases its
// counter id for reuse. Returns ErrUnknownCounter if none exists.
func (r *Registry) Remove(registrationID int64) (Counter, error) {
	r.mu.Lock()
	id, ok := r.byRegistration[registrationID]
	if !ok {
		r.mu.Unlock()
		return Counter{}, fmt.Errorf("remove counter with registration %d: %w",
			registrationID, ErrUnknownCounter)
	}

	c := r.byID[id]
	delete(r.byID, id)
	delete(r.byRegistration, registrationID)
	r.mu.Unlock()

	r.ids.Release(id)

	r.logger.Debug("counter removed",
		slog.Int("counter_id", int(id)),
		slog.Int64("registration_id", registrationID),
	)

	return *c, nil
}

// Lookup returns the counter with the given counter id.
func (r *Registry) Lookup(id int32) (Counter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return Counter{}, false
	}
	return c.snapshot(), true
}

// LookupByRegistration returns the counter created by registrationID.
func (r *Registry) LookupByRegistration(registrationID int64) (Counter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRegistration[registrationID]
	if !ok {
		return Counter{}, false
	}
	return r.byID[id].snapshot(), true
}

// Counters returns a snapshot of all counters sorted by counter id. No
// references to registry state are held.
func (r *Registry) Counters() []Counter {
	r.mu.RLock()
	out := make([]Counter, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c.snapshot())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Counter) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of registered counters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

func (c *Counter) snapshot() Counter {
	out := *c
	out.Key = slices.Clone(c.Key)
	return out
}

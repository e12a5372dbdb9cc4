package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-rx/pkg/logging"
)

// Change is delivered to subscribers after a slot is saved or reset.
type Change struct {
	ClinicID string
	Kind     Kind
	Overlay  Overlay
	Reset    bool
}

// Store keeps one Redis key per clinic and slot. Writes are last-write-wins:
// there is no version check, so concurrent editors overwrite each other.
type Store struct {
	redis  *redis.Client
	logger *logging.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Change)
}

// NewStore creates a new overlay store.
func NewStore(redisClient *redis.Client, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		redis:  redisClient,
		logger: logger,
		subs:   make(map[int]func(Change)),
	}
}

func (s *Store) key(clinicID string, kind Kind) string {
	return fmt.Sprintf("clinicrx:template:%s:%s", clinicID, kind)
}

// Get returns the saved overlay for a slot, or its defaults when none exists.
func (s *Store) Get(ctx context.Context, clinicID string, kind Kind) (Overlay, error) {
	data, err := s.redis.Get(ctx, s.key(clinicID, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Default(kind), nil
	}
	if err != nil {
		return Overlay{}, fmt.Errorf("overlay: get %s: %w", kind, err)
	}
	return decode(data, kind)
}

// Templates loads header and footer in one round trip.
func (s *Store) Templates(ctx context.Context, clinicID string) (Templates, error) {
	vals, err := s.redis.MGet(ctx, s.key(clinicID, KindHeader), s.key(clinicID, KindFooter)).Result()
	if err != nil {
		return Templates{}, fmt.Errorf("overlay: get templates: %w", err)
	}
	out := DefaultTemplates()
	for i, kind := range []Kind{KindHeader, KindFooter} {
		raw, ok := vals[i].(string)
		if !ok {
			continue
		}
		o, err := decode([]byte(raw), kind)
		if err != nil {
			return Templates{}, err
		}
		if kind == KindHeader {
			out.Header = o
		} else {
			out.Footer = o
		}
	}
	return out, nil
}

// Save validates and writes a slot, then notifies subscribers.
func (s *Store) Save(ctx context.Context, clinicID string, o Overlay) error {
	if err := o.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("overlay: marshal %s: %w", o.Kind, err)
	}
	if err := s.redis.Set(ctx, s.key(clinicID, o.Kind), data, 0).Err(); err != nil {
		return fmt.Errorf("overlay: set %s: %w", o.Kind, err)
	}
	s.logger.Info("template saved", "clinic_id", clinicID, "kind", o.Kind)
	s.publish(Change{ClinicID: clinicID, Kind: o.Kind, Overlay: o})
	return nil
}

// Update reads a slot, applies fn and saves the result.
func (s *Store) Update(ctx context.Context, clinicID string, kind Kind, fn func(*Overlay) error) (Overlay, error) {
	o, err := s.Get(ctx, clinicID, kind)
	if err != nil {
		return Overlay{}, err
	}
	if err := fn(&o); err != nil {
		return Overlay{}, err
	}
	if err := s.Save(ctx, clinicID, o); err != nil {
		return Overlay{}, err
	}
	return o, nil
}

// Reset deletes a saved slot so the defaults apply again.
func (s *Store) Reset(ctx context.Context, clinicID string, kind Kind) error {
	if err := s.redis.Del(ctx, s.key(clinicID, kind)).Err(); err != nil {
		return fmt.Errorf("overlay: reset %s: %w", kind, err)
	}
	s.publish(Change{ClinicID: clinicID, Kind: kind, Overlay: Default(kind), Reset: true})
	return nil
}

// Subscribe registers fn for every saved change. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(change Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(change)
	}
}

func decode(data []byte, kind Kind) (Overlay, error) {
	var o Overlay
	if err := json.Unmarshal(data, &o); err != nil {
		return Overlay{}, fmt.Errorf("overlay: unmarshal %s: %w", kind, err)
	}
	o.Normalize(kind)
	return o, nil
}

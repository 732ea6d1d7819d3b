package field

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Definer adds field definitions.
type Definer interface {
	Lookup
	Define(ctx context.Context, info Info) (Info, error)
}

// Registry is an in-memory Definer. IDs are assigned from 1 in definition
// order.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Info
	byID   map[int32]Info
	nextID int32
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Info),
		byID:   make(map[int32]Info),
		nextID: 1,
	}
}

// Define registers info and returns it with its ID. Redefining a field with
// the same attributes and type returns the existing definition; any other
// redefinition fails with ErrSchemaMismatch.
func (r *Registry) Define(_ context.Context, info Info) (Info, error) {
	if err := info.Validate(); err != nil {
		return Info{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[info.Name]; ok {
		if err := sameDefinition(existing, info); err != nil {
			return Info{}, err
		}
		return existing, nil
	}
	info.ID = r.nextID
	r.put(info)
	return info, nil
}

func (r *Registry) put(info Info) {
	r.byName[info.Name] = info
	r.byID[info.ID] = info
	if info.ID >= r.nextID {
		r.nextID = info.ID + 1
	}
}

// replace swaps the contents for infos.
func (r *Registry) replace(infos []Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byName)
	clear(r.byID)
	r.nextID = 1
	for _, info := range infos {
		r.put(info)
	}
}

func sameDefinition(existing, info Info) error {
	if existing.Attrs != info.Attrs || existing.Type != info.Type {
		return lxerrors.Newf(lxerrors.ErrSchemaMismatch, "define field", "%s: defined as %s [%s], got %s [%s]",
			info.Name, existing.Type, existing.Attrs, info.Type, info.Attrs)
	}
	return nil
}

func (r *Registry) Field(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byName[name]
	return info, ok
}

func (r *Registry) FieldByID(id int32) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byID[id]
	return info, ok
}

// Fields returns every definition ordered by ID.
func (r *Registry) Fields() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.byID))
	for _, info := range r.byID {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b Info) int { return int(a.ID - b.ID) })
	return out
}

// Configure defines every configured field on d, in order.
func Configure(ctx context.Context, d Definer, fields []config.FieldConfig) error {
	for _, fc := range fields {
		typ := TypeString
		if fc.Type != "" {
			t, err := ParseValueType(fc.Type)
			if err != nil {
				return fmt.Errorf("field %s: %w", fc.Name, err)
			}
			typ = t
		}
		attrs, err := ParseAttributes(fc.Attrs)
		if err != nil {
			return fmt.Errorf("field %s: %w", fc.Name, err)
		}
		if _, err := d.Define(ctx, Info{Name: fc.Name, Attrs: attrs, Type: typ}); err != nil {
			return err
		}
	}
	return nil
}

// Package categories keeps each owner's allowed category names, split
// by transaction type. The set always contains the system defaults,
// which are seeded from an embedded file and can neither be renamed
// nor removed.
package categories

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/notify"
)

//go:embed defaults.yml
var defaultsYAML []byte

var (
	defaultsOnce sync.Once
	defaultSet   core.CategorySet
)

// Defaults returns the system default category set.
func Defaults() core.CategorySet {
	defaultsOnce.Do(func() {
		var seed struct {
			Income  []string `yaml:"income"`
			Expense []string `yaml:"expense"`
		}
		if err := yaml.Unmarshal(defaultsYAML, &seed); err != nil {
			panic(fmt.Sprintf("parse embedded category defaults: %v", err))
		}
		defaultSet = core.CategorySet{Income: seed.Income, Expense: seed.Expense}
	})
	return defaultSet.Clone()
}

// Registry manages per-owner category sets on top of the ledger store.
type Registry struct {
	store  ledger.Store
	events notify.Publisher
}

func NewRegistry(store ledger.Store, events notify.Publisher) *Registry {
	return &Registry{store: store, events: events}
}

// EnsureInitialized seeds the owner's set with the system defaults if
// no set exists yet. Safe to call on every owner login; an existing set
// is left alone.
func (r *Registry) EnsureInitialized(ctx context.Context, ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrNoOwner
	}
	_, initialized, err := r.store.Categories(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("read categories: %w", err)
	}
	if initialized {
		return nil
	}
	set := Defaults()
	if err := r.store.Apply(ctx, ledger.Batch{ledger.PutCategories{OwnerID: ownerID, Set: set}}); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	slog.InfoContext(ctx, "Category set seeded with defaults", "owner_id", ownerID)
	r.publish(ctx, ownerID)
	return nil
}

// List returns the owner's category set. An uninitialized owner sees
// the defaults.
func (r *Registry) List(ctx context.Context, ownerID string) (core.CategorySet, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.CategorySet{}, core.ErrNoOwner
	}
	set, initialized, err := r.store.Categories(ctx, ownerID)
	if err != nil {
		return core.CategorySet{}, fmt.Errorf("read categories: %w", err)
	}
	if !initialized {
		return Defaults(), nil
	}
	return set, nil
}

// Allowed reports whether a category name is registered for the owner
// and type. Satisfies the engines' category check.
func (r *Registry) Allowed(ctx context.Context, ownerID string, typ core.TransactionType, name string) (bool, error) {
	set, err := r.List(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return set.Has(typ, name), nil
}

// Add registers a user category. Names already present for the type,
// compared case-insensitively, are rejected.
func (r *Registry) Add(ctx context.Context, ownerID string, typ core.TransactionType, name string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrNoOwner
	}
	if err := typ.Validate(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyCategory
	}

	set, err := r.List(ctx, ownerID)
	if err != nil {
		return err
	}
	if set.Has(typ, name) {
		return fmt.Errorf("%w: %q (%s)", core.ErrCategoryExists, name, typ)
	}

	set = set.Clone()
	if typ == core.Income {
		set.Income = append(set.Income, name)
	} else {
		set.Expense = append(set.Expense, name)
	}
	if err := r.store.Apply(ctx, ledger.Batch{ledger.PutCategories{OwnerID: ownerID, Set: set}}); err != nil {
		return fmt.Errorf("add category: %w", err)
	}
	slog.InfoContext(ctx, "Category added", "owner_id", ownerID, "type", string(typ), "category", name)
	r.publish(ctx, ownerID)
	return nil
}

// Rename replaces a user category name and rewrites every transaction
// of the owner and type still carrying the old name, in one atomic
// batch. System defaults cannot be renamed.
func (r *Registry) Rename(ctx context.Context, ownerID string, typ core.TransactionType, oldName, newName string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrNoOwner
	}
	if err := typ.Validate(); err != nil {
		return err
	}
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return core.ErrEmptyCategory
	}
	if isDefault(typ, oldName) {
		return fmt.Errorf("%w: %q", core.ErrDefaultCategory, oldName)
	}

	set, err := r.List(ctx, ownerID)
	if err != nil {
		return err
	}
	if !set.Has(typ, oldName) {
		return fmt.Errorf("category %q (%s): %w", oldName, typ, core.ErrNotFound)
	}
	if !strings.EqualFold(oldName, newName) && set.Has(typ, newName) {
		return fmt.Errorf("%w: %q (%s)", core.ErrCategoryExists, newName, typ)
	}

	set = replaceName(set.Clone(), typ, oldName, newName)
	batch := ledger.Batch{ledger.PutCategories{OwnerID: ownerID, Set: set}}

	affected, err := r.store.TransactionsByCategory(ctx, ownerID, typ, oldName)
	if err != nil {
		return fmt.Errorf("load transactions for rename: %w", err)
	}
	for _, t := range affected {
		t.Category = newName
		batch = append(batch, ledger.PutTransaction{Record: t})
	}

	if err := r.store.Apply(ctx, batch); err != nil {
		return fmt.Errorf("rename category: %w", err)
	}
	slog.InfoContext(ctx, "Category renamed",
		"owner_id", ownerID, "type", string(typ), "from", oldName, "to", newName, "cascaded", len(affected))
	r.publish(ctx, ownerID)
	return nil
}

// Remove drops a user category from the registry. Existing records
// keep the old name as free text; removal does not cascade. System
// defaults cannot be removed.
func (r *Registry) Remove(ctx context.Context, ownerID string, typ core.TransactionType, name string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrNoOwner
	}
	if err := typ.Validate(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if isDefault(typ, name) {
		return fmt.Errorf("%w: %q", core.ErrDefaultCategory, name)
	}

	set, err := r.List(ctx, ownerID)
	if err != nil {
		return err
	}
	if !set.Has(typ, name) {
		return fmt.Errorf("category %q (%s): %w", name, typ, core.ErrNotFound)
	}

	set = dropName(set.Clone(), typ, name)
	if err := r.store.Apply(ctx, ledger.Batch{ledger.PutCategories{OwnerID: ownerID, Set: set}}); err != nil {
		return fmt.Errorf("remove category: %w", err)
	}
	slog.InfoContext(ctx, "Category removed", "owner_id", ownerID, "type", string(typ), "category", name)
	r.publish(ctx, ownerID)
	return nil
}

func isDefault(typ core.TransactionType, name string) bool {
	return Defaults().Has(typ, name)
}

func replaceName(set core.CategorySet, typ core.TransactionType, oldName, newName string) core.CategorySet {
	names := set.Income
	if typ == core.Expense {
		names = set.Expense
	}
	for i, c := range names {
		if strings.EqualFold(c, oldName) {
			names[i] = newName
		}
	}
	return set
}

func dropName(set core.CategorySet, typ core.TransactionType, name string) core.CategorySet {
	src := set.Income
	if typ == core.Expense {
		src = set.Expense
	}
	out := src[:0]
	for _, c := range src {
		if !strings.EqualFold(c, name) {
			out = append(out, c)
		}
	}
	if typ == core.Income {
		set.Income = out
	} else {
		set.Expense = out
	}
	return set
}

func (r *Registry) publish(ctx context.Context, ownerID string) {
	if r.events == nil {
		return
	}
	r.events.Publish(ctx, notify.Event{Kind: notify.KindCategories, OwnerID: ownerID})
}

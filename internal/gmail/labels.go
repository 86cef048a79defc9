package gmail

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// LabelLister is the one provider verb the resolver depends on.
type LabelLister interface {
	ListLabels(ctx context.Context) ([]Label, error)
}

// LabelResolver translates human label names to provider label ids through a
// lazily populated cache. System labels bypass the cache entirely. For an
// unresolved name the resolver performs at most two ListLabels calls: one to
// populate a cold cache and one forced refresh.
type LabelResolver struct {
	mu        sync.RWMutex
	lister    LabelLister
	nameToID  map[string]string // lowercase name -> id
	idToName  map[string]string // id -> original name
	populated bool
}

// NewLabelResolver creates a resolver backed by the given provider.
func NewLabelResolver(lister LabelLister) *LabelResolver {
	return &LabelResolver{
		lister:   lister,
		nameToID: make(map[string]string),
		idToName: make(map[string]string),
	}
}

// ResolveName maps a label name to its provider id. Returns "" (with a nil
// error) when the label does not exist on the account; errors are reserved
// for provider failures.
func (r *LabelResolver) ResolveName(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if IsSystemLabel(name) {
		return strings.ToUpper(name), nil
	}

	lower := strings.ToLower(name)

	r.mu.RLock()
	id, ok := r.nameToID[lower]
	populated := r.populated
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	if !populated {
		if err := r.refresh(ctx); err != nil {
			return "", err
		}
		if id, ok := r.lookup(lower); ok {
			return id, nil
		}
	}

	// One forced refresh: the label may have been created since the cache
	// was filled.
	if err := r.refresh(ctx); err != nil {
		return "", err
	}
	id, _ = r.lookup(lower)
	return id, nil
}

// ResolveID maps a provider label id back to its name. Unknown ids are
// returned unchanged, so callers can always display the result.
func (r *LabelResolver) ResolveID(id string) string {
	if id == "" || IsSystemLabel(id) {
		return id
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.idToName[id]; ok {
		return name
	}
	return id
}

// All returns every label on the account, sorted by name, populating the
// cache if necessary.
func (r *LabelResolver) All(ctx context.Context) ([]Label, error) {
	r.mu.RLock()
	populated := r.populated
	r.mu.RUnlock()

	if !populated {
		if err := r.refresh(ctx); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	labels := make([]Label, 0, len(r.idToName))
	for id, name := range r.idToName {
		labels = append(labels, Label{ID: id, Name: name})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels, nil
}

// Invalidate empties the cache. The next lookup repopulates it.
func (r *LabelResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nameToID = make(map[string]string)
	r.idToName = make(map[string]string)
	r.populated = false
}

func (r *LabelResolver) lookup(lower string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[lower]
	return id, ok
}

// refresh replaces the cache contents with the provider's current label set.
// The provider call runs outside the lock; concurrent refreshes are harmless
// (last writer wins with equivalent data).
func (r *LabelResolver) refresh(ctx context.Context) error {
	labels, err := r.lister.ListLabels(ctx)
	if err != nil {
		return err
	}

	nameToID := make(map[string]string, len(labels))
	idToName := make(map[string]string, len(labels))
	for _, label := range labels {
		nameToID[strings.ToLower(label.Name)] = label.ID
		idToName[label.ID] = label.Name
	}

	r.mu.Lock()
	r.nameToID = nameToID
	r.idToName = idToName
	r.populated = true
	r.mu.Unlock()
	return nil
}

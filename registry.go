package woofdb

// DescriptorRegistry is the process-wide singleton map from normalized
// database path to a shared Descriptor: a single mutex-guarded map plus an
// explicit embedder reference count governing process lifecycle.

import (
	"path/filepath"
	"sync"
	"weak"

	log "github.com/sirupsen/logrus"
)

// DescriptorRegistry holds a weak reference to each live Descriptor; it
// observes liveness but does not own.
type DescriptorRegistry struct {
	mu           sync.Mutex
	descriptors  map[string]weak.Pointer[Descriptor]
	embedderRefs int
	settings     *Settings
}

// NewDescriptorRegistry constructs a registry bound to the given Settings.
// Most hosts use the process-wide GlobalRegistry instead.
func NewDescriptorRegistry(settings *Settings) *DescriptorRegistry {
	return &DescriptorRegistry{
		descriptors: make(map[string]weak.Pointer[Descriptor]),
		settings:    settings,
	}
}

var globalRegistry = NewDescriptorRegistry(defaultSettings)

// GlobalRegistry returns the process-wide DescriptorRegistry singleton.
func GlobalRegistry() *DescriptorRegistry { return globalRegistry }

// LoadEmbedder increments the process embedder reference count. Call once
// per embedding host on load.
func (r *DescriptorRegistry) LoadEmbedder() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedderRefs++
}

// UnloadEmbedder decrements the embedder reference count; on the last
// unload it calls PurgeAll, closing every descriptor and flushing every log
// store.
func (r *DescriptorRegistry) UnloadEmbedder() {
	r.mu.Lock()
	r.embedderRefs--
	var last = r.embedderRefs <= 0
	r.mu.Unlock()

	if last {
		r.PurgeAll()
	}
}

func normalizePath(path string) (string, error) {
	var abs, err = filepath.Abs(path)
	if err != nil {
		return "", newError(KindInvalidArgument, "resolve path", err)
	}
	return filepath.Clean(abs), nil
}

// Open normalizes path, finds-or-creates a shared Descriptor, and returns a
// DBHandle bound to the requested column family.
//
// Open-vs-close-race handling: observe, then attempt to upgrade the weak
// reference; on upgrade failure treat the path as absent and reopen under
// the registry mutex.
func (r *DescriptorRegistry) Open(path string, o OpenOptions) (*DBHandle, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	o = o.withDefaults()

	var normalized, err = normalizePath(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if wp, ok := r.descriptors[normalized]; ok {
		if d := wp.Value(); d != nil {
			if d.mode != o.Mode {
				return nil, newError(KindConflictingMode, "path already open in mode "+d.mode.String(), nil)
			}
			cf, err := d.ensureColumnFamily(o.Name)
			if err != nil {
				return nil, err
			}
			log.WithFields(log.Fields{"path": normalized, "cf": o.Name}).Debug("woofdb: reusing descriptor")
			return newDBHandle(d, cf), nil
		}
		// Weak reference expired: treat as absent and fall through to reopen.
		delete(r.descriptors, normalized)
	}

	d, err := newDescriptor(r, normalized, o)
	if err != nil {
		return nil, err
	}
	r.descriptors[normalized] = weak.Make(d)

	cf, err := d.ensureColumnFamily(o.Name)
	if err != nil {
		// Undo the registration above: a torn-down descriptor must never be
		// reachable from a later Open via its still-live weak pointer.
		delete(r.descriptors, normalized)
		d.teardown()
		return nil, err
	}

	log.WithFields(log.Fields{"path": normalized, "mode": o.Mode}).Debug("woofdb: opened descriptor")
	return newDBHandle(d, cf), nil
}

// Purge drops expired weak entries from the map.
func (r *DescriptorRegistry) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()
}

func (r *DescriptorRegistry) purgeLocked() {
	for path, wp := range r.descriptors {
		if wp.Value() == nil {
			delete(r.descriptors, path)
		}
	}
}

// PurgeAll tears down every live descriptor and clears the map. Called on
// the last embedder unload.
func (r *DescriptorRegistry) PurgeAll() {
	r.mu.Lock()
	var live []*Descriptor
	for _, wp := range r.descriptors {
		if d := wp.Value(); d != nil {
			live = append(live, d)
		}
	}
	r.descriptors = make(map[string]weak.Pointer[Descriptor])
	r.mu.Unlock()

	for _, d := range live {
		d.teardown()
	}
}

// Size reports the number of live entries, after sweeping expired ones.
func (r *DescriptorRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()
	return len(r.descriptors)
}

package backend

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/emirpasic/gods/v2/stacks/arraystack"
	"golang.org/x/sync/singleflight"

	"github.com/born-ml/unitensor/internal/envconfig"
	"github.com/born-ml/unitensor/internal/tensor"
)

// Loader constructs a backend. It runs at most once per successful load.
type Loader func() (Backend, error)

var (
	mu      sync.Mutex
	loaders = make(map[string]Loader)
	loaded  = make(map[string]Backend)
	stack   = arraystack.New[string]()

	loadGroup singleflight.Group
)

// Register makes a backend loader available by name.
// It panics if a loader is registered twice under the same name.
func Register(name string, loader Loader) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := loaders[name]; ok {
		panic("backend: backend already registered: " + name)
	}
	loaders[name] = loader
}

// Names returns the registered backend names, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(loaders))
	for name := range loaders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Loaded returns the names of the backends loaded so far, sorted.
func Loaded() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Load returns the backend registered under name, loading it on first use.
// Loading is idempotent; concurrent first loads run the loader once.
func Load(name string) (Backend, error) {
	mu.Lock()
	if b, ok := loaded[name]; ok {
		mu.Unlock()
		return b, nil
	}
	loader, ok := loaders[name]
	mu.Unlock()
	if !ok {
		return nil, &tensor.Error{Kind: tensor.ErrBackendNotFound, Op: "load", Backend: name}
	}

	v, err, _ := loadGroup.Do(name, func() (any, error) {
		b, err := loader()
		if err != nil {
			return nil, fmt.Errorf("load backend %q: %w", name, err)
		}
		if err := validate(b); err != nil {
			return nil, err
		}

		mu.Lock()
		defer mu.Unlock()
		if first, ok := loaded[name]; ok {
			return first, nil
		}
		loaded[name] = b
		slog.Debug("backend loaded", "name", name)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Backend), nil
}

// LoadAsValue loads a backend without making it current.
func LoadAsValue(name string) (Backend, error) {
	return Load(name)
}

func validate(b Backend) error {
	if missing := b.Capabilities().Missing(RequiredOps); len(missing) > 0 {
		return &tensor.Error{
			Kind:    tensor.ErrNotImplementedForBackend,
			Op:      "load",
			Backend: b.Name(),
			Err:     fmt.Errorf("%w: missing required operations %v", tensor.ErrNotImplementedForBackend, missing),
		}
	}
	return nil
}

// SetBackend loads name and pushes it onto the current-backend stack.
// The returned release pops it again; calling release more than once is a no-op.
func SetBackend(name string) (release func(), err error) {
	if _, err := Load(name); err != nil {
		return nil, err
	}

	mu.Lock()
	stack.Push(name)
	depth := stack.Size()
	mu.Unlock()
	slog.Debug("backend pushed", "name", name, "depth", depth)

	var once sync.Once
	return func() {
		once.Do(func() { PreviousBackend() })
	}, nil
}

// PreviousBackend pops the current-backend stack and returns the popped name.
// It returns "" when the stack is empty.
func PreviousBackend() string {
	mu.Lock()
	name, _ := stack.Pop()
	depth := stack.Size()
	mu.Unlock()
	if name != "" {
		slog.Debug("backend popped", "name", name, "depth", depth)
	}
	return name
}

// Use runs fn with name as the current backend. The backend is popped on
// every exit path, including panics.
func Use(name string, fn func(Backend) error) error {
	release, err := SetBackend(name)
	if err != nil {
		return err
	}
	defer release()

	b, err := Load(name)
	if err != nil {
		return err
	}
	return fn(b)
}

// Stack returns the current-backend stack, top first.
func Stack() []string {
	mu.Lock()
	defer mu.Unlock()
	return stack.Values()
}

// Named is implemented by values that carry a backend identity, such as arrays.
type Named interface {
	BackendName() string
}

// Current resolves the backend for a call: the top of the stack if any was
// pushed, else the backend of the first argument carrying one, else the
// default backend.
func Current(args ...any) (Backend, error) {
	mu.Lock()
	top, ok := stack.Peek()
	mu.Unlock()
	if ok {
		return Load(top)
	}

	for _, arg := range args {
		if name := identity(arg); name != "" {
			return Load(name)
		}
	}
	return Load(envconfig.Backend())
}

// CurrentName returns the name Current would resolve to.
func CurrentName(args ...any) (string, error) {
	b, err := Current(args...)
	if err != nil {
		return "", err
	}
	return b.Name(), nil
}

func identity(arg any) string {
	switch v := arg.(type) {
	case nil:
		return ""
	case Named:
		return v.BackendName()
	default:
		if b := Owner(v); b != nil {
			return b.Name()
		}
		return ""
	}
}

// Owner returns the loaded backend that owns native v, or nil.
// Registered backends that are not yet loaded are loaded on demand.
func Owner(v any) Backend {
	if v == nil {
		return nil
	}
	mu.Lock()
	candidates := make([]Backend, 0, len(loaded))
	for _, b := range loaded {
		candidates = append(candidates, b)
	}
	mu.Unlock()
	for _, b := range candidates {
		if b.Owns(v) {
			return b
		}
	}

	for _, name := range Names() {
		b, err := Load(name)
		if err != nil {
			continue
		}
		if b.Owns(v) {
			return b
		}
	}
	return nil
}

// IsNative reports whether v is a native handle of any registered backend.
func IsNative(v any) bool {
	return Owner(v) != nil
}

package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// RootPrefix is prepended to the relative name of root-attached classes.
const RootPrefix = "uni/"

const slot = "%s"

var (
	// ErrUnknownClass is returned for class names missing from the registry.
	ErrUnknownClass = errors.New("unknown managed object class")

	// ErrArityMismatch is returned when the number of name values does not
	// match the number of slots in the class's distinguished name.
	ErrArityMismatch = errors.New("distinguished name arity mismatch")

	// ErrContainerCycle is returned when a container chain never reaches the root.
	ErrContainerCycle = errors.New("managed object container cycle")
)

// Class is the resolved addressing metadata of a managed object class.
// Values are immutable once resolved.
type Class struct {
	// Name is the registry key, including any "__" suffix.
	Name string

	// WireName is the class name used in request bodies and class queries.
	WireName string

	// Container is the resolved parent class, nil at the root.
	Container *Class

	// NameFormat is the relative name format.
	NameFormat string

	// FullNameFormat is the distinguished name format.
	FullNameFormat string

	// ParamCount is the number of value slots in FullNameFormat.
	ParamCount int

	// Params lists, outermost first, the classes whose relative name
	// contributes value slots.
	Params []string

	// CanCreate reports whether the class is creatable and named by a value.
	CanCreate bool
}

// FullName builds the distinguished name of one object of the class.
func (c *Class) FullName(values ...string) (string, error) {
	if len(values) != c.ParamCount {
		return "", fmt.Errorf("%w: %s takes %d values, got %d", ErrArityMismatch, c.Name, c.ParamCount, len(values))
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return fmt.Sprintf(c.FullNameFormat, args...), nil
}

// Registry resolves class definitions and memoizes the result. It is safe
// for concurrent use.
type Registry struct {
	defs map[string]Definition

	mu    sync.RWMutex
	cache map[string]*Class
}

// NewRegistry creates a registry over the given definitions.
func NewRegistry(defs map[string]Definition) *Registry {
	return &Registry{
		defs:  defs,
		cache: make(map[string]*Class, len(defs)),
	}
}

// Default is the registry of all supported classes.
var Default = NewRegistry(Classes)

// Resolve returns the resolved class from the default registry.
func Resolve(name string) (*Class, error) {
	return Default.Resolve(name)
}

// BuildFullName builds a distinguished name using the default registry.
func BuildFullName(name string, values ...string) (string, error) {
	return Default.BuildFullName(name, values...)
}

// Resolve returns the resolved class for name, computing it on first use.
func (r *Registry) Resolve(name string) (*Class, error) {
	r.mu.RLock()
	c, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(name, map[string]bool{})
}

// BuildFullName substitutes values positionally into the class's
// distinguished name format.
func (r *Registry) BuildFullName(name string, values ...string) (string, error) {
	c, err := r.Resolve(name)
	if err != nil {
		return "", err
	}
	return c.FullName(values...)
}

// Names returns every registered class name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

func (r *Registry) resolveLocked(name string, visiting map[string]bool) (*Class, error) {
	if c, ok := r.cache[name]; ok {
		return c, nil
	}
	d, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, name)
	}
	if visiting[name] {
		return nil, fmt.Errorf("%w: %s", ErrContainerCycle, name)
	}
	visiting[name] = true

	rnSlots := strings.Count(d.NameFormat, slot)
	c := &Class{
		Name:       name,
		WireName:   wireName(name),
		NameFormat: d.NameFormat,
		CanCreate:  d.Creatable && rnSlots > 0,
	}

	var own []string
	if rnSlots > 0 {
		own = []string{name}
	}

	if d.Container == "" {
		c.FullNameFormat = RootPrefix + d.NameFormat
		c.Params = own
	} else {
		parent, err := r.resolveLocked(d.Container, visiting)
		if err != nil {
			return nil, fmt.Errorf("resolve container of %s: %w", name, err)
		}
		c.Container = parent
		c.FullNameFormat = parent.FullNameFormat + "/" + d.NameFormat
		c.Params = append(append([]string{}, parent.Params...), own...)
	}
	c.ParamCount = strings.Count(c.FullNameFormat, slot)

	r.cache[name] = c
	return c, nil
}

func wireName(name string) string {
	if i := strings.Index(name, "__"); i >= 0 {
		return name[:i]
	}
	return name
}

// MODUL: registry
// ZWECK: Registry fuer Level-Solver-Factories mit deterministischer Reihenfolge
// INPUT: Varianten-Name, Factory-Funktionen
// OUTPUT: Neue Solver-Instanzen
// NEBENEFFEKTE: Keine (rein speicherbasiert)
// ABHAENGIGKEITEN: sync (stdlib), github.com/wk8/go-ordered-map/v2 (extern)
// HINWEISE: Thread-sicher durch RWMutex, List liefert Registrierungsreihenfolge

package stereo

import (
	"errors"
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ============================================================================
// Fehler-Definitionen
// ============================================================================

var (
	ErrSolverNotFound     = errors.New("stereo: solver not found")
	ErrSolverFactoryNil   = errors.New("stereo: solver factory is nil")
	ErrSolverAlreadyExist = errors.New("stereo: solver already registered")
)

// RegistryError beschreibt einen Fehler bei einer Registry-Operation.
type RegistryError struct {
	Op      string
	Variant SolverVariant
	Err     error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("stereo registry %s %q: %v", e.Op, e.Variant, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// Factory erzeugt einen neuen Solver.
type Factory func() Solver

// ============================================================================
// Registry
// ============================================================================

// Registry verwaltet Solver-Factories.
type Registry struct {
	mu        sync.RWMutex
	factories *orderedmap.OrderedMap[SolverVariant, Factory]
}

// NewRegistry erstellt eine leere Registry.
func NewRegistry() *Registry {
	return &Registry{factories: orderedmap.New[SolverVariant, Factory]()}
}

// Register registriert eine Factory. Existierende Eintraege werden nicht ueberschrieben.
func (r *Registry) Register(v SolverVariant, f Factory) error {
	if f == nil {
		return &RegistryError{Op: "register", Variant: v, Err: ErrSolverFactoryNil}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories.Get(v); ok {
		return &RegistryError{Op: "register", Variant: v, Err: ErrSolverAlreadyExist}
	}
	r.factories.Set(v, f)
	return nil
}

// MustRegister registriert eine Factory und panict bei Fehlern.
func (r *Registry) MustRegister(v SolverVariant, f Factory) {
	if err := r.Register(v, f); err != nil {
		panic(err)
	}
}

// Unregister entfernt eine Factory. Gibt true zurueck wenn sie existierte.
func (r *Registry) Unregister(v SolverVariant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.factories.Delete(v)
	return ok
}

// Has prueft ob eine Variante registriert ist.
func (r *Registry) Has(v SolverVariant) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories.Get(v)
	return ok
}

// Create erzeugt einen neuen Solver der Variante v.
func (r *Registry) Create(v SolverVariant) (Solver, error) {
	r.mu.RLock()
	f, ok := r.factories.Get(v)
	r.mu.RUnlock()

	if !ok {
		return nil, &RegistryError{Op: "create", Variant: v, Err: ErrSolverNotFound}
	}
	return f(), nil
}

// List gibt alle Varianten in Registrierungsreihenfolge zurueck.
func (r *Registry) List() []SolverVariant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	variants := make([]SolverVariant, 0, r.factories.Len())
	for pair := r.factories.Oldest(); pair != nil; pair = pair.Next() {
		variants = append(variants, pair.Key)
	}
	return variants
}

// ============================================================================
// Globale Registry
// ============================================================================

// DefaultRegistry enthaelt alle eingebauten Solver.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.MustRegister(HuberL1, func() Solver { return newHuberL1() })
	DefaultRegistry.MustRegister(PrecondHuberL1, func() Solver { return newPrecondHuberL1(false) })
	DefaultRegistry.MustRegister(PrecondHuberL1Weighted, func() Solver { return newPrecondHuberL1(true) })
	DefaultRegistry.MustRegister(EpipolarPrecondHuberL1, func() Solver { return newEpipolarPrecondHuberL1() })
}

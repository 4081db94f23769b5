// MODUL: options
// ZWECK: Functional Options fuer Pyramiden (Puffer-Strategie)
// INPUT: Optionale Konfigurationsparameter
// OUTPUT: Options Struct
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: envconfig (IMP_PYRAMID_REUSE)
// HINWEISE: Der Default kommt aus der Umgebung, Optionen ueberschreiben ihn

package pyramid

import (
	"fmt"
	"strings"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/envconfig"
)

// ReuseStrategy legt fest wie Zwischenpuffer der Reduktion verwaltet werden.
type ReuseStrategy int

const (
	// ReusePreallocated haelt zwei Zwischenpuffer pro Stufe fuer die Lebensdauer
	// der Pyramide (etwa doppelter Speicher, keine Allokation pro Aufruf).
	ReusePreallocated ReuseStrategy = iota
	// ReuseOnTheFly legt Zwischenpuffer in jedem Reduce-Aufruf neu an.
	ReuseOnTheFly
)

func (r ReuseStrategy) String() string {
	if r == ReuseOnTheFly {
		return "on-the-fly"
	}
	return "preallocated"
}

// ParseReuseStrategy wandelt einen Namen in eine ReuseStrategy um.
func ParseReuseStrategy(s string) (ReuseStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preallocated", "prealloc":
		return ReusePreallocated, nil
	case "on-the-fly", "onthefly", "lazy":
		return ReuseOnTheFly, nil
	}
	return ReusePreallocated, core.Errorf(core.KindConfig, "pyramid.ParseReuseStrategy", "unknown strategy %q", s)
}

// Options enthaelt die Konfiguration einer Pyramide.
type Options struct {
	Reuse ReuseStrategy
}

// Option ist eine funktionale Option fuer Options.
type Option func(*Options)

// DefaultOptions gibt die Standard-Konfiguration zurueck.
// Reuse: IMP_PYRAMID_REUSE, sonst preallocated.
func DefaultOptions() Options {
	reuse, err := ParseReuseStrategy(envconfig.PyramidReuse())
	if err != nil {
		reuse = ReusePreallocated
	}
	return Options{Reuse: reuse}
}

// WithReuse setzt die Puffer-Strategie.
func WithReuse(r ReuseStrategy) Option {
	return func(o *Options) {
		o.Reuse = r
	}
}

// Apply wendet alle Optionen an.
func (o *Options) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

func (o Options) String() string {
	return fmt.Sprintf("Options{Reuse: %s}", o.Reuse)
}

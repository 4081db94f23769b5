// errors.go - Fehler-Taxonomie fuer Pyramide, Kernels und Stereo-Treiber
//
// Dieses Modul enthaelt:
// - Sentinel-Fehler fuer jede Fehlerart (ErrConfig, ErrRange, ...)
// - Error: typisierter Wrapper mit Operation und Fehlerart
// - Errorf/Wrap: Hilfsfunktionen zum Erzeugen von Fehlern
package core

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel-Fehler
// ============================================================================

var (
	ErrConfig            = errors.New("imp: invalid configuration")
	ErrUnsupportedFormat = errors.New("imp: unsupported pixel format")
	ErrGeometryMismatch  = errors.New("imp: geometry mismatch")
	ErrNotReady          = errors.New("imp: not ready")
	ErrNotSolved         = errors.New("imp: not solved")
	ErrRange             = errors.New("imp: index out of range")
	ErrDevice            = errors.New("imp: device failure")
)

// Kind ordnet einen Fehler einer Fehlerart zu.
type Kind int

const (
	KindOther Kind = iota
	KindConfig
	KindUnsupportedFormat
	KindGeometryMismatch
	KindNotReady
	KindNotSolved
	KindRange
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindGeometryMismatch:
		return "geometry_mismatch"
	case KindNotReady:
		return "not_ready"
	case KindNotSolved:
		return "not_solved"
	case KindRange:
		return "range"
	case KindDevice:
		return "device"
	default:
		return "other"
	}
}

// sentinel liefert den Sentinel-Fehler zur Fehlerart.
func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindUnsupportedFormat:
		return ErrUnsupportedFormat
	case KindGeometryMismatch:
		return ErrGeometryMismatch
	case KindNotReady:
		return ErrNotReady
	case KindNotSolved:
		return ErrNotSolved
	case KindRange:
		return ErrRange
	case KindDevice:
		return ErrDevice
	default:
		return nil
	}
}

// ============================================================================
// Error - typisierter Fehler mit Kontext
// ============================================================================

// Error beschreibt einen Fehler einer Operation.
// errors.Is(err, ErrConfig) usw. funktioniert ueber die Fehlerart.
type Error struct {
	Op   string // Operation, z.B. "pyramid.Init"
	Kind Kind   // Fehlerart
	Err  error  // Ursache (optional)
}

func (e *Error) Error() string {
	s := e.Op
	if sentinel := e.Kind.sentinel(); sentinel != nil {
		s += ": " + sentinel.Error()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is vergleicht gegen die Sentinel-Fehler der Fehlerart.
func (e *Error) Is(target error) bool {
	if sentinel := e.Kind.sentinel(); sentinel != nil && target == sentinel {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
	}
	return false
}

// Errorf erzeugt einen Error mit formatierter Ursache.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap haengt Operation und Fehlerart an einen bestehenden Fehler.
// Gibt nil zurueck wenn err nil ist.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf liefert die Fehlerart des ersten Error in der Kette.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range []Kind{KindConfig, KindUnsupportedFormat, KindGeometryMismatch, KindNotReady, KindNotSolved, KindRange, KindDevice} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return KindOther
}

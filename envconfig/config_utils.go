// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint/Uint64: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 gibt eine Funktion zurueck, die einen uint64 mit Default-Wert liest
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"IMP_DEBUG":            {"IMP_DEBUG", LogLevel(), "Show additional debug information (e.g. IMP_DEBUG=1, 2 for trace)"},
		"IMP_DEVICE":           {"IMP_DEVICE", Device(), "Compute backend to use (cpu, webgpu; default: auto)"},
		"IMP_HOST":             {"IMP_HOST", Host(), "IP Address for the imp server (default 127.0.0.1:8547)"},
		"IMP_ORIGINS":          {"IMP_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"IMP_SOLVER":           {"IMP_SOLVER", Solver(), "Default level solver variant (default: huber_l1)"},
		"IMP_PYRAMID_REUSE":    {"IMP_PYRAMID_REUSE", PyramidReuse(), "Pyramid scratch buffer strategy (preallocated, on-the-fly)"},
		"IMP_RELEASE_SOLVERS":  {"IMP_RELEASE_SOLVERS", ReleaseSolvers(), "Release solver scratch buffers after each level"},
		"IMP_MAX_IMAGE_PIXELS": {"IMP_MAX_IMAGE_PIXELS", MaxImagePixels(), "Maximum number of pixels of an input image"},
		"IMP_MAX_UPLOAD_BYTES": {"IMP_MAX_UPLOAD_BYTES", MaxUploadBytes(), "Maximum size of an HTTP upload in bytes"},
		"IMP_MAX_SOLVES":       {"IMP_MAX_SOLVES", MaxSolves(), "Maximum number of concurrent stereo solves in the server"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

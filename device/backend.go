// MODUL: backend
// ZWECK: Abstraktion fuer Compute-Backends (CPU/WebGPU) und Geraete-Erkennung
// INPUT: Keine (reine Datenstrukturen und Detection)
// OUTPUT: Backend-Typ, DeviceInfo, Verfuegbarkeit
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: sync (stdlib), envconfig, cpu.go, webgpu.go/webgpu_stub.go
// HINWEISE: Kernels laufen immer auf dem Host-Stream, WebGPU wird nur erkannt

package device

import (
	"fmt"
	"strings"
	"sync"

	"github.com/7blacky7/imp/envconfig"
)

// ============================================================================
// Backend-Typ Definition
// ============================================================================

// Backend repraesentiert ein verfuegbares Compute-Backend.
type Backend string

// Verfuegbare Backend-Typen
const (
	BackendCPU    Backend = "cpu"
	BackendWebGPU Backend = "webgpu"
)

// ParseBackend wandelt einen Namen in ein Backend um.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", "auto":
		return SelectBestBackend(), nil
	case BackendCPU, BackendWebGPU:
		return b, nil
	default:
		return BackendCPU, &BackendError{Backend: b, Op: "parse", Err: ErrUnknownBackend}
	}
}

// ============================================================================
// DeviceInfo - Hardware-Informationen
// ============================================================================

// DeviceInfo enthaelt Informationen ueber ein verfuegbares Compute-Geraet.
type DeviceInfo struct {
	Backend    Backend  // Backend-Typ (cpu, webgpu)
	DeviceID   int      // Geraete-Index (0 fuer CPU)
	DeviceName string   // Lesbarer Geraetename
	Vendor     string   // Hersteller
	Threads    int      // Anzahl Worker fuer Kernels
	Features   []string // z.B. "avx2", "neon"
	IsDefault  bool     // Ob dies das Standard-Geraet ist
}

// ============================================================================
// Backend-Selection Optionen
// ============================================================================

// SelectionPriority definiert Praeferenzreihenfolge fuer Backend-Auswahl.
type SelectionPriority []Backend

// DefaultPriority gibt die Standard-Praeferenzreihenfolge zurueck.
func DefaultPriority() SelectionPriority {
	return SelectionPriority{BackendWebGPU, BackendCPU}
}

// ============================================================================
// Detection Interface
// ============================================================================

// Detector ist das Interface fuer Backend-Erkennung.
// Implementierungen: CPUDetector, WebGPUDetector
type Detector interface {
	// Detect prueft ob das Backend verfuegbar ist
	Detect() bool

	// GetDevices gibt alle verfuegbaren Geraete zurueck
	GetDevices() []DeviceInfo

	// Backend gibt den Backend-Typ zurueck
	Backend() Backend
}

// BackendError beschreibt einen Fehler bei einer Backend-Operation.
type BackendError struct {
	Backend Backend
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("device: %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Globale Detection-Funktionen
// ============================================================================

var (
	detectorsMu sync.RWMutex
	// registeredDetectors haelt alle registrierten Backend-Detektoren.
	registeredDetectors = map[Backend]Detector{}
)

func init() {
	RegisterDetector(NewCPUDetector())
	RegisterDetector(NewWebGPUDetector())
}

// RegisterDetector registriert einen Detektor fuer sein Backend.
func RegisterDetector(d Detector) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	registeredDetectors[d.Backend()] = d
}

func detector(b Backend) (Detector, bool) {
	detectorsMu.RLock()
	defer detectorsMu.RUnlock()
	d, ok := registeredDetectors[b]
	return d, ok
}

// DetectBackends erkennt alle verfuegbaren Backends.
func DetectBackends() []Backend {
	// CPU ist immer verfuegbar
	available := []Backend{BackendCPU}

	if d, ok := detector(BackendWebGPU); ok && d.Detect() {
		available = append(available, BackendWebGPU)
	}
	return available
}

// GetDevices gibt alle verfuegbaren Geraete zurueck.
func GetDevices() []DeviceInfo {
	var devices []DeviceInfo
	for _, b := range DetectBackends() {
		if d, ok := detector(b); ok {
			devices = append(devices, d.GetDevices()...)
		}
	}
	if len(devices) == 0 {
		devices = append(devices, cpuDeviceInfo())
	}
	return devices
}

// SelectBestBackend waehlt das optimale Backend basierend auf Prioritaet.
func SelectBestBackend() Backend {
	return SelectBestBackendWithPriority(DefaultPriority())
}

// SelectBestBackendWithPriority waehlt Backend nach gegebener Prioritaet.
func SelectBestBackendWithPriority(priority SelectionPriority) Backend {
	availableSet := make(map[Backend]bool)
	for _, b := range DetectBackends() {
		availableSet[b] = true
	}

	for _, preferred := range priority {
		if availableSet[preferred] {
			return preferred
		}
	}
	return BackendCPU
}

// IsBackendAvailable prueft ob ein bestimmtes Backend verfuegbar ist.
func IsBackendAvailable(b Backend) bool {
	if b == BackendCPU {
		return true
	}
	if d, ok := detector(b); ok {
		return d.Detect()
	}
	return false
}

// Selected gibt das via IMP_DEVICE gewaehlte Backend zurueck.
// Leer oder "auto" waehlt das beste verfuegbare Backend.
func Selected() (Backend, error) {
	b, err := ParseBackend(envconfig.Device())
	if err != nil {
		return BackendCPU, err
	}
	if !IsBackendAvailable(b) {
		return BackendCPU, &BackendError{Backend: b, Op: "select", Err: ErrBackendUnavailable}
	}
	return b, nil
}

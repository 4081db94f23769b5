// MODUL: webgpu_stub
// ZWECK: Stub-Implementierung wenn WebGPU nicht einkompiliert ist
// INPUT: Keine
// OUTPUT: Leere DeviceInfo-Liste, false fuer Detect
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: backend.go
// HINWEISE: Wird kompiliert wenn Build-Tag "webgpu" NICHT gesetzt

//go:build !webgpu

package device

// WebGPUDetector Stub fuer Builds ohne WebGPU.
type WebGPUDetector struct{}

// NewWebGPUDetector erstellt Stub-Detektor.
func NewWebGPUDetector() *WebGPUDetector {
	return &WebGPUDetector{}
}

// Detect gibt immer false zurueck.
func (d *WebGPUDetector) Detect() bool {
	return false
}

// GetDevices gibt leere Liste zurueck.
func (d *WebGPUDetector) GetDevices() []DeviceInfo {
	return nil
}

// Backend gibt BackendWebGPU zurueck.
func (d *WebGPUDetector) Backend() Backend {
	return BackendWebGPU
}

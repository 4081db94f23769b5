// MODUL: webgpu
// ZWECK: WebGPU Adapter-Erkennung
// INPUT: Keine (Hardware-Abfrage)
// OUTPUT: DeviceInfo fuer WebGPU-Adapter
// NEBENEFFEKTE: Erzeugt eine wgpu-Instanz fuer die Abfrage
// ABHAENGIGKEITEN: github.com/openfluke/webgpu/wgpu (extern, CGO)
// HINWEISE: Build-Tag "webgpu" fuer bedingte Kompilierung

//go:build webgpu

package device

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// WebGPUDetector implementiert Detector fuer WebGPU-Adapter.
type WebGPUDetector struct {
	once    sync.Once
	devices []DeviceInfo
}

// NewWebGPUDetector erstellt einen neuen WebGPU-Detektor.
func NewWebGPUDetector() *WebGPUDetector {
	return &WebGPUDetector{}
}

// Detect prueft ob mindestens ein Adapter gefunden wurde.
func (d *WebGPUDetector) Detect() bool {
	return len(d.GetDevices()) > 0
}

// GetDevices gibt alle WebGPU-Adapter zurueck.
func (d *WebGPUDetector) GetDevices() []DeviceInfo {
	d.once.Do(func() {
		inst := wgpu.CreateInstance(nil)
		if inst == nil {
			return
		}
		defer inst.Release()

		for i, a := range inst.EnumerateAdapters(nil) {
			info := a.GetInfo()
			d.devices = append(d.devices, DeviceInfo{
				Backend:    BackendWebGPU,
				DeviceID:   i,
				DeviceName: strings.TrimSpace(info.Name),
				Vendor:     fmt.Sprintf("%s (0x%04x)", strings.TrimSpace(info.VendorName), info.VendorId),
				Features:   []string{fmt.Sprintf("adapter-type=%d", info.AdapterType)},
				IsDefault:  i == 0,
			})
			a.Release()
		}
	})
	return d.devices
}

// Backend gibt BackendWebGPU zurueck.
func (d *WebGPUDetector) Backend() Backend {
	return BackendWebGPU
}

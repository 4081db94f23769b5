// MODUL: cpu
// ZWECK: CPU-Backend Detection mit SIMD-Feature-Abfrage
// INPUT: Keine (Hardware-Abfrage ueber golang.org/x/sys/cpu)
// OUTPUT: DeviceInfo fuer die CPU
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: golang.org/x/sys/cpu (extern), runtime
// HINWEISE: CPU ist immer verfuegbar

package device

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CPUDetector implementiert Detector fuer die CPU.
type CPUDetector struct{}

// NewCPUDetector erstellt einen neuen CPU-Detektor.
func NewCPUDetector() *CPUDetector {
	return &CPUDetector{}
}

// Detect gibt immer true zurueck.
func (d *CPUDetector) Detect() bool {
	return true
}

// GetDevices gibt das CPU-Geraet zurueck.
func (d *CPUDetector) GetDevices() []DeviceInfo {
	return []DeviceInfo{cpuDeviceInfo()}
}

// Backend gibt BackendCPU zurueck.
func (d *CPUDetector) Backend() Backend {
	return BackendCPU
}

// cpuDeviceInfo gibt Informationen ueber CPU zurueck.
func cpuDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Backend:    BackendCPU,
		DeviceID:   0,
		DeviceName: "CPU (" + runtime.GOARCH + ")",
		Threads:    runtime.NumCPU(),
		Features:   cpuFeatures(),
		IsDefault:  true,
	}
}

// cpuFeatures listet die fuer die Kernels relevanten SIMD-Erweiterungen.
func cpuFeatures() []string {
	var feats []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			feats = append(feats, "sse4.1")
		}
		if cpu.X86.HasAVX {
			feats = append(feats, "avx")
		}
		if cpu.X86.HasAVX2 {
			feats = append(feats, "avx2")
		}
		if cpu.X86.HasFMA {
			feats = append(feats, "fma")
		}
		if cpu.X86.HasAVX512F {
			feats = append(feats, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			feats = append(feats, "neon")
		}
		if cpu.ARM64.HasFPHP {
			feats = append(feats, "fp16")
		}
		if cpu.ARM64.HasSVE {
			feats = append(feats, "sve")
		}
	}
	return feats
}

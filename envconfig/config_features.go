// config_features.go - Device-, Solver- und Pyramiden-Konfiguration
//
// Dieses Modul enthaelt:
// - Device-Auswahl (IMP_DEVICE)
// - Standard-Solver und Puffer-Strategie
// - Grenzen fuer Eingabebilder
package envconfig

// =============================================================================
// Device-Auswahl
// =============================================================================

var (
	// Device waehlt das Compute-Backend ("cpu", "webgpu", leer = automatisch)
	Device = String("IMP_DEVICE")
)

// =============================================================================
// Solver- und Pyramiden-Einstellungen
// =============================================================================

var (
	// Solver setzt die Standard-Solver-Variante (z.B. "huber_l1")
	Solver = String("IMP_SOLVER")

	// PyramidReuse setzt die Puffer-Strategie ("preallocated", "on-the-fly")
	PyramidReuse = String("IMP_PYRAMID_REUSE")

	// ReleaseSolvers gibt Solver-Puffer am Ende jeder Stufe frei
	ReleaseSolvers = Bool("IMP_RELEASE_SOLVERS")
)

// =============================================================================
// Eingabe-Grenzen
// =============================================================================

var (
	// MaxImagePixels begrenzt die Pixelanzahl hochgeladener Bilder
	// Konfigurierbar via IMP_MAX_IMAGE_PIXELS
	MaxImagePixels = Uint64("IMP_MAX_IMAGE_PIXELS", 16*1024*1024)

	// MaxUploadBytes begrenzt die Groesse eines HTTP-Uploads
	MaxUploadBytes = Uint64("IMP_MAX_UPLOAD_BYTES", 64<<20)

	// MaxSolves begrenzt gleichzeitige Stereo-Loesungen im Server
	MaxSolves = Uint("IMP_MAX_SOLVES", 2)
)

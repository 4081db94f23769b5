// MODUL: parameters
// ZWECK: Parameter fuer variationelles Stereo und das Coarse-to-Fine Schema
// INPUT: Optionale Konfigurationsparameter (Solver, Lambda, CTF-Einstellungen)
// OUTPUT: Parameters Struct mit Defaults, Validierung und Textdarstellung
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: core, pyramid, envconfig
// HINWEISE: MaxUint32 fuer Levels/CoarsestLevel bedeutet "Grenze der Pyramide"

package stereo

import (
	"fmt"
	"math"
	"strings"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/envconfig"
	"github.com/7blacky7/imp/pyramid"
)

// Unbounded markiert "keine Grenze" fuer Stufen-Parameter.
const Unbounded = math.MaxUint32

// ============================================================================
// CTF - Coarse-to-Fine Einstellungen
// ============================================================================

// CTF enthaelt die Einstellungen des Coarse-to-Fine Schemas.
type CTF struct {
	ScaleFactor       float32               // Faktor zwischen benachbarten Stufen, (0,1)
	Iters             uint32                // innere Primal-Dual Iterationen pro Warp
	Warps             uint32                // Re-Linearisierungen pro Stufe
	Levels            uint32                // maximale Stufenzahl, Unbounded = aus Bildgroesse
	CoarsestLevel     uint32                // groebste geloeste Stufe, Unbounded = letzte Stufe
	FinestLevel       uint32                // feinste geloeste Stufe
	ApplyMedianFilter bool                  // 3x3 Median auf jedes Stufenergebnis
	SizeBound         uint32                // minimale kuerzere Seite der groebsten Stufe
	Interpolation     core.Interpolation    // Pyramide und Upsampling
	BufferReuse       pyramid.ReuseStrategy // Zwischenpuffer der Pyramiden
	ReleaseSolvers    bool                  // Solver-Puffer am Ende jeder Stufe freigeben
}

// ============================================================================
// Parameters
// ============================================================================

// Parameters enthaelt alle Einstellungen einer Stereo-Loesung.
type Parameters struct {
	Verbose            int
	Solver             SolverVariant
	Lambda             float32 // Gewicht des Datenterms
	EpsU               float32 // Huber-Parameter der Regularisierung
	EdgeAlpha          float32 // Kantengewichte g = exp(-alpha*|grad I|^beta)
	EdgeBeta           float32
	OcclusionThreshold float32 // Residuum ab dem ein Pixel als verdeckt gilt
	CTF                CTF
}

// Option ist eine funktionale Option fuer Parameters.
type Option func(*Parameters)

// DefaultParameters gibt die Standard-Konfiguration zurueck.
// Solver: IMP_SOLVER, sonst huber_l1.
func DefaultParameters() Parameters {
	solver := HuberL1
	if s := envconfig.Solver(); s != "" {
		if v, err := ParseSolverVariant(s); err == nil {
			solver = v
		}
	}
	reuse, err := pyramid.ParseReuseStrategy(envconfig.PyramidReuse())
	if err != nil {
		reuse = pyramid.ReusePreallocated
	}

	return Parameters{
		Verbose:            10,
		Solver:             solver,
		Lambda:             30,
		EpsU:               0.05,
		EdgeAlpha:          10,
		EdgeBeta:           1,
		OcclusionThreshold: 0.1,
		CTF: CTF{
			ScaleFactor:    0.8,
			Iters:          100,
			Warps:          10,
			Levels:         Unbounded,
			CoarsestLevel:  Unbounded,
			FinestLevel:    0,
			SizeBound:      8,
			Interpolation:  core.InterpolateLinear,
			BufferReuse:    reuse,
			ReleaseSolvers: envconfig.ReleaseSolvers(),
		},
	}
}

// NewParameters erstellt Parameters aus den Defaults und den Optionen.
func NewParameters(opts ...Option) *Parameters {
	p := DefaultParameters()
	p.Apply(opts...)
	return &p
}

// Apply wendet alle Optionen an.
func (p *Parameters) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(p)
	}
}

// ============================================================================
// Functional Options
// ============================================================================

// WithSolver setzt die Solver-Variante.
func WithSolver(v SolverVariant) Option {
	return func(p *Parameters) { p.Solver = v }
}

// WithLambda setzt das Gewicht des Datenterms.
func WithLambda(lambda float32) Option {
	return func(p *Parameters) { p.Lambda = lambda }
}

// WithEpsU setzt den Huber-Parameter.
func WithEpsU(eps float32) Option {
	return func(p *Parameters) { p.EpsU = eps }
}

// WithEdgeWeights setzt alpha und beta der Kantengewichte.
func WithEdgeWeights(alpha, beta float32) Option {
	return func(p *Parameters) {
		p.EdgeAlpha = alpha
		p.EdgeBeta = beta
	}
}

// WithOcclusionThreshold setzt die Schwelle fuer die Verdeckungskarte.
func WithOcclusionThreshold(t float32) Option {
	return func(p *Parameters) { p.OcclusionThreshold = t }
}

// WithScaleFactor setzt den Faktor zwischen benachbarten Stufen.
func WithScaleFactor(sf float32) Option {
	return func(p *Parameters) { p.CTF.ScaleFactor = sf }
}

// WithIterations setzt Warps und innere Iterationen pro Stufe.
func WithIterations(warps, iters uint32) Option {
	return func(p *Parameters) {
		p.CTF.Warps = warps
		p.CTF.Iters = iters
	}
}

// WithLevels setzt die maximale Stufenzahl.
func WithLevels(levels uint32) Option {
	return func(p *Parameters) { p.CTF.Levels = levels }
}

// WithLevelRange setzt groebste und feinste geloeste Stufe.
func WithLevelRange(coarsest, finest uint32) Option {
	return func(p *Parameters) {
		p.CTF.CoarsestLevel = coarsest
		p.CTF.FinestLevel = finest
	}
}

// WithMedianFilter aktiviert den 3x3 Median pro Stufe.
func WithMedianFilter(on bool) Option {
	return func(p *Parameters) { p.CTF.ApplyMedianFilter = on }
}

// WithSizeBound setzt die minimale kuerzere Seite der groebsten Stufe.
func WithSizeBound(bound uint32) Option {
	return func(p *Parameters) { p.CTF.SizeBound = bound }
}

// WithInterpolation setzt die Interpolation fuer Pyramide und Upsampling.
func WithInterpolation(i core.Interpolation) Option {
	return func(p *Parameters) { p.CTF.Interpolation = i }
}

// WithBufferReuse setzt die Puffer-Strategie der Pyramiden.
func WithBufferReuse(r pyramid.ReuseStrategy) Option {
	return func(p *Parameters) { p.CTF.BufferReuse = r }
}

// WithReleaseSolvers gibt Solver-Puffer am Ende jeder Stufe frei.
func WithReleaseSolvers(on bool) Option {
	return func(p *Parameters) { p.CTF.ReleaseSolvers = on }
}

// WithVerbose setzt die Ausfuehrlichkeit der Logs (0 = still).
func WithVerbose(v int) Option {
	return func(p *Parameters) { p.Verbose = v }
}

// ============================================================================
// Validierung
// ============================================================================

// Validate prueft die Parameter auf Gueltigkeit.
func (p *Parameters) Validate() error {
	const op = "stereo.Parameters"
	if _, err := ParseSolverVariant(string(p.Solver)); err != nil {
		return err
	}
	switch {
	case !(p.Lambda > 0):
		return core.Errorf(core.KindConfig, op, "lambda must be positive, got %v", p.Lambda)
	case p.EpsU < 0:
		return core.Errorf(core.KindConfig, op, "eps_u must not be negative, got %v", p.EpsU)
	case p.EdgeAlpha < 0 || !(p.EdgeBeta > 0):
		return core.Errorf(core.KindConfig, op, "invalid edge weights alpha=%v beta=%v", p.EdgeAlpha, p.EdgeBeta)
	case p.OcclusionThreshold < 0:
		return core.Errorf(core.KindConfig, op, "occlusion threshold must not be negative, got %v", p.OcclusionThreshold)
	case !(p.CTF.ScaleFactor > 0 && p.CTF.ScaleFactor < 1):
		return core.Errorf(core.KindConfig, op, "scale factor %v not in (0,1)", p.CTF.ScaleFactor)
	case p.CTF.Iters == 0 || p.CTF.Warps == 0:
		return core.Errorf(core.KindConfig, op, "iters and warps must be at least 1, got %d/%d", p.CTF.Iters, p.CTF.Warps)
	case p.CTF.Levels == 0:
		return core.Errorf(core.KindConfig, op, "levels must be at least 1")
	}
	return nil
}

// maxLevels wandelt CTF.Levels in eine Stufenzahl fuer die Pyramide um.
func (c CTF) maxLevels() int {
	if c.Levels == Unbounded || c.Levels > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(c.Levels)
}

// levelRange klemmt Coarsest/Finest in [0, n-1].
func (c CTF) levelRange(n int) (coarsest, finest int) {
	coarsest = n - 1
	if c.CoarsestLevel != Unbounded && int64(c.CoarsestLevel) < int64(n) {
		coarsest = int(c.CoarsestLevel)
	}
	finest = min(int(min(c.FinestLevel, uint32(math.MaxInt32))), n-1)
	finest = min(finest, coarsest)
	return coarsest, finest
}

func formatLevel(v uint32) string {
	if v == Unbounded {
		return "max"
	}
	return fmt.Sprint(v)
}

func (p Parameters) String() string {
	var b strings.Builder
	b.WriteString("variational stereo parameters:\n")
	fmt.Fprintf(&b, "  verbose: %d\n", p.Verbose)
	fmt.Fprintf(&b, "  solver: %s\n", p.Solver)
	fmt.Fprintf(&b, "  lambda: %g\n", p.Lambda)
	fmt.Fprintf(&b, "  eps_u: %g\n", p.EpsU)
	fmt.Fprintf(&b, "  edge weights: alpha=%g beta=%g\n", p.EdgeAlpha, p.EdgeBeta)
	fmt.Fprintf(&b, "  occlusion threshold: %g\n", p.OcclusionThreshold)
	b.WriteString("  ctf:\n")
	fmt.Fprintf(&b, "    scale factor: %g\n", p.CTF.ScaleFactor)
	fmt.Fprintf(&b, "    iters: %d\n", p.CTF.Iters)
	fmt.Fprintf(&b, "    warps: %d\n", p.CTF.Warps)
	fmt.Fprintf(&b, "    levels: %s\n", formatLevel(p.CTF.Levels))
	fmt.Fprintf(&b, "    coarsest level: %s\n", formatLevel(p.CTF.CoarsestLevel))
	fmt.Fprintf(&b, "    finest level: %d\n", p.CTF.FinestLevel)
	fmt.Fprintf(&b, "    median filter: %t\n", p.CTF.ApplyMedianFilter)
	fmt.Fprintf(&b, "    size bound: %d\n", p.CTF.SizeBound)
	fmt.Fprintf(&b, "    interpolation: %s\n", p.CTF.Interpolation)
	fmt.Fprintf(&b, "    buffer reuse: %s\n", p.CTF.BufferReuse)
	fmt.Fprintf(&b, "    release solvers: %t\n", p.CTF.ReleaseSolvers)
	return b.String()
}

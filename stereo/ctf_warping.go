// MODUL: ctf_warping
// ZWECK: Coarse-to-Fine Treiber fuer variationelles Stereo
// INPUT: Parameter, mindestens zwei Device-Bilder gleicher Geometrie, optionale Priors
// OUTPUT: Disparitaet und Verdeckung pro geloester Pyramidenstufe
// NEBENEFFEKTE: Eine Pyramide pro Bild, ein Solver pro Stufe, Kernel-Starts auf dem Stream
// ABHAENGIGKEITEN: pyramid, kernels, device, github.com/google/uuid (extern), log/slog
// HINWEISE: Keine interne Synchronisation, genau ein Aufrufer pro Instanz.
//           Zustaende: Empty -> Configured -> ImagesAdded -> Solving -> Solved.
//           Pyramiden und Solver werden ueber Reset hinweg wiederverwendet.

package stereo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/kernels"
	"github.com/7blacky7/imp/pyramid"
)

// ============================================================================
// Zustand
// ============================================================================

// State ist der Zustand des Treibers.
type State int

const (
	StateEmpty State = iota
	StateConfigured
	StateImagesAdded
	StateSolving
	StateSolved
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateConfigured:
		return "configured"
	case StateImagesAdded:
		return "images_added"
	case StateSolving:
		return "solving"
	case StateSolved:
		return "solved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ============================================================================
// Treiber-Optionen
// ============================================================================

// DriverOption konfiguriert einen CtfWarping Treiber.
type DriverOption func(*CtfWarping)

// WithStream setzt den Stream fuer alle Kernels. Der Treiber schliesst ihn nicht.
// nil fuehrt alle Kernels sofort im aufrufenden Goroutine aus.
func WithStream(s *device.Stream) DriverOption {
	return func(d *CtfWarping) {
		d.stream = s
		d.streamSet = true
	}
}

// WithRegistry setzt die Registry aus der Solver erzeugt werden.
func WithRegistry(r *Registry) DriverOption {
	return func(d *CtfWarping) { d.registry = r }
}

// WithLogger setzt den Logger.
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *CtfWarping) { d.logger = l }
}

// WithPyramidOptions setzt zusaetzliche Optionen fuer neu angelegte Pyramiden.
// Sie werden nach Parameters.CTF.BufferReuse angewendet.
func WithPyramidOptions(opts ...pyramid.Option) DriverOption {
	return func(d *CtfWarping) { d.pyrOpts = append(d.pyrOpts, opts...) }
}

// ============================================================================
// CtfWarping
// ============================================================================

type levelResult struct {
	disparity *core.Image32fC1
	occlusion *core.Image32fC1
}

// CtfWarping loest das Stereo-Problem von der groebsten zur feinsten Stufe.
type CtfWarping struct {
	params *Parameters
	state  State

	stream    *device.Stream
	streamSet bool
	ownStream bool
	registry  *Registry
	logger    *slog.Logger
	pyrOpts   []pyramid.Option
	session   string

	images   []*core.Image32fC1
	pyramids []*pyramid.Pyramid // Slots bleiben ueber Reset erhalten
	solvers  []Solver           // ein Solver pro Stufe
	seeds    []*core.Image32fC1 // hochgetastete Startfelder pro Stufe
	medians  []*core.Image32fC1 // Zielpuffer des Medianfilters pro Stufe
	results  []levelResult
	priors   Priors

	coarsest, finest int
}

// New erstellt einen Treiber. Ohne Parameter startet er im Zustand Empty.
func New(params *Parameters, opts ...DriverOption) (*CtfWarping, error) {
	d := &CtfWarping{
		registry: DefaultRegistry,
		logger:   slog.Default(),
		session:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if !d.streamSet {
		d.stream = device.NewStream("ctf-" + d.session[:8])
		d.ownStream = true
	}
	if params != nil {
		if err := d.SetParameters(params); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// SetParameters prueft und uebernimmt eine Kopie von p. Bereits hinzugefuegte
// Bilder werden mit dem neuen Plan neu aufgebaut, vorhandene Ergebnisse verworfen.
func (d *CtfWarping) SetParameters(p *Parameters) error {
	const op = "stereo.SetParameters"
	if p == nil {
		return core.Errorf(core.KindConfig, op, "nil parameters")
	}
	if d.state == StateSolving {
		return core.Errorf(core.KindNotReady, op, "solve in progress")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := d.stream.Err(); err != nil {
		return core.Wrap(core.KindDevice, op, err)
	}

	cp := *p
	prev := d.params
	d.params = &cp
	d.results = nil

	if len(d.images) == 0 {
		d.state = StateConfigured
		return nil
	}

	images := d.images
	d.images = nil
	for _, img := range images {
		if err := d.addImage(img); err != nil {
			// alten Plan wiederherstellen, Fehler dabei gehen mit zurueck
			d.params = prev
			d.images = nil
			errs := []error{err}
			for _, img := range images {
				if rerr := d.addImage(img); rerr != nil {
					errs = append(errs, fmt.Errorf("%s: rollback: %w", op, rerr))
					break
				}
			}
			d.state = StateImagesAdded
			if len(d.images) == 0 {
				d.state = StateConfigured
			}
			return errors.Join(errs...)
		}
	}
	d.state = StateImagesAdded
	return nil
}

// Parameters gibt eine Kopie der aktuellen Parameter zurueck (nil im Zustand Empty).
func (d *CtfWarping) Parameters() *Parameters {
	if d.params == nil {
		return nil
	}
	cp := *d.params
	return &cp
}

// State gibt den aktuellen Zustand zurueck.
func (d *CtfWarping) State() State { return d.state }

// Session gibt die Session-ID fuer Logs zurueck.
func (d *CtfWarping) Session() string { return d.session }

// Stream gibt den Stream des Treibers zurueck.
func (d *CtfWarping) Stream() *device.Stream { return d.stream }

// NumImages gibt die Anzahl hinzugefuegter Bilder zurueck.
func (d *CtfWarping) NumImages() int { return len(d.images) }

// NumLevels gibt die Stufenzahl der gemeinsamen Pyramidengeometrie zurueck.
func (d *CtfWarping) NumLevels() int {
	if len(d.images) == 0 {
		return 0
	}
	return d.pyramids[0].NumLevels()
}

// SolvedRange gibt die zuletzt geloeste Stufenspanne zurueck.
func (d *CtfWarping) SolvedRange() (coarsest, finest int, err error) {
	if d.state != StateSolved {
		return 0, 0, core.Errorf(core.KindNotSolved, "stereo.SolvedRange", "state %s", d.state)
	}
	return d.coarsest, d.finest, nil
}

// ============================================================================
// Bilder
// ============================================================================

// AddImage haengt ein Bild an und baut seine Pyramide. Das erste Bild legt
// Geometrie und Format fest. img bleibt referenziert, SetParameters baut die
// Pyramiden daraus neu auf.
func (d *CtfWarping) AddImage(img *core.Image32fC1) error {
	const op = "stereo.AddImage"
	if d.state != StateConfigured && d.state != StateImagesAdded {
		return core.Errorf(core.KindNotReady, op, "state %s", d.state)
	}
	if img == nil || img.Size().Empty() {
		return core.Errorf(core.KindConfig, op, "nil or empty image")
	}
	if len(d.images) > 0 {
		ref := d.images[0]
		if img.Size() != ref.Size() || img.PixelFormat() != ref.PixelFormat() {
			return core.Errorf(core.KindGeometryMismatch, op, "image %s/%s != session %s/%s",
				img.Size(), img.PixelFormat(), ref.Size(), ref.PixelFormat())
		}
	}
	if err := d.addImage(img); err != nil {
		return err
	}
	d.state = StateImagesAdded
	return nil
}

// addImage baut die Pyramide fuer den naechsten Slot.
func (d *CtfWarping) addImage(img *core.Image32fC1) error {
	slot := len(d.images)
	ctf := d.params.CTF
	opts := append([]pyramid.Option{pyramid.WithReuse(ctf.BufferReuse)}, d.pyrOpts...)
	switch {
	case slot == len(d.pyramids):
		d.pyramids = append(d.pyramids, pyramid.New(opts...))
	case d.pyramids[slot].Options().Reuse != ctf.BufferReuse:
		// Strategie gewechselt, Slot neu anlegen
		d.pyramids[slot].Reset()
		d.pyramids[slot] = pyramid.New(opts...)
	}
	pyr := d.pyramids[slot]

	if _, err := pyr.Init(ctf.maxLevels(), img.Size(), ctf.ScaleFactor, int(ctf.SizeBound)); err != nil {
		return err
	}
	n, err := pyr.SetImage(img, ctf.Interpolation, d.stream)
	if err != nil {
		return err
	}
	d.images = append(d.images, img)
	d.results = nil

	if d.params.Verbose > 0 {
		d.logger.Debug("image added", "session", d.session, "slot", slot, "size", img.Size(), "levels", n)
	}
	return nil
}

// Ready meldet ob mindestens zwei Bilder mit identischer Pyramidengeometrie vorliegen.
func (d *CtfWarping) Ready() bool {
	if d.params == nil || len(d.images) < 2 {
		return false
	}
	ref := d.pyramids[0]
	n := ref.NumLevels()
	for _, pyr := range d.pyramids[1:len(d.images)] {
		if pyr.NumLevels() != n {
			return false
		}
		for l := range n {
			a, errA := ref.Size(l)
			b, errB := pyr.Size(l)
			if errA != nil || errB != nil || a != b {
				return false
			}
		}
	}
	return true
}

// ============================================================================
// Priors
// ============================================================================

// SetFundamentalMatrix setzt die Fundamentalmatrix. nil entfernt sie.
func (d *CtfWarping) SetFundamentalMatrix(F mat.Matrix) error {
	if F == nil {
		d.priors.F = nil
		return nil
	}
	if err := ValidateFundamental(F); err != nil {
		return err
	}
	d.priors.F = mat.DenseCopyOf(F)
	return nil
}

// SetCorrespondenceGuess setzt die Startkorrespondenz. nil entfernt sie.
func (d *CtfWarping) SetCorrespondenceGuess(guess *core.Image32fC2) error {
	if err := d.checkPriorField("stereo.SetCorrespondenceGuess", guess); err != nil {
		return err
	}
	d.priors.Guess = guess
	return nil
}

// SetEpiVecs setzt die Epipolarrichtungen pro Pixel. nil entfernt sie.
func (d *CtfWarping) SetEpiVecs(vecs *core.Image32fC2) error {
	if err := d.checkPriorField("stereo.SetEpiVecs", vecs); err != nil {
		return err
	}
	d.priors.EpiVecs = vecs
	return nil
}

// Priors gibt das gesetzte Vorwissen zurueck.
func (d *CtfWarping) Priors() Priors { return d.priors }

func (d *CtfWarping) checkPriorField(op string, f *core.Image32fC2) error {
	if f == nil {
		return nil
	}
	if f.Size().Empty() {
		return core.Errorf(core.KindConfig, op, "empty field")
	}
	if len(d.images) > 0 && f.Size() != d.images[0].Size() {
		return core.Errorf(core.KindGeometryMismatch, op, "field %s != image %s", f.Size(), d.images[0].Size())
	}
	return nil
}

// ============================================================================
// Solve
// ============================================================================

// Solve iteriert von der groebsten zur feinsten Stufe. ctx wird nur zwischen
// den Stufen geprueft. Bei einem Fehler gibt es kein Teilergebnis.
func (d *CtfWarping) Solve(ctx context.Context) error {
	const op = "stereo.Solve"
	if d.state == StateSolving {
		return core.Errorf(core.KindNotReady, op, "solve in progress")
	}
	if !d.Ready() {
		return core.Errorf(core.KindNotReady, op, "need at least two images with identical geometry, have %d", len(d.images))
	}

	d.state = StateSolving
	d.results = nil
	if err := d.solve(ctx); err != nil {
		// Stream fuer den naechsten Versuch freigeben
		_ = d.stream.Synchronize()
		d.stream.ClearError()
		d.results = nil
		d.state = StateImagesAdded
		return err
	}
	d.state = StateSolved
	return nil
}

func (d *CtfWarping) solve(ctx context.Context) error {
	const op = "stereo.Solve"
	params := d.params
	n := d.NumLevels()
	d.coarsest, d.finest = params.CTF.levelRange(n)
	d.grow(n)

	results := make([]levelResult, n)
	started := time.Now()
	if params.Verbose > 0 {
		d.logger.Info("solve started", "session", d.session, "solver", params.Solver,
			"levels", n, "coarsest", d.coarsest, "finest", d.finest, "stream", d.stream.Name())
	}

	for l := d.coarsest; l >= d.finest; l-- {
		if err := ctx.Err(); err != nil {
			return core.Wrap(core.KindOther, op, err)
		}
		levelStart := time.Now()

		level, err := d.levelData(l)
		if err != nil {
			return err
		}
		solver, err := d.solver(l, params.Solver)
		if err != nil {
			return err
		}

		var init *core.Image32fC1
		if l < d.coarsest {
			if init, err = d.seed(l, results[l+1].disparity); err != nil {
				return err
			}
		}

		res, err := solver.Solve(ctx, d.stream, level, init, &d.priors, params)
		if err != nil {
			return fmt.Errorf("%s level %d: %w", op, l, err)
		}

		if params.CTF.ApplyMedianFilter {
			if err := d.median(l, res.Disparity); err != nil {
				return err
			}
		}
		if params.CTF.ReleaseSolvers {
			// queued Kernels lesen die Puffer noch
			if err := d.stream.Synchronize(); err != nil {
				return core.Wrap(core.KindDevice, op, err)
			}
			solver.Release()
		}
		results[l] = levelResult{disparity: res.Disparity, occlusion: res.Occlusion}

		if params.Verbose > 0 {
			d.logger.Debug("level solved", "session", d.session, "level", l, "size", level.Size(),
				"scale", level.Scale, "duration", time.Since(levelStart))
		}
	}

	if err := d.stream.Synchronize(); err != nil {
		return core.Wrap(core.KindDevice, op, err)
	}
	d.results = results

	if params.Verbose > 0 {
		d.logger.Info("solve finished", "session", d.session, "duration", time.Since(started))
	}
	return nil
}

// grow passt die Slices pro Stufe an n an.
func (d *CtfWarping) grow(n int) {
	for len(d.solvers) < n {
		d.solvers = append(d.solvers, nil)
		d.seeds = append(d.seeds, nil)
		d.medians = append(d.medians, nil)
	}
}

// levelData sammelt Referenz- und Zielbild einer Stufe. Weitere Bilder
// werden nicht verwendet.
func (d *CtfWarping) levelData(l int) (LevelData, error) {
	i0, err := d.pyramids[0].Level(l)
	if err != nil {
		return LevelData{}, err
	}
	i1, err := d.pyramids[1].Level(l)
	if err != nil {
		return LevelData{}, err
	}
	scale, err := d.pyramids[0].ScaleFactor(l)
	if err != nil {
		return LevelData{}, err
	}
	return LevelData{Level: l, Scale: scale, I0: i0, I1: i1}, nil
}

// solver gibt den Solver fuer Stufe l zurueck und erzeugt ihn bei Bedarf
// oder wenn sich die Variante geaendert hat.
func (d *CtfWarping) solver(l int, v SolverVariant) (Solver, error) {
	if s := d.solvers[l]; s != nil && s.Variant() == v {
		return s, nil
	}
	if s := d.solvers[l]; s != nil {
		_ = d.stream.Synchronize()
		s.Release()
	}
	s, err := d.registry.Create(v)
	if err != nil {
		return nil, core.Wrap(core.KindConfig, "stereo.Solve", err)
	}
	d.solvers[l] = s
	return s, nil
}

// seed tastet das Ergebnis der groeberen Stufe auf Stufe l hoch und skaliert
// die Disparitaet mit dem Breitenverhaeltnis.
func (d *CtfWarping) seed(l int, coarser *core.Image32fC1) (*core.Image32fC1, error) {
	size, err := d.pyramids[0].Size(l)
	if err != nil {
		return nil, err
	}
	if d.seeds[l] == nil || d.seeds[l].Size() != size {
		if d.seeds[l], err = core.NewImage[float32](size, core.Device); err != nil {
			return nil, err
		}
	}
	dst := d.seeds[l]
	if err := kernels.Resample(coarser, dst, d.params.CTF.Interpolation, d.stream); err != nil {
		return nil, err
	}
	ratio := float32(size.Width) / float32(coarser.Width())
	if err := kernels.MulC(dst, ratio, dst, size.Rect(), d.stream); err != nil {
		return nil, err
	}
	return dst, nil
}

// median filtert die Disparitaet einer Stufe mit 3x3 Median an Ort und Stelle.
func (d *CtfWarping) median(l int, disp *core.Image32fC1) error {
	if d.medians[l] == nil || d.medians[l].Size() != disp.Size() {
		m, err := core.NewImage[float32](disp.Size(), core.Device)
		if err != nil {
			return err
		}
		d.medians[l] = m
	}
	if err := kernels.Median3x3(disp, d.medians[l], d.stream); err != nil {
		return err
	}
	return kernels.Copy(d.medians[l], disp, d.stream)
}

// ============================================================================
// Ergebnisse
// ============================================================================

func (d *CtfWarping) result(op string, level int) (levelResult, error) {
	if d.state != StateSolved || d.results == nil {
		return levelResult{}, core.Errorf(core.KindNotSolved, op, "state %s", d.state)
	}
	if level < d.finest || level > d.coarsest {
		return levelResult{}, core.Errorf(core.KindRange, op, "level %d outside solved range [%d, %d]", level, d.finest, d.coarsest)
	}
	return d.results[level], nil
}

// Disparities gibt die Disparitaet der Stufe level zurueck (0 = volle Aufloesung).
// Das Bild gehoert dem Solver und bleibt bis zum naechsten Solve gueltig.
func (d *CtfWarping) Disparities(level int) (*core.Image32fC1, error) {
	r, err := d.result("stereo.Disparities", level)
	if err != nil {
		return nil, err
	}
	return r.disparity, nil
}

// Occlusion gibt die Verdeckungskarte der Stufe level zurueck. Varianten ohne
// Verdeckungsschaetzung liefern nil ohne Fehler.
func (d *CtfWarping) Occlusion(level int) (*core.Image32fC1, error) {
	r, err := d.result("stereo.Occlusion", level)
	if err != nil {
		return nil, err
	}
	return r.occlusion, nil
}

// ============================================================================
// Lebenszyklus
// ============================================================================

// Reset verwirft Bilder, Ergebnisse und Priors. Pyramiden und Solver bleiben
// fuer die Wiederverwendung ihrer Puffer erhalten.
func (d *CtfWarping) Reset() {
	_ = d.stream.Synchronize()
	d.stream.ClearError()
	d.images = nil
	d.results = nil
	d.priors = Priors{}
	if d.params != nil {
		d.state = StateConfigured
	} else {
		d.state = StateEmpty
	}
}

// Close gibt alle Puffer frei und beendet einen eigenen Stream.
func (d *CtfWarping) Close() error {
	err := d.stream.Synchronize()
	for _, s := range d.solvers {
		if s != nil {
			s.Release()
		}
	}
	for _, p := range d.pyramids {
		p.Reset()
	}
	d.solvers, d.seeds, d.medians, d.pyramids = nil, nil, nil, nil
	d.images, d.results = nil, nil
	d.state = StateEmpty
	d.params = nil

	if d.ownStream {
		if cerr := d.stream.Close(); err == nil {
			err = cerr
		}
		d.ownStream = false
	}
	return err
}

// MODUL: pyramid
// ZWECK: Mehrstufige Bildpyramide auf dem Device mit wiederverwendbaren Puffern
// INPUT: Skalierungsplan (Init/InitAdaptive) und Eingabebild (SetImage)
// OUTPUT: Stufenbilder von voller Aufloesung (Stufe 0) bis zur groebsten Stufe
// NEBENEFFEKTE: Allokation von Device-Puffern, Kernel-Starts auf dem Stream
// ABHAENGIGKEITEN: core, device, kernels, log/slog
// HINWEISE: Keine interne Synchronisation, ein Schreiber pro Pyramide.
//           Fehlschlagende Init*/SetImage Aufrufe lassen den Zustand unveraendert.

package pyramid

import (
	"log/slog"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/kernels"
)

// ============================================================================
// Level - eine Pyramidenstufe
// ============================================================================

// Level ist eine Pyramidenstufe mit optionalen Zwischenpuffern fuer die
// Reduktion auf die naechste Stufe.
type Level struct {
	Image    *core.Image32fC1
	Tmp      *core.Image32fC1 // horizontal gefiltertes Zwischenbild
	Filtered *core.Image32fC1 // vollstaendig gefiltertes Bild vor dem Resampling
	Scale    float32
}

// ============================================================================
// Pyramid
// ============================================================================

// Pyramid haelt die Stufen eines Bildes.
type Pyramid struct {
	opts      Options
	schedule  Schedule
	base      core.Size
	format    core.PixelFormat
	numLevels int
	levels    []Level
}

// New erstellt eine leere Pyramide.
func New(opts ...Option) *Pyramid {
	o := DefaultOptions()
	o.Apply(opts...)
	return &Pyramid{opts: o}
}

// Init setzt einen geometrischen Plan und gibt die Stufenzahl fuer base zurueck.
func (p *Pyramid) Init(maxLevels int, base core.Size, scaleFactor float32, sizeBound int) (int, error) {
	const op = "pyramid.Init"
	s, err := Geometric(maxLevels, scaleFactor, sizeBound)
	if err != nil {
		return 0, core.Wrap(core.KindConfig, op, err)
	}
	if base.Empty() {
		return 0, core.Errorf(core.KindConfig, op, "invalid base size %s", base)
	}
	p.apply(s, base)
	return p.numLevels, nil
}

// InitAdaptive setzt einen adaptiven Plan. Die Stufengroessen ergeben sich
// beim ersten SetImage.
func (p *Pyramid) InitAdaptive(numLevels int, scales []float32) (int, error) {
	s, err := Adaptive(numLevels, scales)
	if err != nil {
		return 0, core.Wrap(core.KindConfig, "pyramid.InitAdaptive", err)
	}
	p.apply(s, p.base)
	return p.numLevels, nil
}

// apply uebernimmt einen gueltigen Plan. Bei identischem Plan und gleicher
// Groesse bleiben die Puffer erhalten.
func (p *Pyramid) apply(s Schedule, base core.Size) {
	if p.schedule.Equal(s) && p.base == base && p.levels != nil {
		return
	}
	p.schedule = s
	p.base = base
	p.levels = nil
	p.numLevels = s.NumLevels(base)
}

// SetImage kopiert img in Stufe 0 und berechnet die uebrigen Stufen.
// Aendert sich Groesse oder Format, werden die Stufen mit dem gespeicherten
// Plan neu angelegt.
func (p *Pyramid) SetImage(img core.Imager, interp core.Interpolation, stream *device.Stream) (int, error) {
	const op = "pyramid.SetImage"
	if img == nil || img.Size().Empty() {
		return 0, core.Errorf(core.KindConfig, op, "nil or empty image")
	}
	if p.schedule.Mode == ModeNone {
		return 0, core.Errorf(core.KindConfig, op, "pyramid not initialised")
	}
	if !img.OnDevice() {
		return 0, core.Errorf(core.KindConfig, op, "image must be device resident")
	}
	if img.PixelFormat() != core.Pixel32fC1 {
		return 0, core.Errorf(core.KindUnsupportedFormat, op, "pixel format %s", img.PixelFormat())
	}
	src, ok := img.(*core.Image32fC1)
	if !ok {
		return 0, core.Errorf(core.KindUnsupportedFormat, op, "unexpected image type %T", img)
	}

	if err := stream.Err(); err != nil {
		return 0, core.Wrap(core.KindDevice, op, err)
	}

	if p.levels != nil && p.base == src.Size() && p.format == core.Pixel32fC1 {
		if err := fillLevels(p.levels[:p.numLevels], src, interp, stream); err != nil {
			return 0, core.Wrap(core.KindDevice, op, err)
		}
		return p.numLevels, nil
	}

	// neue Geometrie erst nach erfolgreichem Fuellen uebernehmen
	levels, n, err := p.allocate(src.Size())
	if err != nil {
		return 0, err
	}
	if err := fillLevels(levels, src, interp, stream); err != nil {
		return 0, core.Wrap(core.KindDevice, op, err)
	}
	slog.Debug("pyramid allocated", "base", src.Size(), "levels", n, "mode", p.schedule.Mode, "reuse", p.opts.Reuse)
	p.levels, p.numLevels, p.base, p.format = levels, n, src.Size(), core.Pixel32fC1
	return n, nil
}

// allocate legt alle Stufen fuer die Basisgroesse an, ohne den Zustand zu aendern.
func (p *Pyramid) allocate(base core.Size) ([]Level, int, error) {
	n := p.schedule.NumLevels(base)
	levels := make([]Level, n)
	for i := range levels {
		scale := p.schedule.Scale(i)
		img, err := core.NewImage[float32](base.Scale(scale), core.Device)
		if err != nil {
			return nil, 0, err
		}
		levels[i] = Level{Image: img, Scale: scale}
	}
	if p.opts.Reuse == ReusePreallocated {
		for i := range n - 1 {
			size := levels[i].Image.Size()
			tmp, err := core.NewImage[float32](size, core.Device)
			if err != nil {
				return nil, 0, err
			}
			filtered, err := core.NewImage[float32](size, core.Device)
			if err != nil {
				return nil, 0, err
			}
			levels[i].Tmp, levels[i].Filtered = tmp, filtered
		}
	}
	return levels, n, nil
}

// fillLevels kopiert src in Stufe 0 und reduziert kaskadierend.
func fillLevels(levels []Level, src *core.Image32fC1, interp core.Interpolation, stream *device.Stream) error {
	first := levels[0].Image
	if first.Size() == src.Size() {
		if err := kernels.Copy(src, first, stream); err != nil {
			return err
		}
	} else if err := kernels.Reduce(src, first, nil, nil, interp, stream); err != nil {
		return err
	}

	for i := 1; i < len(levels); i++ {
		prev := levels[i-1]
		if err := kernels.Reduce(prev.Image, levels[i].Image, prev.Tmp, prev.Filtered, interp, stream); err != nil {
			return err
		}
	}
	return nil
}

// Reset gibt alle Stufen frei und vergisst den Plan.
func (p *Pyramid) Reset() {
	p.levels = nil
	p.schedule = Schedule{}
	p.base = core.Size{}
	p.format = core.PixelFormatUnknown
	p.numLevels = 0
}

// ============================================================================
// Zugriff
// ============================================================================

// NumLevels gibt die aktuelle Stufenzahl zurueck.
func (p *Pyramid) NumLevels() int {
	return p.numLevels
}

// MaxLevels gibt die obere Schranke der Stufenzahl zurueck.
func (p *Pyramid) MaxLevels() int {
	return p.schedule.MaxLevels
}

// Schedule gibt eine Kopie des aktuellen Plans zurueck.
func (p *Pyramid) Schedule() Schedule {
	s := p.schedule
	s.Scales = append([]float32(nil), s.Scales...)
	return s
}

// Format gibt das Pixel-Format der Stufen zurueck.
func (p *Pyramid) Format() core.PixelFormat {
	return p.format
}

// Options gibt die Optionen der Pyramide zurueck.
func (p *Pyramid) Options() Options {
	return p.opts
}

func (p *Pyramid) checkIndex(op string, i int) error {
	if i < 0 || i >= p.numLevels {
		return core.Errorf(core.KindRange, op, "level %d not in [0,%d)", i, p.numLevels)
	}
	return nil
}

// ScaleFactor gibt den Faktor der Stufe i relativ zu Stufe 0 zurueck.
func (p *Pyramid) ScaleFactor(i int) (float32, error) {
	if err := p.checkIndex("pyramid.ScaleFactor", i); err != nil {
		return 0, err
	}
	return p.schedule.Scale(i), nil
}

// Size gibt die Groesse der Stufe i zurueck.
func (p *Pyramid) Size(i int) (core.Size, error) {
	const op = "pyramid.Size"
	if err := p.checkIndex(op, i); err != nil {
		return core.Size{}, err
	}
	if p.levels != nil {
		return p.levels[i].Image.Size(), nil
	}
	if p.base.Empty() {
		return core.Size{}, core.Errorf(core.KindNotReady, op, "no base size yet")
	}
	return p.base.Scale(p.schedule.Scale(i)), nil
}

// Level gibt das Bild der Stufe i zurueck.
func (p *Pyramid) Level(i int) (*core.Image32fC1, error) {
	const op = "pyramid.Level"
	if err := p.checkIndex(op, i); err != nil {
		return nil, err
	}
	if p.levels == nil {
		return nil, core.Errorf(core.KindNotReady, op, "no image set")
	}
	return p.levels[i].Image, nil
}

// Levels gibt alle Stufen zurueck.
func (p *Pyramid) Levels() []Level {
	return p.levels
}

// Bytes gibt den belegten Device-Speicher aller Stufen inklusive Zwischenpuffern zurueck.
func (p *Pyramid) Bytes() int {
	var n int
	for _, l := range p.levels {
		for _, m := range []*core.Image32fC1{l.Image, l.Tmp, l.Filtered} {
			if m != nil {
				n += len(m.Bytes())
			}
		}
	}
	return n
}

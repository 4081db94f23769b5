// MODUL: priors
// ZWECK: Vorwissen fuer die Korrespondenzsuche (Fundamentalmatrix, Startkorrespondenz, Epipolarrichtungen)
// INPUT: 3x3 Fundamentalmatrix, zweikanalige Felder in voller Aufloesung
// OUTPUT: Suchrichtung und Startversatz pro Pixel einer Stufe
// NEBENEFFEKTE: Kernel-Starts auf dem Stream
// ABHAENGIGKEITEN: gonum.org/v1/gonum/mat (extern), core, kernels
// HINWEISE: Der Treiber reicht Priors unveraendert an jeden Solver weiter.
//           Die Fundamentalmatrix bezieht sich auf Pixelkoordinaten von Stufe 0.

package stereo

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/kernels"
)

// Priors enthaelt optionales Vorwissen fuer alle Stufen.
type Priors struct {
	F       *mat.Dense       // Fundamentalmatrix, x1^T F x0 = 0
	Guess   *core.Image32fC2 // Startkorrespondenz (Verschiebung) pro Pixel
	EpiVecs *core.Image32fC2 // Epipolarrichtung pro Pixel
}

// Empty meldet ob kein Vorwissen gesetzt ist.
func (p *Priors) Empty() bool {
	return p == nil || (p.F == nil && p.Guess == nil && p.EpiVecs == nil)
}

// ValidateFundamental prueft dass F eine 3x3 Matrix ungleich Null ist.
func ValidateFundamental(F mat.Matrix) error {
	const op = "stereo.ValidateFundamental"
	if F == nil {
		return core.Errorf(core.KindConfig, op, "nil matrix")
	}
	if r, c := F.Dims(); r != 3 || c != 3 {
		return core.Errorf(core.KindGeometryMismatch, op, "expected 3x3, got %dx%d", r, c)
	}
	if n := mat.Norm(F, 2); n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return core.Errorf(core.KindConfig, op, "invalid matrix norm %v", n)
	}
	return nil
}

// NormalizeFundamental skaliert F auf Frobenius-Norm 1.
func NormalizeFundamental(F mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(1/mat.Norm(F, 2), F)
	return &out
}

// ParseFundamental liest F zeilenweise aus 9 durch Komma oder Leerzeichen
// getrennten Zahlen, z.B. "0,0,0, 0,0,-1, 0,1,0".
func ParseFundamental(s string) (*mat.Dense, error) {
	const op = "stereo.ParseFundamental"
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) != 9 {
		return nil, core.Errorf(core.KindConfig, op, "expected 9 values, got %d", len(fields))
	}
	data := make([]float64, 9)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, core.Wrap(core.KindConfig, op, err)
		}
		data[i] = v
	}
	F := mat.NewDense(3, 3, data)
	if err := ValidateFundamental(F); err != nil {
		return nil, err
	}
	return F, nil
}

// Epipoles berechnet die Epipole beider Bilder aus den Nullraeumen von F.
// ok ist false wenn ein Epipol im Unendlichen liegt.
func Epipoles(F mat.Matrix) (e0, e1 [2]float64, ok bool) {
	var svd mat.SVD
	if !svd.Factorize(F, mat.SVDFull) {
		return e0, e1, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// F e0 = 0: letzte Spalte von V, F^T e1 = 0: letzte Spalte von U
	w0, w1 := v.At(2, 2), u.At(2, 2)
	if math.Abs(w0) < 1e-12 || math.Abs(w1) < 1e-12 {
		return e0, e1, false
	}
	e0 = [2]float64{v.At(0, 2) / w0, v.At(1, 2) / w0}
	e1 = [2]float64{u.At(0, 2) / w1, u.At(1, 2) / w1}
	return e0, e1, true
}

// ============================================================================
// Felder pro Stufe
// ============================================================================

// levelFields berechnet Suchrichtung dir und Startversatz off fuer eine Stufe.
// Richtung: EpiVecs, sonst Epipolarlinien aus F, sonst horizontal.
// Versatz: Guess, sonst Fusspunkt auf der Epipolarlinie, sonst 0.
func (p *Priors) levelFields(level LevelData, dir, off *core.Image32fC2, interp core.Interpolation, stream *device.Stream) error {
	roi := dir.Size().Rect()
	var F *mat.Dense
	if p != nil && p.F != nil {
		if err := ValidateFundamental(p.F); err != nil {
			return err
		}
		F = NormalizeFundamental(p.F)
	}

	switch {
	case p != nil && p.EpiVecs != nil:
		if err := kernels.ResampleVec2(p.EpiVecs, dir, interp, core.Vec2f{X: 1, Y: 1}, stream); err != nil {
			return err
		}
		if err := normalizeDirections(dir, stream); err != nil {
			return err
		}
	case F != nil:
		// Richtung und Versatz in einem Durchlauf
		if err := epipolarLines(F, level.Scale, dir, off, stream); err != nil {
			return err
		}
	default:
		if err := kernels.SetValue(dir, core.Vec2f{X: 1}, roi, stream); err != nil {
			return err
		}
	}

	switch {
	case p != nil && p.Guess != nil:
		scale := core.Vec2f{
			X: float32(off.Width()) / float32(p.Guess.Width()),
			Y: float32(off.Height()) / float32(p.Guess.Height()),
		}
		return kernels.ResampleVec2(p.Guess, off, interp, scale, stream)
	case F != nil && (p.EpiVecs != nil):
		return epipolarLines(F, level.Scale, nil, off, stream)
	case F != nil:
		return nil
	default:
		return kernels.SetValue(off, core.Vec2f{}, roi, stream)
	}
}

// epipolarLines berechnet fuer jedes Pixel die Epipolarlinie l = F x in
// Koordinaten von Stufe 0. dir erhaelt die normierte Linienrichtung (x >= 0),
// off den Versatz zum Fusspunkt auf der Linie in Stufenpixeln. dir darf nil sein.
func epipolarLines(F *mat.Dense, scale float32, dir, off *core.Image32fC2, stream *device.Stream) error {
	w, h := off.Width(), off.Height()
	s := float64(scale)
	return stream.Launch("epipolar_lines", func() error {
		return kernels.ForEachRow(h, func(y int) error {
			X := mat.NewDense(3, w, nil)
			yf := (float64(y)+0.5)/s - 0.5
			for x := range w {
				X.Set(0, x, (float64(x)+0.5)/s-0.5)
				X.Set(1, x, yf)
				X.Set(2, x, 1)
			}
			var L mat.Dense
			L.Mul(F, X)

			for x := range w {
				a, b, c := L.At(0, x), L.At(1, x), L.At(2, x)
				n2 := a*a + b*b
				if n2 < 1e-24 {
					if dir != nil {
						dir.Set(x, y, core.Vec2f{X: 1})
					}
					off.Set(x, y, core.Vec2f{})
					continue
				}
				if dir != nil {
					dx, dy := b, -a
					if dx < 0 || (dx == 0 && dy < 0) {
						dx, dy = -dx, -dy
					}
					n := math.Sqrt(n2)
					dir.Set(x, y, core.Vec2f{X: float32(dx / n), Y: float32(dy / n)})
				}
				t := (a*X.At(0, x) + b*yf + c) / n2
				off.Set(x, y, core.Vec2f{X: float32(-a * t * s), Y: float32(-b * t * s)})
			}
			return nil
		})
	})
}

// normalizeDirections normiert alle Richtungen auf Laenge 1.
// Nullvektoren werden horizontal.
func normalizeDirections(dir *core.Image32fC2, stream *device.Stream) error {
	return stream.Launch("normalize_directions", func() error {
		return kernels.ForEachRow(dir.Height(), func(y int) error {
			row := dir.Row(y)
			for x, v := range row {
				if n := v.Norm(); n > 1e-6 {
					row[x] = v.Scale(1 / n)
				} else {
					row[x] = core.Vec2f{X: 1}
				}
			}
			return nil
		})
	})
}

// MODUL: schedule
// ZWECK: Skalierungsplan einer Bildpyramide (geometrisch oder adaptiv)
// INPUT: Skalierungsfaktor, Groessenschranke, maximale Stufenzahl oder explizite Faktoren
// OUTPUT: Anzahl Stufen und Skalierung pro Stufe
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: math (stdlib), core
// HINWEISE: Die Stufenzahl wird im geometrischen Modus aus der Bildgroesse berechnet

package pyramid

import (
	"math"
	"slices"

	"github.com/7blacky7/imp/core"
)

// Mode ist die Art des Skalierungsplans.
type Mode int

const (
	ModeNone Mode = iota
	ModeGeometric
	ModeAdaptive
)

func (m Mode) String() string {
	switch m {
	case ModeGeometric:
		return "geometric"
	case ModeAdaptive:
		return "adaptive"
	default:
		return "none"
	}
}

// levelEpsilon faengt Rundungsfehler bei exakten Potenzen ab.
const levelEpsilon = 1e-6

// Schedule beschreibt wie die Stufen einer Pyramide skaliert werden.
type Schedule struct {
	Mode        Mode
	ScaleFactor float32   // geometrisch: Faktor zwischen benachbarten Stufen
	SizeBound   int       // geometrisch: minimale kuerzere Seite der groebsten Stufe
	MaxLevels   int       // obere Schranke fuer die Stufenzahl
	Scales      []float32 // adaptiv: Faktor pro Stufe relativ zu Stufe 0
}

// Geometric erstellt einen geometrischen Plan. maxLevels und sizeBound
// werden auf mindestens 1 geklemmt.
func Geometric(maxLevels int, scaleFactor float32, sizeBound int) (Schedule, error) {
	if !(scaleFactor > 0 && scaleFactor < 1) {
		return Schedule{}, core.Errorf(core.KindConfig, "pyramid.Geometric", "scale factor %v not in (0,1)", scaleFactor)
	}
	return Schedule{
		Mode:        ModeGeometric,
		ScaleFactor: scaleFactor,
		SizeBound:   max(1, sizeBound),
		MaxLevels:   max(1, maxLevels),
	}, nil
}

// Adaptive erstellt einen adaptiven Plan aus expliziten Faktoren.
func Adaptive(numLevels int, scales []float32) (Schedule, error) {
	const op = "pyramid.Adaptive"
	if numLevels < 1 {
		return Schedule{}, core.Errorf(core.KindConfig, op, "need at least one level, got %d", numLevels)
	}
	if len(scales) != numLevels {
		return Schedule{}, core.Errorf(core.KindConfig, op, "got %d scales for %d levels", len(scales), numLevels)
	}
	for i, s := range scales {
		if !(s > 0 && s <= 1) {
			return Schedule{}, core.Errorf(core.KindConfig, op, "scale[%d] = %v not in (0,1]", i, s)
		}
		if i > 0 && s > scales[i-1] {
			return Schedule{}, core.Errorf(core.KindConfig, op, "scale[%d] = %v larger than scale[%d] = %v", i, s, i-1, scales[i-1])
		}
	}
	return Schedule{
		Mode:      ModeAdaptive,
		MaxLevels: numLevels,
		Scales:    slices.Clone(scales),
	}, nil
}

// NumLevels liefert die Stufenzahl fuer ein Bild der Groesse base.
func (s Schedule) NumLevels(base core.Size) int {
	switch s.Mode {
	case ModeAdaptive:
		return len(s.Scales)
	case ModeGeometric:
		return min(s.MaxLevels, PossibleLevels(base, s.ScaleFactor, s.SizeBound))
	default:
		return 0
	}
}

// Scale liefert den Faktor der Stufe i relativ zu Stufe 0.
func (s Schedule) Scale(i int) float32 {
	if s.Mode == ModeAdaptive {
		return s.Scales[i]
	}
	return float32(math.Pow(float64(s.ScaleFactor), float64(i)))
}

// Equal prueft ob zwei Plaene identisch sind.
func (s Schedule) Equal(o Schedule) bool {
	return s.Mode == o.Mode &&
		s.ScaleFactor == o.ScaleFactor &&
		s.SizeBound == o.SizeBound &&
		s.MaxLevels == o.MaxLevels &&
		slices.Equal(s.Scales, o.Scales)
}

// PossibleLevels berechnet trunc(-ln(shorter/bound)/ln(sf)) + 1, mindestens 1.
func PossibleLevels(base core.Size, scaleFactor float32, sizeBound int) int {
	shorter := float64(base.Shorter())
	bound := float64(max(1, sizeBound))
	if shorter <= 0 || !(scaleFactor > 0 && scaleFactor < 1) {
		return 1
	}
	n := -math.Log(shorter/bound)/math.Log(float64(scaleFactor)) + levelEpsilon
	return max(1, int(n)+1)
}

package stereo

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/7blacky7/imp/core"
)

// SolverVariant benennt einen Level-Solver.
type SolverVariant string

const (
	HuberL1                SolverVariant = "huber_l1"
	PrecondHuberL1         SolverVariant = "precond_huber_l1"
	PrecondHuberL1Weighted SolverVariant = "precond_huber_l1_weighted"
	EpipolarPrecondHuberL1 SolverVariant = "epipolar_precond_huber_l1"
)

// Variants listet alle bekannten Varianten.
func Variants() []SolverVariant {
	return []SolverVariant{HuberL1, PrecondHuberL1, PrecondHuberL1Weighted, EpipolarPrecondHuberL1}
}

// ParseSolverVariant wandelt einen Namen in eine Variante um. Bei unbekannten
// Namen enthaelt der Fehler den naechstgelegenen bekannten Namen.
func ParseSolverVariant(s string) (SolverVariant, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	for _, v := range Variants() {
		if string(v) == name {
			return v, nil
		}
	}

	best, score := SolverVariant(""), -1
	for _, v := range Variants() {
		if d := levenshtein.ComputeDistance(name, string(v)); score < 0 || d < score {
			best, score = v, d
		}
	}
	msg := fmt.Sprintf("unknown solver %q", s)
	if score >= 0 && score <= len(best)/2 {
		msg += fmt.Sprintf(", did you mean %q?", best)
	}
	return HuberL1, core.Errorf(core.KindConfig, "stereo.ParseSolverVariant", "%s", msg)
}

// ProducesOcclusion meldet ob die Variante eine Verdeckungskarte liefert.
func (v SolverVariant) ProducesOcclusion() bool {
	return v == PrecondHuberL1Weighted
}

// UsesPriors meldet ob die Variante Fundamentalmatrix, Startkorrespondenz
// und Epipolarrichtungen auswertet.
func (v SolverVariant) UsesPriors() bool {
	return v == EpipolarPrecondHuberL1
}

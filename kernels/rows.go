// rows.go - Zeilenparallele Ausfuehrung fuer Host-Kernels
//
// Dieses Modul enthaelt:
// - ForEachRow: verteilt Bildzeilen in Baendern auf Goroutinen
// - Geometrie-Pruefungen fuer Kernel-Argumente
package kernels

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/imp/core"
)

// minRowsPerBand verhindert zu feine Aufteilung bei kleinen Bildern.
const minRowsPerBand = 8

// ForEachRow ruft fn fuer jede Zeile in [0, height) auf.
// Zeilen werden in Baendern parallel verarbeitet; fn muss zeilenweise unabhaengig sein.
func ForEachRow(height int, fn func(y int) error) error {
	if height <= 0 {
		return nil
	}
	workers := runtime.GOMAXPROCS(0)
	bands := min(workers*2, (height+minRowsPerBand-1)/minRowsPerBand)
	if bands <= 1 {
		for y := range height {
			if err := fn(y); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	per := (height + bands - 1) / bands
	for start := 0; start < height; start += per {
		end := min(start+per, height)
		g.Go(func() error {
			for y := start; y < end; y++ {
				if err := fn(y); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// checkSameSize prueft dass alle Bilder dieselbe Groesse haben.
func checkSameSize(op string, imgs ...core.Imager) error {
	if len(imgs) == 0 {
		return nil
	}
	for _, m := range imgs {
		if m == nil || m.Size().Empty() {
			return core.Errorf(core.KindConfig, op, "nil or empty image")
		}
	}
	want := imgs[0].Size()
	for _, m := range imgs[1:] {
		if m.Size() != want {
			return core.Errorf(core.KindGeometryMismatch, op, "%s != %s", m.Size(), want)
		}
	}
	return nil
}

// checkROI prueft dass roi in allen Bildern liegt.
func checkROI(op string, roi core.Rect, imgs ...core.Imager) error {
	for _, m := range imgs {
		if !roi.In(m.Size()) {
			return core.Errorf(core.KindRange, op, "roi %s outside %s", roi, m.Size())
		}
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

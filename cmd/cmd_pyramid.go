// cmd_pyramid.go - Pyramiden-Command
// Hauptfunktionen: newPyramidCmd, PyramidHandler
package cmd

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/imgio"
	"github.com/7blacky7/imp/pyramid"
	"github.com/7blacky7/imp/stereo"
)

func newPyramidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pyramid IMAGE",
		Short: "Build an image pyramid and list its levels",
		Args:  cobra.ExactArgs(1),
		RunE:  PyramidHandler,
	}

	d := stereo.DefaultParameters()
	f := cmd.Flags()
	f.Float32("scale-factor", d.CTF.ScaleFactor, "Scale factor between neighbouring levels")
	f.Int("size-bound", int(d.CTF.SizeBound), "Minimum shorter side of the coarsest level")
	f.Int("levels", 0, "Maximum number of levels (0 = limited by size bound)")
	f.String("interpolation", d.CTF.Interpolation.String(), "Interpolation (nearest, linear, cubic)")
	f.String("reuse", d.CTF.BufferReuse.String(), "Buffer strategy (preallocated, on-the-fly)")
	f.String("out-dir", "", "Write every level as normalized PNG into this directory")

	return cmd
}

// PyramidHandler - Baut die Pyramide von IMAGE und gibt die Stufen aus
func PyramidHandler(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	sf, _ := f.GetFloat32("scale-factor")
	bound, _ := f.GetInt("size-bound")
	maxLevels, _ := f.GetInt("levels")
	if maxLevels <= 0 {
		maxLevels = math.MaxInt32
	}
	name, _ := f.GetString("interpolation")
	interp, err := core.ParseInterpolation(name)
	if err != nil {
		return err
	}
	name, _ = f.GetString("reuse")
	reuse, err := pyramid.ParseReuseStrategy(name)
	if err != nil {
		return err
	}

	img, err := imgio.Load(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	pyr := pyramid.New(pyramid.WithReuse(reuse))
	if _, err := pyr.Init(maxLevels, img.Size(), sf, bound); err != nil {
		return err
	}
	n, err := pyr.SetImage(img, interp, nil)
	if err != nil {
		return err
	}

	outDir, _ := f.GetString("out-dir")
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	var data [][]string
	for i := range n {
		size, err := pyr.Size(i)
		if err != nil {
			return err
		}
		scale, err := pyr.ScaleFactor(i)
		if err != nil {
			return err
		}
		data = append(data, []string{fmt.Sprint(i), size.String(), fmt.Sprintf("%.4f", scale)})

		if outDir != "" {
			level, err := pyr.Level(i)
			if err != nil {
				return err
			}
			if err := imgio.SaveNormalized(filepath.Join(outDir, fmt.Sprintf("level_%02d.png", i)), level); err != nil {
				return err
			}
		}
	}

	out := cmd.OutOrStdout()
	table := newTable(out, []string{"LEVEL", "SIZE", "SCALE"})
	table.AppendBulk(data)
	table.Render()
	fmt.Fprintf(out, "\n%d levels, %s buffers, %d bytes\n", n, pyr.Options().Reuse, pyr.Bytes())
	return nil
}

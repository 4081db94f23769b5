// cmd_stereo.go - Stereo-Command
// Hauptfunktionen: newStereoCmd, StereoHandler, stereoParameters
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/imgio"
	"github.com/7blacky7/imp/pyramid"
	"github.com/7blacky7/imp/stereo"
)

func newStereoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stereo LEFT RIGHT",
		Short: "Compute a disparity map for a rectified image pair",
		Args:  cobra.ExactArgs(2),
		RunE:  StereoHandler,
	}

	d := stereo.DefaultParameters()
	f := cmd.Flags()
	f.String("solver", string(d.Solver), "Solver variant (huber_l1, precond_huber_l1, precond_huber_l1_weighted, epipolar_precond_huber_l1)")
	f.Float32("lambda", d.Lambda, "Data term weight")
	f.Float32("eps-u", d.EpsU, "Huber parameter of the regularizer")
	f.Float32("occlusion-threshold", d.OcclusionThreshold, "Residual above which a pixel counts as occluded")
	f.Float32("scale-factor", d.CTF.ScaleFactor, "Scale factor between neighbouring pyramid levels")
	f.Uint32("warps", d.CTF.Warps, "Warps per level")
	f.Uint32("iters", d.CTF.Iters, "Primal-dual iterations per warp")
	f.Uint32("levels", 0, "Maximum number of pyramid levels (0 = limited by size bound)")
	f.Int("coarsest", -1, "Coarsest level to solve (-1 = last level)")
	f.Uint32("finest", d.CTF.FinestLevel, "Finest level to solve")
	f.Uint32("size-bound", d.CTF.SizeBound, "Minimum shorter side of the coarsest level")
	f.Bool("median", false, "Apply a 3x3 median filter to every level result")
	f.String("interpolation", d.CTF.Interpolation.String(), "Interpolation (nearest, linear, cubic)")
	f.String("reuse", d.CTF.BufferReuse.String(), "Pyramid buffer strategy (preallocated, on-the-fly)")
	f.Bool("release-solvers", d.CTF.ReleaseSolvers, "Release solver buffers after each level")
	f.String("fundamental", "", "Fundamental matrix as 9 row-major values for the epipolar solver")
	f.StringP("output", "o", "", "Write the normalized disparity map as PNG")
	f.String("raw", "", "Write the disparity map as float16 raw file")
	f.String("occlusion", "", "Write the occlusion map as PNG (weighted solver only)")
	f.CountP("verbose", "V", "Log per level (-V) or per warp (-VV)")

	return cmd
}

// stereoParameters liest die Stereo-Parameter aus den Flags
func stereoParameters(cmd *cobra.Command) (*stereo.Parameters, error) {
	f := cmd.Flags()
	p := stereo.NewParameters()

	solver, _ := f.GetString("solver")
	v, err := stereo.ParseSolverVariant(solver)
	if err != nil {
		return nil, err
	}
	p.Solver = v

	p.Lambda, _ = f.GetFloat32("lambda")
	p.EpsU, _ = f.GetFloat32("eps-u")
	p.OcclusionThreshold, _ = f.GetFloat32("occlusion-threshold")
	p.CTF.ScaleFactor, _ = f.GetFloat32("scale-factor")
	p.CTF.Warps, _ = f.GetUint32("warps")
	p.CTF.Iters, _ = f.GetUint32("iters")
	if levels, _ := f.GetUint32("levels"); levels > 0 {
		p.CTF.Levels = levels
	}
	if coarsest, _ := f.GetInt("coarsest"); coarsest >= 0 {
		p.CTF.CoarsestLevel = uint32(coarsest)
	}
	p.CTF.FinestLevel, _ = f.GetUint32("finest")
	p.CTF.SizeBound, _ = f.GetUint32("size-bound")
	p.CTF.ApplyMedianFilter, _ = f.GetBool("median")
	p.CTF.ReleaseSolvers, _ = f.GetBool("release-solvers")

	interp, _ := f.GetString("interpolation")
	if p.CTF.Interpolation, err = core.ParseInterpolation(interp); err != nil {
		return nil, err
	}
	reuse, _ := f.GetString("reuse")
	if p.CTF.BufferReuse, err = pyramid.ParseReuseStrategy(reuse); err != nil {
		return nil, err
	}

	// -V pro Stufe, -VV pro Warp
	switch verbose, _ := f.GetCount("verbose"); {
	case verbose >= 2:
		p.Verbose = 11
	case verbose == 1:
		p.Verbose = 1
	default:
		p.Verbose = 0
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// StereoHandler - Loest Stereo fuer LEFT (Referenz) und RIGHT
func StereoHandler(cmd *cobra.Command, args []string) error {
	params, err := stereoParameters(cmd)
	if err != nil {
		return err
	}

	images := make([]*core.Image32fC1, len(args))
	for i, path := range args {
		if images[i], err = imgio.Load(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	d, err := stereo.New(params, stereo.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer d.Close()

	for _, img := range images {
		if err := d.AddImage(img); err != nil {
			return err
		}
	}
	if s, _ := cmd.Flags().GetString("fundamental"); s != "" {
		F, err := stereo.ParseFundamental(s)
		if err != nil {
			return err
		}
		if !params.Solver.UsesPriors() {
			slog.Warn("solver ignores the fundamental matrix", "solver", params.Solver)
		}
		if err := d.SetFundamentalMatrix(F); err != nil {
			return err
		}
	}

	start := time.Now()
	if err := d.Solve(cmd.Context()); err != nil {
		return err
	}
	elapsed := time.Since(start)

	coarsest, finest, err := d.SolvedRange()
	if err != nil {
		return err
	}

	var data [][]string
	for l := coarsest; l >= finest; l-- {
		u, err := d.Disparities(l)
		if err != nil {
			return err
		}
		lo, hi, mean, err := imgio.Stats(u)
		if err != nil {
			return err
		}
		data = append(data, []string{
			fmt.Sprint(l),
			u.Size().String(),
			fmt.Sprintf("%.3f", lo),
			fmt.Sprintf("%.3f", hi),
			fmt.Sprintf("%.3f", mean),
		})
	}

	out := cmd.OutOrStdout()
	table := newTable(out, []string{"LEVEL", "SIZE", "MIN", "MAX", "MEAN"})
	table.AppendBulk(data)
	table.Render()
	fmt.Fprintf(out, "\nsolver %s, session %s, %s\n", params.Solver, d.Session(), elapsed.Round(time.Millisecond))

	disp, err := d.Disparities(finest)
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := imgio.SaveNormalized(path, disp); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("raw"); path != "" {
		if err := writeRaw(path, disp); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("occlusion"); path != "" {
		occ, err := d.Occlusion(finest)
		if err != nil {
			return err
		}
		if occ == nil {
			return fmt.Errorf("solver %s produces no occlusion map", params.Solver)
		}
		if err := imgio.SaveNormalized(path, occ); err != nil {
			return err
		}
	}
	return nil
}

// writeRaw schreibt img als float16 Rohdatei
func writeRaw(path string, img *core.Image32fC1) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := imgio.WriteRawF16(f, img); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}

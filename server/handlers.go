// MODUL: handlers
// ZWECK: HTTP-Handler fuer Geraete, Solver, Bildpyramiden und Stereo-Loesungen
// INPUT: gin.Context mit Multipart-Formularen
// OUTPUT: JSON, PNG oder rohe float16-Felder
// NEBENEFFEKTE: Bilder dekodieren, Geraete-Speicher belegen, Stereo loesen
// ABHAENGIGKEITEN: gin-gonic/gin, x/sync/semaphore, imgio, pyramid, stereo
// HINWEISE: Gleichzeitige Loesungen sind durch IMP_MAX_SOLVES begrenzt

package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/envconfig"
	"github.com/7blacky7/imp/imgio"
	"github.com/7blacky7/imp/pyramid"
	"github.com/7blacky7/imp/stereo"
)

const (
	headerSession = "X-Imp-Session"
	headerMin     = "X-Imp-Min"
	headerMax     = "X-Imp-Max"
)

// ============================================================================
// Info-Endpoints
// ============================================================================

// ConfigHandler gibt die aktive Umgebungs-Konfiguration zurueck.
func (s *Server) ConfigHandler(c *gin.Context) {
	c.JSON(http.StatusOK, envconfig.Values())
}

// DevicesHandler listet die verfuegbaren Compute-Geraete.
func (s *Server) DevicesHandler(c *gin.Context) {
	selected, err := device.Selected()
	if err != nil {
		writeError(c, core.Wrap(core.KindDevice, "server.devices", err))
		return
	}
	resp := DevicesResponse{Selected: string(selected)}
	for _, b := range device.DetectBackends() {
		resp.Backends = append(resp.Backends, string(b))
	}
	for _, info := range device.GetDevices() {
		resp.Devices = append(resp.Devices, toDeviceResponse(info))
	}
	c.JSON(http.StatusOK, resp)
}

// SolversHandler listet die registrierten Solver-Varianten.
func (s *Server) SolversHandler(c *gin.Context) {
	type solverInfo struct {
		Name      string `json:"name"`
		Occlusion bool   `json:"occlusion"`
		Priors    bool   `json:"priors"`
	}
	var out []solverInfo
	for _, v := range s.registry.List() {
		out = append(out, solverInfo{Name: string(v), Occlusion: v.ProducesOcclusion(), Priors: v.UsesPriors()})
	}
	c.JSON(http.StatusOK, gin.H{"solvers": out})
}

// ============================================================================
// Bild-Upload
// ============================================================================

// bindError ordnet Fehler beim Lesen des Formulars ein.
func bindError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: %w", ErrUploadTooLarge, err)
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

// formImage dekodiert die hochgeladene Datei name als Grauwertbild.
func formImage(c *gin.Context, name string) (*core.Image32fC1, error) {
	fh, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, fmt.Errorf("%w: %q", ErrMissingImage, name)
	} else if err != nil {
		return nil, bindError(err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := imgio.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return img, nil
}

// writePNG schreibt img normiert auf [min, max] als PNG.
func writePNG(c *gin.Context, img *core.Image32fC1) {
	lo, hi, err := imgio.Range(img, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := imgio.EncodePNG(&buf, img, lo, hi); err != nil {
		writeError(c, err)
		return
	}
	c.Header(headerMin, strconv.FormatFloat(float64(lo), 'g', -1, 32))
	c.Header(headerMax, strconv.FormatFloat(float64(hi), 'g', -1, 32))
	c.Data(http.StatusOK, imgio.FormatPNG.MimeType(), buf.Bytes())
}

// ============================================================================
// POST /api/pyramid
// ============================================================================

// PyramidHandler baut die Pyramide eines Bildes und beschreibt ihre Stufen.
// Mit output=png wird die Stufe level als PNG zurueckgegeben.
func (s *Server) PyramidHandler(c *gin.Context) {
	var req PyramidRequest
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	img, err := formImage(c, "image")
	if err != nil {
		writeError(c, err)
		return
	}

	defaults := stereo.DefaultParameters()
	sf, bound, maxLevels := defaults.CTF.ScaleFactor, int(defaults.CTF.SizeBound), math.MaxInt32
	if req.ScaleFactor > 0 {
		sf = req.ScaleFactor
	}
	if req.SizeBound > 0 {
		bound = req.SizeBound
	}
	if req.Levels > 0 {
		maxLevels = req.Levels
	}
	interp := defaults.CTF.Interpolation
	if req.Interpolation != "" {
		if interp, err = core.ParseInterpolation(req.Interpolation); err != nil {
			writeError(c, err)
			return
		}
	}

	pyr := pyramid.New(pyramid.WithReuse(defaults.CTF.BufferReuse))
	if _, err := pyr.Init(maxLevels, img.Size(), sf, bound); err != nil {
		writeError(c, err)
		return
	}
	if _, err := pyr.SetImage(img, interp, nil); err != nil {
		writeError(c, err)
		return
	}

	if req.Output == "png" {
		level, err := pyr.Level(req.Level)
		if err != nil {
			writeError(c, err)
			return
		}
		writePNG(c, level)
		return
	}

	c.JSON(http.StatusOK, PyramidResponse{
		Width:       img.Width(),
		Height:      img.Height(),
		ScaleFactor: sf,
		SizeBound:   bound,
		Reuse:       pyr.Options().Reuse.String(),
		Bytes:       pyr.Bytes(),
		Levels:      pyramidLevels(pyr),
	})
}

func pyramidLevels(pyr *pyramid.Pyramid) []LevelInfo {
	levels := make([]LevelInfo, 0, pyr.NumLevels())
	for i, l := range pyr.Levels()[:pyr.NumLevels()] {
		levels = append(levels, LevelInfo{Level: i, Width: l.Image.Width(), Height: l.Image.Height(), Scale: l.Scale})
	}
	return levels
}

// ============================================================================
// POST /api/stereo
// ============================================================================

// StereoHandler loest Stereo fuer das Bildpaar left/right.
func (s *Server) StereoHandler(c *gin.Context) {
	var req StereoRequest
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	params, err := req.parameters()
	if err != nil {
		writeError(c, err)
		return
	}

	left, err := formImage(c, "left")
	if err != nil {
		writeError(c, err)
		return
	}
	right, err := formImage(c, "right")
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.solves.Acquire(ctx, 1); err != nil {
		writeError(c, err)
		return
	}
	defer s.solves.Release(1)

	d, err := stereo.New(params, stereo.WithRegistry(s.registry))
	if err != nil {
		writeError(c, err)
		return
	}
	defer d.Close()

	for _, img := range []*core.Image32fC1{left, right} {
		if err := d.AddImage(img); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.Fundamental != "" {
		F, err := stereo.ParseFundamental(req.Fundamental)
		if err == nil {
			err = d.SetFundamentalMatrix(F)
		}
		if err != nil {
			writeError(c, err)
			return
		}
	}

	start := time.Now()
	if err := d.Solve(ctx); err != nil {
		writeError(c, err)
		return
	}
	elapsed := time.Since(start)

	coarsest, finest, err := d.SolvedRange()
	if err != nil {
		writeError(c, err)
		return
	}
	disp, err := d.Disparities(finest)
	if err != nil {
		writeError(c, err)
		return
	}
	slog.Info("stereo solved", "session", d.Session(), "solver", params.Solver,
		"size", left.Size(), "levels", coarsest-finest+1, "duration", elapsed)

	c.Header(headerSession, d.Session())
	switch req.Output {
	case "png":
		writePNG(c, disp)
		return
	case "raw":
		var buf bytes.Buffer
		if err := imgio.WriteRawF16(&buf, disp); err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/octet-stream", buf.Bytes())
		return
	}

	resp := StereoResponse{
		Session:    d.Session(),
		Solver:     string(params.Solver),
		Width:      disp.Width(),
		Height:     disp.Height(),
		Coarsest:   coarsest,
		Finest:     finest,
		DurationMs: elapsed.Milliseconds(),
	}
	for l := coarsest; l >= finest; l-- {
		u, err := d.Disparities(l)
		if err != nil {
			writeError(c, err)
			return
		}
		resp.Levels = append(resp.Levels, LevelInfo{Level: l, Width: u.Width(), Height: u.Height(), Scale: float32(u.Width()) / float32(left.Width())})
	}
	if resp.Disparity, err = fieldStats(disp); err != nil {
		writeError(c, err)
		return
	}
	if occ, err := d.Occlusion(finest); err == nil && occ != nil {
		st, err := fieldStats(occ)
		if err != nil {
			writeError(c, err)
			return
		}
		resp.Occluded = &st.Mean
	}
	c.JSON(http.StatusOK, resp)
}

// fieldStats berechnet Minimum, Maximum und Mittelwert eines Feldes.
func fieldStats(img *core.Image32fC1) (FieldStats, error) {
	lo, hi, mean, err := imgio.Stats(img)
	if err != nil {
		return FieldStats{}, err
	}
	return FieldStats{Min: lo, Max: hi, Mean: mean}, nil
}

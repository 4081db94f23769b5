// MODUL: types
// ZWECK: Request- und Response-Strukturen der imp HTTP-API
// INPUT: Multipart-Formulare (Bilder plus Parameter)
// OUTPUT: JSON-Strukturen fuer Geraete, Pyramiden und Stereo-Ergebnisse
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: stereo, pyramid, core
// HINWEISE: Nullwerte in Requests bedeuten "Default aus stereo.DefaultParameters"

package server

import (
	"fmt"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/stereo"
)

// ============================================================================
// Geraete
// ============================================================================

// DeviceResponse beschreibt ein Compute-Geraet.
type DeviceResponse struct {
	Backend   string   `json:"backend"`
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Vendor    string   `json:"vendor,omitempty"`
	Threads   int      `json:"threads,omitempty"`
	Features  []string `json:"features,omitempty"`
	IsDefault bool     `json:"is_default"`
}

// DevicesResponse ist die Antwort von GET /api/devices.
type DevicesResponse struct {
	Selected string           `json:"selected"`
	Backends []string         `json:"backends"`
	Devices  []DeviceResponse `json:"devices"`
}

func toDeviceResponse(info device.DeviceInfo) DeviceResponse {
	return DeviceResponse{
		Backend:   string(info.Backend),
		ID:        info.DeviceID,
		Name:      info.DeviceName,
		Vendor:    info.Vendor,
		Threads:   info.Threads,
		Features:  info.Features,
		IsDefault: info.IsDefault,
	}
}

// ============================================================================
// Pyramide
// ============================================================================

// PyramidRequest sind die Formularfelder von POST /api/pyramid.
type PyramidRequest struct {
	ScaleFactor   float32 `form:"scale_factor" binding:"omitempty,gt=0,lt=1"`
	SizeBound     int     `form:"size_bound" binding:"omitempty,gt=0"`
	Levels        int     `form:"levels" binding:"omitempty,gt=0"`
	Interpolation string  `form:"interpolation"`
	Output        string  `form:"output,default=json" binding:"oneof=json png"`
	Level         int     `form:"level" binding:"gte=0"`
}

// LevelInfo beschreibt eine Pyramidenstufe.
type LevelInfo struct {
	Level  int     `json:"level"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float32 `json:"scale"`
}

// PyramidResponse ist die JSON-Antwort von POST /api/pyramid.
type PyramidResponse struct {
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	ScaleFactor float32     `json:"scale_factor"`
	SizeBound   int         `json:"size_bound"`
	Reuse       string      `json:"reuse"`
	Bytes       int         `json:"bytes"`
	Levels      []LevelInfo `json:"levels"`
}

// ============================================================================
// Stereo
// ============================================================================

// StereoRequest sind die Formularfelder von POST /api/stereo.
// Die Bilder kommen als Dateien "left" (Referenz) und "right".
type StereoRequest struct {
	Solver             string  `form:"solver"`
	Lambda             float32 `form:"lambda" binding:"omitempty,gt=0"`
	EpsU               float32 `form:"eps_u" binding:"omitempty,gt=0"`
	OcclusionThreshold float32 `form:"occlusion_threshold" binding:"omitempty,gt=0"`
	ScaleFactor        float32 `form:"scale_factor" binding:"omitempty,gt=0,lt=1"`
	Warps              uint32  `form:"warps"`
	Iters              uint32  `form:"iters"`
	Levels             uint32  `form:"levels"`
	Coarsest           int64   `form:"coarsest,default=-1" binding:"gte=-1"`
	Finest             uint32  `form:"finest"`
	SizeBound          uint32  `form:"size_bound"`
	Median             bool    `form:"median"`
	Interpolation      string  `form:"interpolation"`
	Fundamental        string  `form:"fundamental"`
	Output             string  `form:"output,default=json" binding:"oneof=json png raw"`
}

// parameters baut die Stereo-Parameter aus dem Request.
func (r StereoRequest) parameters() (*stereo.Parameters, error) {
	p := stereo.NewParameters(stereo.WithVerbose(0))
	if r.Solver != "" {
		v, err := stereo.ParseSolverVariant(r.Solver)
		if err != nil {
			return nil, err
		}
		p.Solver = v
	}
	if r.Lambda > 0 {
		p.Lambda = r.Lambda
	}
	if r.EpsU > 0 {
		p.EpsU = r.EpsU
	}
	if r.OcclusionThreshold > 0 {
		p.OcclusionThreshold = r.OcclusionThreshold
	}
	if r.ScaleFactor > 0 {
		p.CTF.ScaleFactor = r.ScaleFactor
	}
	if r.Warps > 0 {
		p.CTF.Warps = r.Warps
	}
	if r.Iters > 0 {
		p.CTF.Iters = r.Iters
	}
	if r.Levels > 0 {
		p.CTF.Levels = r.Levels
	}
	if r.Coarsest >= 0 {
		p.CTF.CoarsestLevel = uint32(r.Coarsest)
	}
	p.CTF.FinestLevel = r.Finest
	if r.SizeBound > 0 {
		p.CTF.SizeBound = r.SizeBound
	}
	p.CTF.ApplyMedianFilter = r.Median
	if r.Interpolation != "" {
		i, err := core.ParseInterpolation(r.Interpolation)
		if err != nil {
			return nil, err
		}
		p.CTF.Interpolation = i
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// FieldStats fasst ein Ergebnisfeld zusammen.
type FieldStats struct {
	Min  float32 `json:"min"`
	Max  float32 `json:"max"`
	Mean float64 `json:"mean"`
}

// StereoResponse ist die JSON-Antwort von POST /api/stereo.
type StereoResponse struct {
	Session    string      `json:"session"`
	Solver     string      `json:"solver"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Coarsest   int         `json:"coarsest"`
	Finest     int         `json:"finest"`
	Levels     []LevelInfo `json:"levels"`
	Disparity  FieldStats  `json:"disparity"`
	Occluded   *float64    `json:"occluded,omitempty"` // Anteil verdeckter Pixel
	DurationMs int64       `json:"duration_ms"`
}

func (s FieldStats) String() string {
	return fmt.Sprintf("min=%.3f max=%.3f mean=%.3f", s.Min, s.Max, s.Mean)
}

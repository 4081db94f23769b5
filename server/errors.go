// MODUL: errors
// ZWECK: Abbildung der imp-Fehlerarten auf HTTP-Status und API-Codes
// INPUT: Fehler aus imgio, pyramid und stereo
// OUTPUT: JSON-formatierte Fehler-Responses {code, message}
// NEBENEFFEKTE: HTTP-Responses schreiben
// ABHAENGIGKEITEN: gin-gonic/gin, core
// HINWEISE: Die Fehlerart wird ueber core.KindOf bestimmt, Sentinels haben Vorrang
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/imgio"
)

// ============================================================================
// Server-Fehler
// ============================================================================

var (
	// ErrMissingImage wird geworfen wenn ein Bild im Multipart-Formular fehlt
	ErrMissingImage = errors.New("missing image")

	// ErrUploadTooLarge wird geworfen wenn der Upload IMP_MAX_UPLOAD_BYTES ueberschreitet
	ErrUploadTooLarge = errors.New("upload exceeds limit")

	// ErrInvalidRequest wird geworfen bei ungueltigen Formularfeldern
	ErrInvalidRequest = errors.New("invalid request")
)

// ============================================================================
// Strukturierter API-Fehler
// ============================================================================

// APIError repraesentiert einen strukturierten API-Fehler.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implementiert das error Interface.
func (e APIError) Error() string {
	return e.Message
}

// ============================================================================
// Fehler-Code Mapping
// ============================================================================

type errorClass struct {
	status int
	code   string
}

// sentinelClasses wird vor den Fehlerarten geprueft
var sentinelClasses = []struct {
	err   error
	class errorClass
}{
	{ErrMissingImage, errorClass{http.StatusBadRequest, "MISSING_IMAGE"}},
	{ErrUploadTooLarge, errorClass{http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE"}},
	{ErrInvalidRequest, errorClass{http.StatusBadRequest, "INVALID_REQUEST"}},
	{imgio.ErrImageTooLarge, errorClass{http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE"}},
}

var kindClasses = map[core.Kind]errorClass{
	core.KindConfig:            {http.StatusBadRequest, "CONFIG_ERROR"},
	core.KindUnsupportedFormat: {http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT"},
	core.KindGeometryMismatch:  {http.StatusUnprocessableEntity, "GEOMETRY_MISMATCH"},
	core.KindNotReady:          {http.StatusConflict, "NOT_READY"},
	core.KindNotSolved:         {http.StatusConflict, "NOT_SOLVED"},
	core.KindRange:             {http.StatusBadRequest, "OUT_OF_RANGE"},
	core.KindDevice:            {http.StatusInternalServerError, "DEVICE_ERROR"},
}

// classify gibt HTTP-Status und API-Code fuer einen Fehler zurueck.
func classify(err error) errorClass {
	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class
		}
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errorClass{http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE"}
	}
	if class, ok := kindClasses[core.KindOf(err)]; ok {
		return class
	}
	return errorClass{http.StatusInternalServerError, "INTERNAL_ERROR"}
}

// writeError schreibt einen Fehler als JSON und bricht die Handler-Kette ab.
func writeError(c *gin.Context, err error) {
	class := classify(err)
	c.AbortWithStatusJSON(class.status, APIError{Code: class.code, Message: err.Error()})
}

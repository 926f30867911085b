package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/shader"
)

// SampleResponse is the JSON body returned by SampleHandler.
type SampleResponse struct {
	X      float64      `json:"x"`
	Y      float64      `json:"y"`
	Z      float64      `json:"z"`
	W      float64      `json:"w"`
	Detail float64      `json:"detail"`
	Fac    float64      `json:"fac"`
	Color  shader.Color `json:"color"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SampleHandler evaluates a noise node at a query point:
// GET /sample?x=&y=&z=&w=&detail=. Missing coordinates are 0 and a missing
// detail means the node's own. The reported detail is the clamped octave
// count actually used.
type SampleHandler struct {
	node   shader.NoiseTexture
	logger *slog.Logger
}

// NewSampleHandler validates node and returns a handler for it.
func NewSampleHandler(node shader.NoiseTexture, logger *slog.Logger) (*SampleHandler, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	return &SampleHandler{node: node, logger: logger}, nil
}

func (h *SampleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		h.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	resp, err := h.sample(r.URL.Query())
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *SampleHandler) sample(q url.Values) (SampleResponse, error) {
	var p noise.Vec4
	coords := []struct {
		name string
		dst  *float64
	}{
		{"x", &p.X}, {"y", &p.Y}, {"z", &p.Z}, {"w", &p.W},
	}
	for _, c := range coords {
		v, err := queryFloat(q, c.name, 0)
		if err != nil {
			return SampleResponse{}, err
		}
		if math.IsInf(v, 0) {
			return SampleResponse{}, fmt.Errorf("%s must be finite", c.name)
		}
		*c.dst = v
	}

	node := h.node
	detail, err := queryFloat(q, "detail", node.Detail)
	if err != nil {
		return SampleResponse{}, err
	}
	node.Detail = noise.ClampDetail(detail)

	scaled := p.Scale(node.Scale)
	if !finite(scaled.X, scaled.Y, scaled.Z, scaled.W) {
		return SampleResponse{}, fmt.Errorf("coordinates overflow at scale %g", node.Scale)
	}

	out := node.Evaluate(p)
	if !finite(out.Fac, out.Color.R, out.Color.G, out.Color.B) {
		return SampleResponse{}, fmt.Errorf("noise is undefined at (%g, %g, %g, %g)", p.X, p.Y, p.Z, p.W)
	}
	return SampleResponse{
		X:      p.X,
		Y:      p.Y,
		Z:      p.Z,
		W:      p.W,
		Detail: node.Detail,
		Fac:    out.Fac,
		Color:  out.Color,
	}, nil
}

// queryFloat parses a float query parameter. NaN is rejected; infinities
// are left to the caller.
func queryFloat(q url.Values, name string, def float64) (float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && !isRangeError(err) {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return v, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func isRangeError(err error) bool {
	numErr, ok := err.(*strconv.NumError)
	return ok && numErr.Err == strconv.ErrRange
}

func (h *SampleHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.log().Error("failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: "failed to encode response"})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.log().Debug("failed to write response", "error", err)
	}
}

func (h *SampleHandler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type halfSource struct{}

func (halfSource) Unsigned(noise.Point) float64 { return 0.5 }
func (halfSource) Signed(noise.Point) float64   { return 0 }

func newSampleHandler(t *testing.T, src noise.Source) *SampleHandler {
	t.Helper()
	node := shader.DefaultNoiseTexture(src)
	node.Detail = 3
	h, err := NewSampleHandler(node, nil)
	require.NoError(t, err)
	return h
}

func TestSampleHandlerConstantSource(t *testing.T) {
	h := newSampleHandler(t, halfSource{})

	rec := get(t, h, "/sample?x=1.5&y=-2&z=0.25&w=9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp SampleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1.5, resp.X)
	assert.Equal(t, -2.0, resp.Y)
	assert.Equal(t, 0.25, resp.Z)
	assert.Equal(t, 9.0, resp.W)
	assert.Equal(t, 3.0, resp.Detail)
	assert.Equal(t, 0.5, resp.Fac)
	assert.Equal(t, shader.Color{R: 0.5, G: 0.5, B: 0.5}, resp.Color)
}

func TestSampleHandlerMatchesNode(t *testing.T) {
	src := noise.NewPerlin(99)
	h := newSampleHandler(t, src)

	rec := get(t, h, "/sample?x=0.3&y=0.7&detail=5.5")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SampleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	node := shader.DefaultNoiseTexture(src)
	node.Detail = 5.5
	want := node.Evaluate(noise.Vec4{X: 0.3, Y: 0.7})
	assert.Equal(t, want.Fac, resp.Fac)
	assert.Equal(t, want.Color, resp.Color)
	assert.Equal(t, 5.5, resp.Detail)
}

func TestSampleHandlerClampsDetail(t *testing.T) {
	h := newSampleHandler(t, noise.NewPerlin(1))

	tests := map[string]float64{
		"-4":     0,
		"99":     noise.MaxDetail,
		"1e400":  noise.MaxDetail,
		"-1e400": 0,
	}
	for raw, want := range tests {
		rec := get(t, h, "/sample?x=1&detail="+raw)
		require.Equal(t, http.StatusOK, rec.Code, raw)

		var resp SampleResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, want, resp.Detail, raw)
		assert.GreaterOrEqual(t, resp.Fac, 0.0)
		assert.LessOrEqual(t, resp.Fac, 1.0)
	}
}

func TestSampleHandlerRejectsBadInput(t *testing.T) {
	h := newSampleHandler(t, noise.NewPerlin(1))

	for _, target := range []string{
		"/sample?x=abc",
		"/sample?y=NaN",
		"/sample?z=1e400",
		"/sample?w=-Inf",
		"/sample?detail=NaN",
	} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.NotEmpty(t, body["error"], target)
	}
}

func TestSampleHandlerMethods(t *testing.T) {
	h := newSampleHandler(t, halfSource{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sample", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/sample", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNewSampleHandlerValidatesNode(t *testing.T) {
	_, err := NewSampleHandler(shader.NoiseTexture{}, nil)
	assert.ErrorIs(t, err, shader.ErrInvalidNode)
}

type nanSource struct{}

func (nanSource) Unsigned(noise.Point) float64 { return math.NaN() }
func (nanSource) Signed(noise.Point) float64   { return math.NaN() }

func TestSampleHandlerLargeCoordinates(t *testing.T) {
	h := newSampleHandler(t, noise.NewPerlin(1))

	for _, target := range []string{
		"/sample?x=1e19&y=1&detail=16",
		"/sample?x=1e300&y=1&detail=16",
		"/sample?x=-1e300&w=1e200",
	} {
		rec := get(t, h, target)
		require.Equal(t, http.StatusOK, rec.Code, target)

		var resp SampleResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), target)
		assert.GreaterOrEqual(t, resp.Fac, 0.0, target)
		assert.LessOrEqual(t, resp.Fac, 1.0, target)
	}
}

func TestSampleHandlerRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name   string
		src    noise.Source
		target string
	}{
		{"scale overflow", noise.NewPerlin(1), "/sample?x=1e308&y=1"},
		{"undefined noise", nanSource{}, "/sample?x=0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newSampleHandler(t, tt.src), tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

//go:build js && wasm

package main

import (
	"encoding/json"
	"fmt"
	"math"
	"syscall/js"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/shader"
)

// SampleRequest is the JSON argument of turbulenceSample. Zero values fall
// back to the node defaults (simplex, 3 dimensions, scale 5, detail 2).
type SampleRequest struct {
	Seed       int64    `json:"seed"`
	Dimensions int      `json:"dimensions"`
	Scale      float64  `json:"scale"`
	Detail     *float64 `json:"detail"`
	Distortion float64  `json:"distortion"`
	// Points are [x, y, z, w] tuples; missing trailing components are 0.
	Points [][]float64 `json:"points"`
}

// SampleResponse holds one output per requested point.
type SampleResponse struct {
	Detail  float64         `json:"detail"`
	Samples []shader.Output `json:"samples"`
}

func sample(reqJSON string) (SampleResponse, error) {
	var req SampleRequest
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		return SampleResponse{}, fmt.Errorf("failed to parse request: %w", err)
	}

	node := shader.DefaultNoiseTexture(noise.NewSimplex(req.Seed))
	if req.Dimensions != 0 {
		node.Dimensions = req.Dimensions
	}
	if req.Scale != 0 {
		node.Scale = req.Scale
	}
	if req.Detail != nil {
		node.Detail = *req.Detail
	}
	node.Distortion = req.Distortion
	if err := node.Validate(); err != nil {
		return SampleResponse{}, err
	}

	resp := SampleResponse{
		Detail:  noise.ClampDetail(node.Detail),
		Samples: make([]shader.Output, 0, len(req.Points)),
	}
	for i, pt := range req.Points {
		if len(pt) > 4 {
			return SampleResponse{}, fmt.Errorf("point %d has %d components, at most 4 allowed", i, len(pt))
		}
		var c [4]float64
		copy(c[:], pt)
		out := node.Evaluate(noise.Vec4{X: c[0], Y: c[1], Z: c[2], W: c[3]})
		if !finite(out.Fac, out.Color.R, out.Color.G, out.Color.B) {
			return SampleResponse{}, fmt.Errorf("noise is undefined at point %d", i)
		}
		resp.Samples = append(resp.Samples, out)
	}
	return resp, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// turbulenceSample(json) returns a JSON string with the samples or an error.
func turbulenceSample(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorJSON(fmt.Errorf("missing arguments"))
	}

	resp, err := sample(args[0].String())
	if err != nil {
		return errorJSON(err)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return errorJSON(err)
	}
	return string(out)
}

func errorJSON(err error) string {
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(out)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("turbulenceSample", js.FuncOf(turbulenceSample))
	js.Global().Set("turbulenceSources", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		names := noise.Sources()
		out := make([]interface{}, len(names))
		for i, n := range names {
			out[i] = n
		}
		return out
	}))

	fmt.Println("turbulence WASM module loaded")
	<-c
}

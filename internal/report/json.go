package report

import (
	"encoding/json"
	"io"
	"math"

	"github.com/fxnlabs/matbench/internal/bench"
)

// jsonNumber encodes non-finite values, which JSON cannot carry, as null.
type jsonNumber float64

func (n jsonNumber) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

type jsonSample struct {
	Row   int        `json:"row"`
	Col   int        `json:"col"`
	Value jsonNumber `json:"value"`
}

type jsonSize struct {
	Size            int               `json:"size"`
	CPU             []bench.CPUResult `json:"cpu"`
	GPUSeconds      jsonNumber        `json:"gpuSeconds"`
	GPUWallSeconds  jsonNumber        `json:"gpuWallSeconds"`
	Timing          string            `json:"timing"`
	GFLOPS          jsonNumber        `json:"gflops"`
	MAE             jsonNumber        `json:"mae"`
	Tolerance       jsonNumber        `json:"tolerance"`
	WithinTolerance bool              `json:"withinTolerance"`
	Freivalds       bool              `json:"freivalds"`
	Samples         []jsonSample      `json:"samples,omitempty"`
}

type jsonRun struct {
	Run
	Sizes []jsonSize `json:"sizes"`
}

// WriteJSON writes run as indented JSON. Non-finite values, such as the error
// of a device result containing NaN, are written as null.
func WriteJSON(w io.Writer, run Run) error {
	doc := jsonRun{Run: run, Sizes: make([]jsonSize, len(run.Sizes))}
	for i, s := range run.Sizes {
		size := jsonSize{
			Size:            s.Size,
			CPU:             s.CPU,
			GPUSeconds:      jsonNumber(s.GPUSeconds),
			GPUWallSeconds:  jsonNumber(s.GPUWallSeconds),
			Timing:          string(s.Timing),
			GFLOPS:          jsonNumber(s.GFLOPS),
			MAE:             jsonNumber(s.MAE),
			Tolerance:       jsonNumber(s.Tolerance),
			WithinTolerance: s.WithinTolerance,
			Freivalds:       s.Freivalds,
		}
		for _, sample := range s.Samples {
			size.Samples = append(size.Samples, jsonSample{Row: sample.Row, Col: sample.Col, Value: jsonNumber(sample.Value)})
		}
		doc.Sizes[i] = size
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

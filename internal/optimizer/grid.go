package optimizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// gridSchema rejects malformed grids at load time; a bad grid is a
// configuration error and must never surface mid-run.
const gridSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["parameters"],
  "properties": {
    "metric": {
      "type": "string",
      "enum": ["sharpe_ratio", "total_return", "profit_factor", "calmar_ratio", "win_rate"]
    },
    "in_sample_days": {"type": "integer", "minimum": 10},
    "out_sample_days": {"type": "integer", "minimum": 1},
    "parameters": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "array",
        "minItems": 1,
        "items": {"type": "number"}
      }
    }
  },
  "additionalProperties": false
}`

// Grid is a walk-forward search space: named parameter value lists whose
// Cartesian product is evaluated in-sample, plus windowing and the metric to
// rank combinations by.
type Grid struct {
	Metric        string               `json:"metric"`
	InSampleDays  int                  `json:"in_sample_days"`
	OutSampleDays int                  `json:"out_sample_days"`
	Parameters    map[string][]float64 `json:"parameters"`
}

func (g *Grid) applyDefaults() {
	if g.Metric == "" {
		g.Metric = "sharpe_ratio"
	}
	if g.InSampleDays <= 0 {
		g.InSampleDays = 252
	}
	if g.OutSampleDays <= 0 {
		g.OutSampleDays = 63
	}
}

// LoadGrid reads and schema-validates a parameter grid JSON file.
func LoadGrid(path string) (Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Grid{}, fmt.Errorf("read grid %s: %w", path, err)
	}
	return ParseGrid(data)
}

func ParseGrid(data []byte) (Grid, error) {
	schema, err := jsonschema.CompileString("grid.schema.json", gridSchema)
	if err != nil {
		return Grid{}, fmt.Errorf("compile grid schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Grid{}, fmt.Errorf("parse grid: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Grid{}, fmt.Errorf("invalid grid: %w", err)
	}

	var g Grid
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&g); err != nil {
		return Grid{}, fmt.Errorf("decode grid: %w", err)
	}
	g.applyDefaults()
	return g, nil
}

// Combinations expands the Cartesian product in deterministic order
// (parameter names sorted, values in declaration order).
func (g Grid) Combinations() []map[string]float64 {
	names := make([]string, 0, len(g.Parameters))
	for name := range g.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]float64{{}}
	for _, name := range names {
		var next []map[string]float64
		for _, combo := range combos {
			for _, value := range g.Parameters[name] {
				expanded := make(map[string]float64, len(combo)+1)
				for k, v := range combo {
					expanded[k] = v
				}
				expanded[name] = value
				next = append(next, expanded)
			}
		}
		combos = next
	}
	return combos
}

// Package output writes ranking results to files
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sawpanic/fundrank/internal/pipeline"
)

// Emitter writes results as CSV or JSON depending on the file extension
type Emitter struct {
	version string
}

func NewEmitter(version string) *Emitter {
	return &Emitter{version: version}
}

// Emit picks the writer from the extension of filePath: .csv or .json
func (e *Emitter) Emit(filePath string, res *pipeline.Result, plan pipeline.Plan) error {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		return e.EmitCSV(filePath, res, plan)
	case ".json":
		return e.EmitJSON(filePath, res, plan)
	default:
		return fmt.Errorf("unsupported output file %q: use .csv or .json", filePath)
	}
}

// EmitCSV writes one row per ranked fund. Each parameter gets a value and a
// rank column; unavailable values are written empty.
func (e *Emitter) EmitCSV(filePath string, res *pipeline.Result, plan pipeline.Plan) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"Rank", "Fund", "Risk", "Score"}
	for _, p := range plan.Params {
		header = append(header, string(p.Field), p.WeightKey+"Rank")
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, f := range res.Funds {
		record := []string{
			strconv.Itoa(f.Rank),
			f.Name,
			f.Risk.String(),
			strconv.FormatFloat(f.WeightedScore, 'f', -1, 64),
		}
		for _, p := range plan.Params {
			value := ""
			if f.IsAvailable(p.Field) {
				value = strconv.FormatFloat(f.Value(p.Field), 'f', -1, 64)
			}
			record = append(record, value, strconv.Itoa(f.ParamRanks[p.WeightKey]))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// EmitJSON writes the result together with the parameters it was ranked by
func (e *Emitter) EmitJSON(filePath string, res *pipeline.Result, plan pipeline.Plan) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	params := make([]map[string]interface{}, len(plan.Params))
	for i, p := range plan.Params {
		params[i] = map[string]interface{}{
			"field":      p.Field,
			"weight_key": p.WeightKey,
			"direction":  p.Direction.String(),
		}
	}

	doc := map[string]interface{}{
		"metadata": map[string]interface{}{
			"run_id":      res.RunID,
			"category":    res.Category,
			"funds":       len(res.Funds),
			"duration_ms": res.Duration.Milliseconds(),
			"version":     e.version,
		},
		"ranking": map[string]interface{}{
			"tie_mode":   plan.TieMode.String(),
			"parameters": params,
		},
		"result": res,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

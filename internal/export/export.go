// Package export writes TOC curves in formats a plotting collaborator can
// consume. Rendering itself stays outside this service.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/uplift-eval/ratekit/internal/api"
)

// WriteCurveCSV writes the TOC curve as (quantile, estimate, std_err) rows.
func WriteCurveCSV(w io.Writer, curve []api.TOCPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"quantile", "estimate", "std_err"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, p := range curve {
		row := []string{
			strconv.FormatFloat(p.Quantile, 'g', -1, 64),
			strconv.FormatFloat(p.Estimate, 'g', -1, 64),
			strconv.FormatFloat(p.StdErr, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCurveCSVFile writes the TOC curve to a CSV file.
func WriteCurveCSVFile(path string, curve []api.TOCPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteCurveCSV(f, curve); err != nil {
		return err
	}
	return f.Close()
}

// WriteResponseJSON writes the full estimate response as indented JSON.
func WriteResponseJSON(w io.Writer, resp *api.EstimateResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

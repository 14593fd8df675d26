package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/distml/trainwatch/internal/telemetry"
)

type reportOptions struct {
	input  string
	width  int
	format string
}

// newReportCmd creates the 'report' subcommand, an offline averaging pass
// over a records file. Useful for post-mortem analysis of exported runs.
func newReportCmd() *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Averages a records file offline",
		Long: `Reads worker progress records from a JSON file, computes the
cross-worker averaged curve, and writes it to stdout. The input is either a
bare JSON array of records or an object with a "records" field.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReportCommand(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "path to the records JSON file (required)")
	cmd.Flags().IntVarP(&opts.width, "width", "w", 2, "metrics vector width")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "output format: json or csv")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runReportCommand(cmd *cobra.Command, opts *reportOptions) error {
	records, err := readRecordsFile(opts.input)
	if err != nil {
		return err
	}

	averager, err := telemetry.NewAverager(telemetry.AveragerConfig{MetricsWidth: opts.width})
	if err != nil {
		return fmt.Errorf("invalid metrics width %d", opts.width)
	}
	curve, err := averager.Average(records)
	if err != nil {
		return fmt.Errorf("average records: %w", err)
	}

	out := cmd.OutOrStdout()
	switch opts.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(curve); err != nil {
			return fmt.Errorf("encode curve: %w", err)
		}
	case "csv":
		if err := writeCurveCSV(out, curve, opts.width); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}

	for _, anomaly := range curve.Anomalies {
		fmt.Fprintf(cmd.ErrOrStderr(), "anomaly: kind=%s worker=%d iteration=%d\n",
			anomaly.Kind, anomaly.WorkerID, anomaly.Iteration)
	}
	return nil
}

// readRecordsFile accepts either a bare array of records or an envelope
// object, matching what the records ingestion endpoint receives.
func readRecordsFile(path string) ([]telemetry.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}
	var records []telemetry.Record
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}
	var envelope struct {
		Records []telemetry.Record `json:"records"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse records file: %w", err)
	}
	return envelope.Records, nil
}

func writeCurveCSV(out io.Writer, curve telemetry.Curve, width int) error {
	w := csv.NewWriter(out)
	header := []string{"iteration", "contributors"}
	for i := 0; i < width; i++ {
		header = append(header, "metric_"+strconv.Itoa(i))
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, point := range curve.Points {
		row := []string{
			strconv.Itoa(point.Iteration),
			strconv.Itoa(point.Contributors),
		}
		for i := 0; i < width; i++ {
			if i < len(point.Metrics) {
				row = append(row, strconv.FormatFloat(point.Metrics[i], 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

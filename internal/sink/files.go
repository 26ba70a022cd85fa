// internal/sink/files.go
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tamzrod/labjack-streamer/internal/stream"
)

// Document is the msgpack file layout.
type Document struct {
	ID           string                   `msgpack:"id"`
	SerialNumber int                      `msgpack:"serial_number"`
	Channels     []string                 `msgpack:"channels"`
	SamplingRate float64                  `msgpack:"sampling_rate"`
	ScanRate     float64                  `msgpack:"scan_rate"`
	Started      time.Time                `msgpack:"started"`
	ElapsedS     float64                  `msgpack:"elapsed_s"`
	Skipped      int                      `msgpack:"skipped"`
	Partial      bool                     `msgpack:"partial"`
	Error        string                   `msgpack:"error,omitempty"`
	Records      map[string]stream.Record `msgpack:"records"`
}

// MsgpackFile writes each run's records to <dir>/<run id>.msgpack.
type MsgpackFile struct {
	dir string
}

func NewMsgpackFile(dir string) *MsgpackFile { return &MsgpackFile{dir: dir} }

func (m *MsgpackFile) Name() string { return "msgpack" }

func (m *MsgpackFile) Deliver(_ context.Context, run *Run) error {
	r := run.Result
	if r == nil {
		return nil
	}
	doc := Document{
		ID:           run.ID,
		SerialNumber: run.Device.SerialNumber,
		Channels:     r.Channels,
		SamplingRate: r.Plan.SamplingRate(),
		ScanRate:     r.ScanRate,
		Started:      r.Started,
		ElapsedS:     r.Elapsed.Seconds(),
		Skipped:      r.Skipped,
		Partial:      r.Partial,
		Records:      r.Records,
	}
	if run.Err != nil {
		doc.Error = run.Err.Error()
	}

	b, err := msgpack.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("msgpack: marshal: %w", err)
	}
	path, err := writeRunFile(m.dir, run.ID+".msgpack", b)
	if err != nil {
		return err
	}
	run.Files = append(run.Files, path)
	return nil
}

func (m *MsgpackFile) Close() error { return nil }

// ReadDocument decodes a file written by MsgpackFile.
func ReadDocument(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := msgpack.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("msgpack: decode %s: %w", path, err)
	}
	return &doc, nil
}

// CSVFile writes each run to <dir>/<run id>.csv: a t_s column followed by
// one column per channel, one row per scan. Skipped samples are NaN.
type CSVFile struct {
	dir string
}

func NewCSVFile(dir string) *CSVFile { return &CSVFile{dir: dir} }

func (c *CSVFile) Name() string { return "csv" }

func (c *CSVFile) Deliver(_ context.Context, run *Run) error {
	r := run.Result
	if r == nil || len(r.Channels) == 0 {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	path := filepath.Join(c.dir, run.ID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"t_s"}, r.Channels...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv: %w", err)
	}

	first := r.Records[r.Channels[0]]
	row := make([]string, len(header))
	for i := 0; i < first.Len(); i++ {
		row[0] = formatFloat(first.Elapsed[i])
		for j, ch := range r.Channels {
			rec := r.Records[ch]
			row[j+1] = ""
			if i < rec.Len() {
				row[j+1] = formatFloat(rec.Values[i])
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	run.Files = append(run.Files, path)
	return nil
}

func (c *CSVFile) Close() error { return nil }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeRunFile(dir, name string, b []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

package output

import (
	"encoding/csv"
	"os"
	"sync"

	"github.com/tkjaer/geoping/internal/shared"
)

// CSVOutput writes records as CSV with a header row to a file or stdout
type CSVOutput struct {
	mu       sync.Mutex
	file     *os.File
	w        *csv.Writer
	toStdout bool
}

func NewCSVOutput(filename string) (*CSVOutput, error) {
	if filename == "" {
		return &CSVOutput{file: os.Stdout, w: csv.NewWriter(os.Stdout), toStdout: true}, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &CSVOutput{file: f, w: csv.NewWriter(f)}, nil
}

// Write emits the header of the first record followed by one row per
// record. Nothing is written for an empty slice.
func (c *CSVOutput) Write(records []shared.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(records) == 0 {
		return nil
	}
	if err := c.w.Write(records[0].Header()); err != nil {
		return err
	}
	for _, r := range records {
		if err := c.w.Write(r.Row()); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVOutput) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.w.Flush()
	if c.toStdout {
		return c.w.Error()
	}
	return c.file.Close()
}

package output

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/tkjaer/geoping/internal/shared"
)

// JSONOutput writes records as one indented JSON array to a file or stdout
type JSONOutput struct {
	mu       sync.Mutex
	file     *os.File
	enc      *json.Encoder
	toStdout bool
}

func NewJSONOutput(filename string) (*JSONOutput, error) {
	if filename == "" {
		return newJSONOutput(os.Stdout, true), nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return newJSONOutput(f, false), nil
}

func newJSONOutput(f *os.File, toStdout bool) *JSONOutput {
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return &JSONOutput{file: f, enc: enc, toStdout: toStdout}
}

func (j *JSONOutput) Write(records []shared.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// An empty result is still a valid array.
	if records == nil {
		records = []shared.Record{}
	}
	return j.enc.Encode(records)
}

func (j *JSONOutput) Close() error {
	if j.toStdout {
		return nil
	}
	return j.file.Close()
}

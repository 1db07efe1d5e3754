package output

import (
	"errors"

	"github.com/tkjaer/geoping/internal/shared"
)

// Output interface for different output formats
type Output interface {
	Write(records []shared.Record) error
	Close() error
}

// OutputManager manages multiple outputs
type OutputManager struct {
	outputs []Output
}

func (om *OutputManager) Register(o Output) {
	om.outputs = append(om.outputs, o)
}

// Write hands records to every output. A failing output does not stop the
// others.
func (om *OutputManager) Write(records []shared.Record) error {
	var errs []error
	for _, o := range om.outputs {
		if err := o.Write(records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (om *OutputManager) Close() error {
	var errs []error
	for _, o := range om.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

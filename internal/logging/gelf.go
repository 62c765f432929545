package logging

import (
	"fmt"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGraylogWriter returns a GELF UDP writer for addr. Each Write becomes
// one GELF message tagged with facility.
func NewGraylogWriter(addr, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("graylog writer: %w", err)
	}
	w.Facility = facility
	return w, nil
}

package status

import (
	"fmt"
	"io"
)

// WriteStatus writes the status word, the names of the set bits and the
// latest measurements, one "\r\n"-prefixed line each.
func (r *Registry) WriteStatus(w io.Writer) error {
	st := r.Status()
	if _, err := fmt.Fprintf(w, "\r\nstatus: %s", st); err != nil {
		return err
	}
	for _, d := range r.AllDefinitions() {
		if st&d.Field == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\r\n%s", d.Name); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\r\ntemperature: %.2f\r\nvoltage: %.3f\r\ncurrent: %.3f",
		r.Temperature(), r.Voltage(), r.Current())
	return err
}

// WriteDefinitions writes one "bit name kind" line per known status bit.
func (r *Registry) WriteDefinitions(w io.Writer) error {
	for _, d := range r.AllDefinitions() {
		if _, err := fmt.Fprintf(w, "\r\n%d %s %s", d.Field.Bit(), d.Name, d.Kind); err != nil {
			return err
		}
	}
	return nil
}

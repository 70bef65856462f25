package trace

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
)

// Encoding selects the trace wire format.
type Encoding string

const (
	EncodingJSON   Encoding = "json"
	EncodingBinary Encoding = "binary"
)

// Encode writes the trace in the selected format.
func (tr *Trace) Encode(w io.Writer, enc Encoding) error {
	switch enc {
	case EncodingJSON:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(tr)
	case EncodingBinary:
		return gob.NewEncoder(w).Encode(tr)
	default:
		return fmt.Errorf("unknown trace encoding %q", enc)
	}
}

// Decode reads a trace in the selected format.
func Decode(r io.Reader, enc Encoding) (*Trace, error) {
	tr := &Trace{}
	switch enc {
	case EncodingJSON:
		if err := json.NewDecoder(r).Decode(tr); err != nil {
			return nil, fmt.Errorf("decode trace json: %w", err)
		}
	case EncodingBinary:
		if err := gob.NewDecoder(r).Decode(tr); err != nil {
			return nil, fmt.Errorf("decode trace gob: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown trace encoding %q", enc)
	}
	return tr, nil
}

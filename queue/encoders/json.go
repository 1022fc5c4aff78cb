package encoders

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// JSON encodes run events as JSON documents. Pre-encoded json.RawMessage bodies
// are validated and passed through.
type JSON struct {
	// Indent pretty-prints documents for queues that people read.
	Indent bool
}

func (e JSON) Encode(i any) ([]byte, error) {
	if raw, ok := i.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("raw body is not valid JSON")
		}
		return raw, nil
	}

	var (
		b   []byte
		err error
	)
	if e.Indent {
		b, err = json.MarshalIndent(i, "", "  ")
	} else {
		b, err = json.Marshal(i)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %T", i)
	}
	return b, nil
}

func (JSON) ContentType() string {
	return "application/json"
}

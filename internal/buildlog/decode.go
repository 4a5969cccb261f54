package buildlog

import (
	"encoding/json"
	"errors"
	"io"
	"iter"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/opencontainers/go-digest"

	celldockerrors "celldock/internal/errors"
)

// buildkitTraceID marks BuildKit trace records whose aux is opaque
const buildkitTraceID = "moby.buildkit.trace"

// auxImage is the aux payload announcing the built image
type auxImage struct {
	ID string `json:"ID"`
}

// Decode reads JSON log records from r and yields them as entries. The
// sequence stops after the first error. A record that is not valid JSON,
// one cut off by the end of the stream, or an image ID that is not a digest
// yields MALFORMED_BUILD_LOG; a failing reader yields BUILD_ENGINE_FAILURE.
func Decode(r io.Reader) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		dec := json.NewDecoder(r)
		for {
			var msg jsonmessage.JSONMessage
			err := dec.Decode(&msg)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Entry{}, classifyDecodeError(err))
				return
			}

			entry, err := toEntry(msg)
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

func classifyDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return celldockerrors.Wrap(celldockerrors.ErrorCodeMalformedBuildLog, err)
	}
	return celldockerrors.Wrap(celldockerrors.ErrorCodeBuildEngineFailure, err, "reading build log")
}

func toEntry(msg jsonmessage.JSONMessage) (Entry, error) {
	switch {
	case msg.Error != nil:
		return Error(msg.Error.Message), nil
	case msg.ErrorMessage != "":
		return Error(msg.ErrorMessage), nil
	case msg.Aux != nil:
		return auxEntry(msg)
	case msg.Stream != "":
		return Stream(msg.Stream), nil
	default:
		return Other(), nil
	}
}

func auxEntry(msg jsonmessage.JSONMessage) (Entry, error) {
	if msg.ID == buildkitTraceID {
		return Other(), nil
	}

	var aux auxImage
	if err := json.Unmarshal(*msg.Aux, &aux); err != nil {
		return Entry{}, celldockerrors.Wrap(celldockerrors.ErrorCodeMalformedBuildLog, err, "aux record")
	}
	if aux.ID == "" {
		return Other(), nil
	}

	id, err := digest.Parse(aux.ID)
	if err != nil {
		return Entry{}, celldockerrors.Wrap(celldockerrors.ErrorCodeMalformedBuildLog, err, "image id "+aux.ID)
	}
	return ImageID(id.String()), nil
}

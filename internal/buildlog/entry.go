// Package buildlog decodes the build engine's JSON log stream and relays it.
//
// The engine emits one JSON object per record. Records carrying "stream" are
// progress text, records carrying "aux" with an "ID" announce the resulting
// image, records carrying "error" report a failed instruction. Everything
// else (pull progress, status lines) is informational and ignored.
//
// Decode turns a raw stream into a sequence of entries; Drain consumes such a
// sequence exactly once, in order. Tests build sequences with Entries.
package buildlog

import "iter"

// Kind tags a log entry
type Kind int

const (
	KindOther Kind = iota
	KindStream
	KindImageID
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindImageID:
		return "image_id"
	case KindError:
		return "error"
	default:
		return "other"
	}
}

// Entry is one decoded build log record
type Entry struct {
	Kind    Kind
	Text    string // KindStream, KindError
	ImageID string // KindImageID
}

// Stream builds a progress text entry
func Stream(text string) Entry { return Entry{Kind: KindStream, Text: text} }

// ImageID builds an image identifier entry
func ImageID(id string) Entry { return Entry{Kind: KindImageID, ImageID: id} }

// Error builds an in-band engine error entry
func Error(message string) Entry { return Entry{Kind: KindError, Text: message} }

// Other builds an informational entry
func Other() Entry { return Entry{Kind: KindOther} }

// Entries yields a fixed list of entries, optionally ending with err
func Entries(err error, entries ...Entry) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
		if err != nil {
			yield(Entry{}, err)
		}
	}
}

// The .tpi save format: a JSON array of externally tagged entries,
//
//	[{"Phrase":"a cat"},{"Drawing":[137,80,78,71]}]
//
// with drawing bytes spelled out as numbers. This matches save files
// produced by earlier versions of the game byte-for-byte, so old games
// load unchanged. No header, version field, checksum, or compression.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const saveExtension = ".tpi"

type entryWire struct {
	Phrase  *string `json:"Phrase,omitempty"`
	Drawing []int   `json:"Drawing,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindPhrase:
		return json.Marshal(struct {
			Phrase string `json:"Phrase"`
		}{e.Phrase})
	case KindDrawing:
		nums := make([]int, len(e.Drawing))
		for i, b := range e.Drawing {
			nums[i] = int(b)
		}
		return json.Marshal(struct {
			Drawing []int `json:"Drawing"`
		}{nums})
	default:
		return nil, fmt.Errorf("unknown entry kind %q", e.Kind)
	}
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var wire entryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch {
	case wire.Phrase != nil && wire.Drawing == nil:
		*e = PhraseEntry(*wire.Phrase)
	case wire.Drawing != nil && wire.Phrase == nil:
		buf := make([]byte, len(wire.Drawing))
		for i, n := range wire.Drawing {
			if n < 0 || n > 255 {
				return fmt.Errorf("drawing byte %d out of range: %d", i, n)
			}
			buf[i] = byte(n)
		}
		*e = DrawingEntry(buf)
	default:
		return fmt.Errorf("entry must be tagged as exactly one of Phrase or Drawing")
	}

	return nil
}

func encodeEntries(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(entries)
}

func decodeEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedSave, err)
	}
	return entries, nil
}

// SaveGame writes the whole sequence to dir under the given name,
// appending the save extension when missing. An existing file at that
// path is overwritten unconditionally. Returns the final filename and
// the number of bytes written.
func SaveGame(dir, name string, entries []Entry) (string, int64, error) {
	filename, err := cleanSaveName(name)
	if err != nil {
		return "", 0, err
	}

	data, err := encodeEntries(entries)
	if err != nil {
		return "", 0, err
	}

	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return "", 0, fmt.Errorf("write save: %w", err)
	}

	return filename, int64(len(data)), nil
}

// LoadGame reads and decodes a save file from dir. The returned error
// wraps ErrMalformedSave when the file content does not decode, so
// callers can tell a bad file from a missing or unreadable one.
func LoadGame(dir, name string) ([]Entry, error) {
	filename, err := cleanSaveName(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return nil, fmt.Errorf("read save: %w", err)
	}

	return decodeEntries(data)
}

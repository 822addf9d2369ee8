// Package decoder extracts exact frames from an MP4 bitstream given a
// timestamp. It parses the container sample table once, then serves
// GetFrameAtTime requests with keyframe-aware seeking, a decode pipeline
// kept open across calls, and a small bounded frame cache.
package decoder

import (
	"encoding/binary"
	"fmt"
	"io"
)

// containerAtoms are the box types traversed recursively during the probe
var containerAtoms = map[string]bool{
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"dinf": true,
	"stbl": true,
	"edts": true,
}

// Atom is one MP4 box located in the source stream
type Atom struct {
	Offset   int64
	Size     int64
	Type     string
	Children []Atom
}

func (a Atom) String() string {
	return fmt.Sprintf("[%s] @ %d (size %d)", a.Type, a.Offset, a.Size)
}

// ParseAtoms walks the box structure of the whole stream without loading
// payloads.
func ParseAtoms(r io.ReadSeeker) ([]Atom, error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	return parseAtoms(r, 0, end)
}

func parseAtoms(r io.ReadSeeker, start, end int64) ([]Atom, error) {
	var atoms []Atom
	offset := start

	for offset+8 <= end {
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}

		header := make([]byte, 8)
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		size := int64(binary.BigEndian.Uint32(header[0:4]))
		typ := string(header[4:8])
		headerSize := int64(8)

		// Size 1 means a 64-bit size follows the type field.
		if size == 1 {
			extended := make([]byte, 8)
			if _, err := io.ReadFull(r, extended); err != nil {
				return nil, err
			}
			size = int64(binary.BigEndian.Uint64(extended))
			headerSize = 16
		}

		// Size 0 means the box runs to the end of the stream.
		if size == 0 {
			size = end - offset
		}
		if size < headerSize || offset+size > end {
			return nil, fmt.Errorf("malformed atom %q at offset %d (size %d)", typ, offset, size)
		}

		atom := Atom{Offset: offset, Size: size, Type: typ}

		if containerAtoms[typ] {
			children, err := parseAtoms(r, offset+headerSize, offset+size)
			if err != nil {
				return nil, err
			}
			atom.Children = children
		}

		atoms = append(atoms, atom)
		offset += size
	}

	return atoms, nil
}

// findChild returns the first direct child of the given type, or nil
func findChild(parent Atom, typ string) *Atom {
	for i := range parent.Children {
		if parent.Children[i].Type == typ {
			return &parent.Children[i]
		}
	}
	return nil
}

// readPayload loads a box payload (everything after the 8-byte header)
func readPayload(r io.ReadSeeker, atom Atom) ([]byte, error) {
	if _, err := r.Seek(atom.Offset+8, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, atom.Size-8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

package bytecode

// Serialization for compiled .lxc chunk files.
//
// Layout (every integer field, the magic included, is little-endian):
//
//	[Header]
//	  Magic (4 bytes): MagicNumber, so the file begins with the bytes "CXLG"
//	  Version (4 bytes): format version, currently 1
//	[Function]
//	  Arity (1 byte)
//	  Name: 1 byte flag; if 1, a length-prefixed string follows
//	  Constants: 4-byte count, then per constant a 1-byte tag and
//	    tag-specific payload
//	  Code: 4-byte count, then the raw bytes
//	  Lines: one 4-byte line number per code byte
//
// Constant tags:
//
//	0x01 = number (IEEE-754 bits, 8 bytes)
//	0x02 = string (4-byte length + bytes)
//	0x03 = bool (1 byte)
//	0x04 = nil
//	0x05 = function (nested Function structure)
//
// Strings are re-interned through the decoding heap, so a loaded chunk
// satisfies the same interning invariant as a freshly compiled one.

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// MagicNumber is the .lxc file signature: "GLXC" read as a
	// big-endian word. It is written little-endian like every other
	// field, so the bytes on disk are "CXLG".
	MagicNumber uint32 = 0x474C5843

	// FormatVersion is the current chunk format version.
	FormatVersion uint32 = 1
)

const (
	constTagNumber   byte = 0x01
	constTagString   byte = 0x02
	constTagBool     byte = 0x03
	constTagNil      byte = 0x04
	constTagFunction byte = 0x05
)

// Encode serializes the compiled function to w in .lxc format.
func Encode(fn *ObjFunction, w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, MagicNumber); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, FormatVersion); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writeFunction(w, fn); err != nil {
		return fmt.Errorf("write function: %w", err)
	}
	return nil
}

// Decode reads a .lxc file and reconstructs the compiled function.
// String constants are interned through heap, so the result can be run
// on any VM sharing that heap.
func Decode(r io.Reader, heap *Heap) (*ObjFunction, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if magic != MagicNumber {
		return nil, fmt.Errorf("not a compiled chunk file (magic 0x%08X)", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported chunk format version: %d (expected %d)", version, FormatVersion)
	}

	fn, err := readFunction(r, heap)
	if err != nil {
		return nil, fmt.Errorf("read function: %w", err)
	}
	return fn, nil
}

func writeFunction(w io.Writer, fn *ObjFunction) error {
	if err := binary.Write(w, binary.LittleEndian, uint8(fn.Arity)); err != nil {
		return err
	}

	hasName := uint8(0)
	if fn.Name != nil {
		hasName = 1
	}
	if err := binary.Write(w, binary.LittleEndian, hasName); err != nil {
		return err
	}
	if fn.Name != nil {
		if err := writeString(w, fn.Name.Chars); err != nil {
			return err
		}
	}

	if err := writeConstants(w, fn.Chunk.Constants); err != nil {
		return err
	}
	return writeCode(w, fn.Chunk)
}

func readFunction(r io.Reader, heap *Heap) (*ObjFunction, error) {
	var arity, hasName uint8
	if err := binary.Read(r, binary.LittleEndian, &arity); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &hasName); err != nil {
		return nil, err
	}

	fn := heap.NewFunction()
	fn.Arity = int(arity)

	if hasName == 1 {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		fn.Name = heap.CopyString(name)
	}

	constants, err := readConstants(r, heap)
	if err != nil {
		return nil, err
	}
	fn.Chunk.Constants = constants

	return fn, readCode(r, fn.Chunk)
}

func writeConstants(w io.Writer, constants []Value) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(constants))); err != nil {
		return err
	}

	for _, c := range constants {
		switch {
		case c.IsNumber():
			if err := binary.Write(w, binary.LittleEndian, constTagNumber); err != nil {
				return err
			}
			bits := math.Float64bits(c.AsNumber())
			if err := binary.Write(w, binary.LittleEndian, bits); err != nil {
				return err
			}
		case c.IsString():
			if err := binary.Write(w, binary.LittleEndian, constTagString); err != nil {
				return err
			}
			if err := writeString(w, c.AsString().Chars); err != nil {
				return err
			}
		case c.IsBool():
			if err := binary.Write(w, binary.LittleEndian, constTagBool); err != nil {
				return err
			}
			b := uint8(0)
			if c.AsBool() {
				b = 1
			}
			if err := binary.Write(w, binary.LittleEndian, b); err != nil {
				return err
			}
		case c.IsNil():
			if err := binary.Write(w, binary.LittleEndian, constTagNil); err != nil {
				return err
			}
		case c.IsFunction():
			if err := binary.Write(w, binary.LittleEndian, constTagFunction); err != nil {
				return err
			}
			if err := writeFunction(w, c.AsFunction()); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported constant type %v", c.Type)
		}
	}

	return nil
}

func readConstants(r io.Reader, heap *Heap) ([]Value, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	constants := make([]Value, 0, count)
	for i := uint32(0); i < count; i++ {
		var tag byte
		if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
			return nil, err
		}

		switch tag {
		case constTagNumber:
			var bits uint64
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return nil, err
			}
			constants = append(constants, NumberVal(math.Float64frombits(bits)))
		case constTagString:
			s, err := readString(r)
			if err != nil {
				return nil, err
			}
			constants = append(constants, ObjVal(heap.CopyString(s)))
		case constTagBool:
			var b uint8
			if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
				return nil, err
			}
			constants = append(constants, BoolVal(b == 1))
		case constTagNil:
			constants = append(constants, NilVal())
		case constTagFunction:
			fn, err := readFunction(r, heap)
			if err != nil {
				return nil, err
			}
			constants = append(constants, ObjVal(fn))
		default:
			return nil, fmt.Errorf("unknown constant tag 0x%02X", tag)
		}
	}

	return constants, nil
}

func writeCode(w io.Writer, chunk *Chunk) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(chunk.Code))); err != nil {
		return err
	}
	if _, err := w.Write(chunk.Code); err != nil {
		return err
	}
	for _, line := range chunk.Lines {
		if err := binary.Write(w, binary.LittleEndian, uint32(line)); err != nil {
			return err
		}
	}
	return nil
}

func readCode(r io.Reader, chunk *Chunk) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}

	chunk.Code = make([]byte, count)
	if _, err := io.ReadFull(r, chunk.Code); err != nil {
		return err
	}

	chunk.Lines = make([]int, count)
	for i := range chunk.Lines {
		var line uint32
		if err := binary.Read(r, binary.LittleEndian, &line); err != nil {
			return err
		}
		chunk.Lines[i] = int(line)
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

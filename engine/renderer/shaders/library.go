package shaders

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
)

// Library blobs start with this magic, followed by a little endian
// version, the export count, the exports and a CRC32 of everything before it.
var libraryMagic = [4]byte{'L', 'S', 'L', '1'}

const LibraryVersion uint16 = 1

var ErrInvalidLibrary = errors.New("invalid shader library")

type Kind uint8

const (
	KindRayGeneration Kind = iota + 1
	KindMiss
	KindClosestHit
	KindHitGroup
	KindCompute
)

func (k Kind) String() string {
	switch k {
	case KindRayGeneration:
		return "raygeneration"
	case KindMiss:
		return "miss"
	case KindClosestHit:
		return "closesthit"
	case KindHitGroup:
		return "hitgroup"
	case KindCompute:
		return "compute"
	}
	return "unknown"
}

// Export is one named entry of a library. Hit groups name their closest hit
// shader in Import.
type Export struct {
	Kind   Kind
	Name   string
	Import string
}

type Library struct {
	Exports []Export
}

func (l *Library) Find(name string) (Export, bool) {
	for _, e := range l.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

func writeString(w *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errors.Newf("name %q is longer than 255 bytes", s)
	}
	w.WriteByte(byte(len(s)))
	w.WriteString(s)
	return nil
}

func (l *Library) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(libraryMagic[:])
	_ = binary.Write(&buf, binary.LittleEndian, LibraryVersion)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(l.Exports)))
	for _, e := range l.Exports {
		buf.WriteByte(byte(e.Kind))
		if err := writeString(&buf, e.Name); err != nil {
			return nil, err
		}
		if err := writeString(&buf, e.Import); err != nil {
			return nil, err
		}
	}
	_ = binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(buf.Bytes()))
	return buf.Bytes(), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeLibrary(data []byte) (*Library, error) {
	if len(data) < 12 {
		return nil, errors.Wrapf(ErrInvalidLibrary, "blob of %d bytes is too short", len(data))
	}
	if !bytes.Equal(data[:4], libraryMagic[:]) {
		return nil, errors.Wrapf(ErrInvalidLibrary, "bad magic %q", data[:4])
	}
	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, errors.Wrap(ErrInvalidLibrary, "checksum mismatch")
	}

	r := bytes.NewReader(body[4:])
	var version, count uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, errors.Wrap(ErrInvalidLibrary, err.Error())
	}
	if version != LibraryVersion {
		return nil, errors.Wrapf(ErrInvalidLibrary, "unsupported version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.Wrap(ErrInvalidLibrary, err.Error())
	}

	lib := &Library{Exports: make([]Export, 0, count)}
	for i := uint16(0); i < count; i++ {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidLibrary, "export %d: %s", i, err)
		}
		name, err := readString(r)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidLibrary, "export %d name: %s", i, err)
		}
		imp, err := readString(r)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidLibrary, "export %d import: %s", i, err)
		}
		if _, dup := lib.Find(name); dup {
			return nil, errors.Wrapf(ErrInvalidLibrary, "duplicate export %q", name)
		}
		lib.Exports = append(lib.Exports, Export{Kind: Kind(kind), Name: name, Import: imp})
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(ErrInvalidLibrary, "%d trailing bytes", r.Len())
	}
	return lib, nil
}

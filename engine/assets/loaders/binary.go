package loaders

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

var ErrInvalidSPIRV = errors.New("invalid SPIR-V module")

// Blob is a file read from disk, plus its decoded form when the loader
// knows one.
type Blob struct {
	Path string
	Data []byte
	// SPIR-V words, little endian.
	Words []uint32
	// Decoded shader library for the soft backend.
	Library *shaders.Library
}

type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string) (*Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Blob{Path: path, Data: data}, nil
}

type SPIRVLoader struct{}

func (sl *SPIRVLoader) Load(path string) (*Blob, error) {
	blob, err := (&BinaryLoader{}).Load(path)
	if err != nil {
		return nil, err
	}
	if blob.Words, err = BytesToBytecode(blob.Data); err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return blob, nil
}

// BytesToBytecode reinterprets a SPIR-V file as its 32 bit words.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) < 20 || len(b)%4 != 0 {
		return nil, errors.Wrapf(ErrInvalidSPIRV, "size %d is not a whole number of words", len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if byteCode[0] != SPIRVMagic {
		return nil, errors.Wrapf(ErrInvalidSPIRV, "bad magic 0x%08x", byteCode[0])
	}
	return byteCode, nil
}

package loaders

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
)

// LibraryLoader reads a soft backend shader library and checks it decodes.
type LibraryLoader struct{}

func (ll *LibraryLoader) Load(path string) (*Blob, error) {
	blob, err := (&BinaryLoader{}).Load(path)
	if err != nil {
		return nil, err
	}
	if blob.Library, err = shaders.DecodeLibrary(blob.Data); err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return blob, nil
}

package cmd

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/urfave/cli"
)

var LibraryFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "out, o",
		Value: "assets/shaders/scene.lsl",
		Usage: "path of the library blob",
	},
}

// Library writes the soft backend's shader library for the demo scene.
func Library(ctx *cli.Context) error {
	blob, err := shaders.SceneLibrary().Encode()
	if err != nil {
		return err
	}
	path := ctx.String("out")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	core.LogInfo("shader library with %d exports written to %s", len(shaders.SceneLibrary().Exports), path)
	return nil
}

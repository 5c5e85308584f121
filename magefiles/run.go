//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Renders a few frames offscreen with the soft backend into frames/.
func (Run) Headless() error {
	mg.Deps(Build.Library)
	fmt.Println("Rendering headless...")
	_, err := executeCmd("go", withArgs("run", ".", "render", "--config", "assets/lumen.toml", "--frames", "120", "--every", "30"), withStream())
	return err
}

// Opens a window on the backend named by LUMEN_BACKEND, soft by default.
func (Run) Window() error {
	mg.Deps(Build.Shaders, Build.Library)
	backend := envOr("LUMEN_BACKEND", "soft")
	fmt.Printf("Running %s backend in a window...\n", backend)
	_, err := executeCmd("go", withArgs("run", ".", "window", "--config", "assets/lumen.toml", "--backend", backend, "--watch"), withEnv("LUMEN_BACKEND", backend), withStream())
	return err
}

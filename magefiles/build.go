//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

const (
	computeShader = "assets/shaders/raytrace.comp"
	sceneLibrary  = "assets/shaders/scene.lsl"
	binary        = "bin/lumen"
)

type Build mg.Namespace

// Compiles the Vulkan compute shader to SPIR-V.
func (Build) Shaders() error {
	_, err := executeCmd("glslc", withArgs("--target-env=vulkan1.0", "-O", computeShader, "-o", computeShader+".spv"), withStream())
	return err
}

// Writes the soft backend shader library.
func (Build) Library() error {
	_, err := executeCmd("go", withArgs("run", ".", "library", "--out", sceneLibrary), withStream())
	return err
}

// Builds the lumen binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders, Build.Library)
	_, err := executeCmd("go", withArgs("build", "-o", binary, "."), withStream())
	return err
}

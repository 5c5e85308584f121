//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}

// Runs the tests that need neither a window nor a Vulkan driver, with cgo off.
func (Test) Headless() error {
	_, err := executeCmd("go", withArgs("test", "-count=1",
		"./engine/math/...",
		"./engine/containers/...",
		"./engine/config/...",
		"./engine/core/...",
		"./engine/assets/...",
		"./engine/scene/...",
		"./engine/renderer/accel/...",
		"./engine/renderer/metadata/...",
		"./engine/renderer/shaders/...",
		"./engine/renderer/soft/...",
	), withEnv("CGO_ENABLED", "0"), withStream())
	return err
}

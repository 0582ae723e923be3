//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// The demo programs and the stages each one links. Compiled output lands
// next to the sources as <name>.<stage>.spv, which is where the renderer
// looks for modules at program build time.
var shaderPrograms = map[string][]string{
	"flat":      {"vert", "frag"},
	"textured":  {"vert", "frag"},
	"texelfx":   {"vert", "frag"},
	"empty":     {"vert", "frag"},
	"particles": {"comp"},
}

// Compiles every demo shader with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and then the binary.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "vitro", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs go vet and the test suite.
func (Build) Test() error {
	if _, err := executeCmd("go", withArgs("vet", "./..."), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	for name, stages := range shaderPrograms {
		for _, stage := range stages {
			src := fmt.Sprintf("shaders/%s.%s", name, stage)
			out := fmt.Sprintf("shaders/%s.%s.spv", name, stage)
			if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

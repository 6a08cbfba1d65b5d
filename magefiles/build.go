//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every GLSL stage under shaders/ to SPIR-V next to its source.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the demo binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "lumen", "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	var sources []string
	for _, pattern := range []string{"shaders/*.vert", "shaders/*.frag"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources under shaders/")
	}
	for _, src := range sources {
		if _, err := executeCmd("glslc", withArgs(src, "-o", src+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}

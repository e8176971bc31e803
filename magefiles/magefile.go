//go:build mage

// Package main provides build targets for the blockshift project using Mage.
//
// Usage:
//
//	mage build          Compile blockshift binary to bin/
//	mage test:all       Run all tests
//	mage test:unit      Run tests without a Postgres server
//	mage test:postgres  Run the Postgres store tests against $BLOCKSHIFT_TEST_DATABASE_URL
//	mage lint           Run golangci-lint
//	mage demo           Build, then migrate and roll back a demo database in .demo/
//	mage clean          Remove build artifacts
//	mage install        Install blockshift to GOPATH/bin
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "blockshift"
	binaryDir  = "bin"
	cmdDir     = "./cmd/blockshift"
	demoDir    = ".demo"
	versionVar = "github.com/mesh-intelligence/blockshift/internal/cli.Version"
)

// version is the tag of HEAD, or "dev".
func version() string {
	v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || v == "" {
		return "dev"
	}
	return v
}

// Build compiles the blockshift binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	ldflags := fmt.Sprintf("-X %s=%s", versionVar, version())
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags, "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test groups test targets.
type Test mg.Namespace

// All runs all tests. Postgres tests skip unless BLOCKSHIFT_TEST_DATABASE_URL is set.
func (Test) All() error {
	return sh.RunV(binGo, "test", "./...")
}

// Unit runs all tests with the Postgres tests forced off.
func (Test) Unit() error {
	return sh.RunWithV(map[string]string{"BLOCKSHIFT_TEST_DATABASE_URL": ""}, binGo, "test", "./...")
}

// Postgres runs the Postgres store tests.
func (Test) Postgres() error {
	if os.Getenv("BLOCKSHIFT_TEST_DATABASE_URL") == "" {
		return fmt.Errorf("BLOCKSHIFT_TEST_DATABASE_URL is not set")
	}
	return sh.RunV(binGo, "test", "-v", "./internal/postgres/...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Demo seeds a demo database under .demo/, migrates it forwards and rolls
// the last migration back.
func Demo() error {
	mg.Deps(Build)
	bin := filepath.Join(binaryDir, binaryName)
	dirs := []string{"--config-dir", filepath.Join(demoDir, "config"), "--data-dir", filepath.Join(demoDir, "data")}
	steps := [][]string{
		{"init", "--demo"},
		{"migrate"},
		{"list"},
		{"rollback", "articles.0090_publication_date_charblock"},
	}
	for _, step := range steps {
		if err := sh.RunV(bin, append(dirs, step...)...); err != nil {
			return err
		}
	}
	return nil
}

// Clean removes build artifacts and the demo directory.
func Clean() error {
	for _, dir := range []string{binaryDir, demoDir} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/nixpig/buildworker/internal/compiler"
)

// driverScript runs the driver.sh found in the working directory, i.e. the
// project directory. Tests write a fresh driver.sh per project instead of a
// fresh executable, which avoids ETXTBSY when parallel tests fork while a
// script is still open for writing.
const driverScript = "#!/bin/sh\nexec /bin/sh ./driver.sh \"$@\"\n"

// InstallFakeDriver writes the stand-in driver executable. Call it from
// TestMain, before any test runs in parallel.
func InstallFakeDriver() (path string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "fake-igor-*")
	if err != nil {
		return "", nil, fmt.Errorf("make fake driver dir: %w", err)
	}

	path = filepath.Join(dir, "igor")

	if err := os.WriteFile(path, []byte(driverScript), 0755); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("write fake driver: %w", err)
	}

	return path, func() { os.RemoveAll(dir) }, nil
}

// FakeBuild creates a project directory whose driver.sh runs body, and a
// Runtime that uses the driver at driverPath. body receives the driver
// flags as "$@".
func FakeBuild(
	t testing.TB,
	driverPath string,
	body string,
) (compiler.Project, compiler.Runtime) {
	t.Helper()

	dir := t.TempDir()

	if err := os.WriteFile(
		filepath.Join(dir, "driver.sh"),
		[]byte(body+"\n"),
		0644,
	); err != nil {
		t.Fatalf("write driver.sh: '%v'", err)
	}

	project := compiler.Project{Path: filepath.Join(dir, "Test.yyp")}

	rt := compiler.Runtime{
		Path:    filepath.Dir(driverPath),
		Version: "2024.8.0",
		Driver:  driverPath,
	}

	return project, rt
}

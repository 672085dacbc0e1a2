// Package compiler describes builds for the external compiler driver and
// turns them into the driver's command line.
package compiler

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Verb is the build action requested from the driver.
type Verb string

const (
	VerbRun     Verb = "Run"
	VerbPackage Verb = "Package"
	VerbClean   Verb = "Clean"

	// VerbPackageZip is the zipped-package variant of VerbPackage. It's only
	// produced by BuildFlags rewriting VerbPackage for desktop platforms.
	VerbPackageZip Verb = "PackageZip"
)

// Platform is the build target. The value is the platform command name
// understood by the driver.
type Platform string

const (
	PlatformWindows Platform = "Windows"
	PlatformMac     Platform = "Mac"
	PlatformLinux   Platform = "Linux"
	PlatformHTML5   Platform = "HTML5"
	PlatformOperaGX Platform = "OperaGX"
)

var outputExtensions = map[Platform]string{
	PlatformWindows: ".win",
	PlatformMac:     ".zip",
	PlatformLinux:   ".zip",
	PlatformHTML5:   ".zip",
	PlatformOperaGX: ".zip",
}

// OutputExtension returns the extension of the build artifact produced for
// the platform, or an empty string for platforms the driver names but this
// package doesn't know about.
func (p Platform) OutputExtension() string {
	return outputExtensions[p]
}

// CommandName returns the platform command name passed to the driver.
func (p Platform) CommandName() string {
	return string(p)
}

// RunnerMode selects the code-generation backend used by the driver.
type RunnerMode string

const (
	RunnerVM  RunnerMode = "VM"
	RunnerYYC RunnerMode = "YYC"
)

// JobConfiguration is the caller-supplied description of a single build.
// Only Verb may change after construction, and only through BuildFlags.
type JobConfiguration struct {
	Verb       Verb
	BuildDir   string
	Platform   Platform
	Runner     RunnerMode
	Threads    int
	ConfigName string
}

// Project references the project file being built.
type Project struct {
	Path   string
	Name   string
	Format string
}

// DisplayName returns Name, falling back to the project file name without
// its extension.
func (p Project) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}

	base := filepath.Base(p.Path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Dir returns the project's root directory, used as the working directory
// of the driver process.
func (p Project) Dir() string {
	return filepath.Dir(p.Path)
}

// Runtime is an installed build toolchain.
type Runtime struct {
	Path    string
	Version string

	// Driver overrides the driver executable resolved from Path.
	Driver string

	// ProjectFormat is the project format the runtime builds. Empty means
	// any.
	ProjectFormat string
}

// DriverPath returns the driver executable for the runtime.
func (r Runtime) DriverPath() string {
	if r.Driver != "" {
		return r.Driver
	}

	return driverPath(r.Path, runtime.GOOS, runtime.GOARCH)
}

func driverPath(root, goos, goarch string) string {
	osDir := goos
	exe := "Igor"

	switch goos {
	case "windows":
		exe += ".exe"
	case "darwin":
		osDir = "osx"
	}

	arch := "x64"
	if goarch == "arm64" {
		arch = "arm64"
	}

	return filepath.Join(root, "bin", "igor", osDir, arch, exe)
}

// SupportsProject reports whether the runtime can build the project's
// format. Unknown formats on either side are assumed compatible.
func (r Runtime) SupportsProject(p Project) bool {
	if r.ProjectFormat == "" || p.Format == "" {
		return true
	}

	return r.ProjectFormat == p.Format
}

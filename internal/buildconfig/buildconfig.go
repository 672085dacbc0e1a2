// Package buildconfig loads build presets: the project, the runtime that
// builds it and named targets, each of which becomes a job configuration.
package buildconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/nixpig/buildworker/internal/compiler"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRunner     = compiler.RunnerVM
	DefaultConfigName = "Default"
	DefaultThreads    = 8
)

var ErrTargetNotFound = errors.New("target not found")

// File is the contents of a preset file.
type File struct {
	Project  ProjectConfig     `yaml:"project"`
	Runtime  RuntimeConfig     `yaml:"runtime"`
	UserPath string            `yaml:"user_path"`
	Targets  map[string]Target `yaml:"targets"`
}

type ProjectConfig struct {
	Path   string `yaml:"path"`
	Name   string `yaml:"name"`
	Format string `yaml:"format"`
}

type RuntimeConfig struct {
	Path          string `yaml:"path"`
	Version       string `yaml:"version"`
	Driver        string `yaml:"driver"`
	ProjectFormat string `yaml:"project_format"`
}

// Target is a named build of the project.
type Target struct {
	Verb     compiler.Verb       `yaml:"verb"`
	Platform compiler.Platform   `yaml:"platform"`
	Runner   compiler.RunnerMode `yaml:"runner"`
	BuildDir string              `yaml:"build_dir"`
	Threads  int                 `yaml:"threads"`
	Config   string              `yaml:"config"`
}

// Load reads the preset file at path. Relative paths in the file are
// resolved against the directory the file is in.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset file: %w", err)
	}

	f, err := decode(data)
	if err != nil {
		return nil, err
	}

	f.resolve(filepath.Dir(path))

	if err := f.validate(); err != nil {
		return nil, err
	}

	return f, nil
}

// Parse decodes a preset file, applies defaults and validates it. Paths are
// used as they are.
func Parse(data []byte) (*File, error) {
	f, err := decode(data)
	if err != nil {
		return nil, err
	}

	if err := f.validate(); err != nil {
		return nil, err
	}

	return f, nil
}

func decode(data []byte) (*File, error) {
	var f File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	// An empty document decodes to io.EOF; validation reports what's missing.
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode preset file: %w", err)
	}

	f.applyDefaults()

	return &f, nil
}

func (f *File) applyDefaults() {
	for name, t := range f.Targets {
		if t.Runner == "" {
			t.Runner = DefaultRunner
		}

		if t.Config == "" {
			t.Config = DefaultConfigName
		}

		if t.Threads == 0 {
			t.Threads = DefaultThreads
		}

		f.Targets[name] = t
	}
}

func (f *File) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}

		return filepath.Join(dir, p)
	}

	f.Project.Path = abs(f.Project.Path)
	f.Runtime.Path = abs(f.Runtime.Path)
	f.Runtime.Driver = abs(f.Runtime.Driver)
	f.UserPath = abs(f.UserPath)

	for name, t := range f.Targets {
		t.BuildDir = abs(t.BuildDir)
		f.Targets[name] = t
	}
}

func (f *File) validate() error {
	var errs []error

	if f.Project.Path == "" {
		errs = append(errs, errors.New("project path is required"))
	}

	if f.Runtime.Path == "" {
		errs = append(errs, errors.New("runtime path is required"))
	}

	for _, name := range f.TargetNames() {
		t := f.Targets[name]

		if t.BuildDir == "" {
			errs = append(errs, fmt.Errorf("target '%s': build_dir is required", name))
		}

		if t.Runner != compiler.RunnerVM && t.Runner != compiler.RunnerYYC {
			errs = append(errs, fmt.Errorf(
				"target '%s': runner must be %s or %s: got '%s'",
				name,
				compiler.RunnerVM,
				compiler.RunnerYYC,
				t.Runner,
			))
		}

		if t.Threads < 0 {
			errs = append(errs, fmt.Errorf("target '%s': threads cannot be negative", name))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid preset file: %w", err)
	}

	return nil
}

// ProjectRef returns the project the presets build.
func (f *File) ProjectRef() compiler.Project {
	return compiler.Project{
		Path:   f.Project.Path,
		Name:   f.Project.Name,
		Format: f.Project.Format,
	}
}

// RuntimeRef returns the runtime the presets build with.
func (f *File) RuntimeRef() compiler.Runtime {
	return compiler.Runtime{
		Path:          f.Runtime.Path,
		Version:       f.Runtime.Version,
		Driver:        f.Runtime.Driver,
		ProjectFormat: f.Runtime.ProjectFormat,
	}
}

// TargetNames returns the names of the targets in lexical order.
func (f *File) TargetNames() []string {
	return slices.Sorted(maps.Keys(f.Targets))
}

// Configuration returns a new job configuration for the named target, or
// an error wrapping ErrTargetNotFound.
func (f *File) Configuration(name string) (*compiler.JobConfiguration, error) {
	t, ok := f.Targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrTargetNotFound, name)
	}

	return &compiler.JobConfiguration{
		Verb:       t.Verb,
		BuildDir:   t.BuildDir,
		Platform:   t.Platform,
		Runner:     t.Runner,
		Threads:    t.Threads,
		ConfigName: t.Config,
	}, nil
}

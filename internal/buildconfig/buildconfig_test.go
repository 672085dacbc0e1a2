package buildconfig_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nixpig/buildworker/internal/buildconfig"
	"github.com/nixpig/buildworker/internal/compiler"
)

const presets = `
project:
  path: ./MyGame/MyGame.yyp
  format: v2
runtime:
  path: /opt/gamemaker/runtime-2024.8.0
  version: 2024.8.0
  project_format: v2
user_path: /home/me/.config/GameMakerStudio2/me_123
targets:
  windows:
    verb: Package
    platform: Windows
    runner: YYC
    build_dir: build/windows
    threads: 4
    config: Release
  web:
    verb: Run
    platform: HTML5
    build_dir: /tmp/build/web
`

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "buildworker.yaml")

	if err := os.WriteFile(path, []byte(presets), 0644); err != nil {
		t.Fatalf("write preset file: '%v'", err)
	}

	f, err := buildconfig.Load(path)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	wantProject := compiler.Project{
		Path:   filepath.Join(dir, "MyGame", "MyGame.yyp"),
		Format: "v2",
	}

	if diff := cmp.Diff(wantProject, f.ProjectRef()); diff != "" {
		t.Errorf("expected project (-want +got):\n%s", diff)
	}

	wantRuntime := compiler.Runtime{
		Path:          "/opt/gamemaker/runtime-2024.8.0",
		Version:       "2024.8.0",
		ProjectFormat: "v2",
	}

	if diff := cmp.Diff(wantRuntime, f.RuntimeRef()); diff != "" {
		t.Errorf("expected runtime (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"web", "windows"}, f.TargetNames()); diff != "" {
		t.Errorf("expected target names (-want +got):\n%s", diff)
	}

	scenarios := map[string]struct {
		target string
		want   *compiler.JobConfiguration
	}{
		"Explicit values": {
			target: "windows",
			want: &compiler.JobConfiguration{
				Verb:       compiler.VerbPackage,
				BuildDir:   filepath.Join(dir, "build", "windows"),
				Platform:   compiler.PlatformWindows,
				Runner:     compiler.RunnerYYC,
				Threads:    4,
				ConfigName: "Release",
			},
		},
		"Defaults": {
			target: "web",
			want: &compiler.JobConfiguration{
				Verb:       compiler.VerbRun,
				BuildDir:   "/tmp/build/web",
				Platform:   compiler.PlatformHTML5,
				Runner:     buildconfig.DefaultRunner,
				Threads:    buildconfig.DefaultThreads,
				ConfigName: buildconfig.DefaultConfigName,
			},
		},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			got, err := f.Configuration(config.target)
			if err != nil {
				t.Fatalf("expected not to receive error: got '%v'", err)
			}

			if diff := cmp.Diff(config.want, got); diff != "" {
				t.Errorf("expected configuration (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("Unknown target", func(t *testing.T) {
		t.Parallel()

		if _, err := f.Configuration("switch"); !errors.Is(err, buildconfig.ErrTargetNotFound) {
			t.Errorf("expected ErrTargetNotFound: got '%v'", err)
		}
	})

	t.Run("Configurations are independent", func(t *testing.T) {
		t.Parallel()

		first, _ := f.Configuration("windows")
		first.Verb = compiler.VerbPackageZip

		second, _ := f.Configuration("windows")
		if second.Verb != compiler.VerbPackage {
			t.Errorf(
				"expected verb: got '%s', want '%s'",
				second.Verb,
				compiler.VerbPackage,
			)
		}
	})
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := buildconfig.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist: got '%v'", err)
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		data string
		want []string
	}{
		"Empty document": {
			data: "",
			want: []string{"project path is required", "runtime path is required"},
		},
		"Missing build dir": {
			data: "project: {path: a.yyp}\nruntime: {path: /rt}\ntargets:\n  win: {verb: Run, platform: Windows}\n",
			want: []string{"target 'win': build_dir is required"},
		},
		"Invalid runner": {
			data: "project: {path: a.yyp}\nruntime: {path: /rt}\ntargets:\n  win: {verb: Run, platform: Windows, build_dir: /b, runner: JIT}\n",
			want: []string{"target 'win': runner must be VM or YYC: got 'JIT'"},
		},
		"Negative threads": {
			data: "project: {path: a.yyp}\nruntime: {path: /rt}\ntargets:\n  win: {build_dir: /b, threads: -1}\n",
			want: []string{"threads cannot be negative"},
		},
		"Unknown field": {
			data: "project: {path: a.yyp, colour: blue}\nruntime: {path: /rt}\n",
			want: []string{"field colour not found"},
		},
		"Malformed yaml": {
			data: "project: [",
			want: []string{"decode preset file"},
		},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			_, err := buildconfig.Parse([]byte(config.data))
			if err == nil {
				t.Fatalf("expected to receive error")
			}

			for _, want := range config.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error to contain '%s': got '%v'", want, err)
				}
			}
		})
	}
}

package compiler

import (
	"fmt"
	"slices"
)

// flagSeparator separates driver options from the platform command.
const flagSeparator = "--"

// UnsupportedVerbError is returned by BuildFlags for a verb the driver
// can't be asked to perform.
type UnsupportedVerbError struct {
	Verb Verb
}

func (e UnsupportedVerbError) Error() string {
	return fmt.Sprintf("unsupported verb '%s'", e.Verb)
}

// SupportedVerbs returns the verbs accepted by BuildFlags.
func SupportedVerbs() []Verb {
	return []Verb{VerbRun, VerbPackage, VerbClean}
}

// BuildFlags returns the ordered driver arguments for building project
// with cfg.
//
// Requesting VerbPackage for Windows or Mac rewrites cfg.Verb to
// VerbPackageZip, visible to the caller. Any verb outside SupportedVerbs
// returns an UnsupportedVerbError and no arguments.
//
// Paths are joined with '/' regardless of host OS; the driver expects
// that form.
func BuildFlags(
	project Project,
	runtimePath string,
	userPath string,
	cfg *JobConfiguration,
) ([]string, error) {
	switch cfg.Verb {
	case VerbPackage:
		if slices.Contains(
			[]Platform{PlatformWindows, PlatformMac},
			cfg.Platform,
		) {
			cfg.Verb = VerbPackageZip
		}
	case VerbRun, VerbClean:
	default:
		return nil, UnsupportedVerbError{Verb: cfg.Verb}
	}

	args := []string{
		"/project=" + project.Path,
		"/config=" + cfg.ConfigName,
		"/rp=" + runtimePath,
		"/runtime=" + string(cfg.Runner),
		"/v",
		"/cache=" + cfg.BuildDir + "/cache",
		"/of=" + cfg.BuildDir + "/output/" +
			project.DisplayName() + cfg.Platform.OutputExtension(),
	}

	if userPath != "" {
		args = append(args, "/uf="+userPath)
	}

	// The incremental cache produces stale output under YYC.
	if cfg.Runner == RunnerYYC {
		args = append(args, "/ic")
	}

	return append(
		args,
		flagSeparator,
		cfg.Platform.CommandName(),
		string(cfg.Verb),
	), nil
}

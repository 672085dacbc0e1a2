// Package api describes the build service spoken between buildctl and
// buildserver. Messages on the wire are protobuf well-known types; the
// typed structs in this package convert to and from them.
package api

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// RunBuildRequest asks the server to run one of its preset targets. Verb,
// when set, replaces the target's verb.
type RunBuildRequest struct {
	Target string
	Verb   string
}

// BuildRef identifies a build by id.
type BuildRef struct {
	ID string
}

// BuildStatus describes a build and, once it stopped, its outcome.
type BuildStatus struct {
	ID            string    `json:"id"`
	Project       string    `json:"project"`
	Target        string    `json:"target,omitempty"`
	Verb          string    `json:"verb"`
	Platform      string    `json:"platform"`
	Runner        string    `json:"runner"`
	State         string    `json:"state"`
	Display       string    `json:"display,omitempty"`
	StoppedByUser bool      `json:"stopped_by_user"`
	ExitCode      int       `json:"exit_code"`
	StartedAt     time.Time `json:"started_at"`
	Summary       *Summary  `json:"summary,omitempty"`
}

// Summary is the parsed output of a stopped build.
type Summary struct {
	Lines    int           `json:"lines"`
	Errors   []string      `json:"errors"`
	Warnings []string      `json:"warnings"`
	Outcome  string        `json:"outcome"`
	Elapsed  time.Duration `json:"elapsed"`
}

func (r *RunBuildRequest) ToProto() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"target": r.Target,
		"verb":   r.Verb,
	})
}

func RunBuildRequestFromProto(s *structpb.Struct) (*RunBuildRequest, error) {
	f := fields{m: s.AsMap()}

	r := &RunBuildRequest{
		Target: f.str("target"),
		Verb:   f.str("verb"),
	}

	if f.err != nil {
		return nil, f.err
	}

	return r, nil
}

func (b *BuildStatus) ToProto() (*structpb.Struct, error) {
	m := map[string]any{
		"id":              b.ID,
		"project":         b.Project,
		"target":          b.Target,
		"verb":            b.Verb,
		"platform":        b.Platform,
		"runner":          b.Runner,
		"state":           b.State,
		"display":         b.Display,
		"stopped_by_user": b.StoppedByUser,
		"exit_code":       b.ExitCode,
	}

	if !b.StartedAt.IsZero() {
		m["started_at"] = b.StartedAt.UTC().Format(time.RFC3339Nano)
	}

	if b.Summary != nil {
		m["summary"] = map[string]any{
			"lines":      b.Summary.Lines,
			"errors":     anySlice(b.Summary.Errors),
			"warnings":   anySlice(b.Summary.Warnings),
			"outcome":    b.Summary.Outcome,
			"elapsed_ms": b.Summary.Elapsed.Milliseconds(),
		}
	}

	return structpb.NewStruct(m)
}

func BuildStatusFromProto(s *structpb.Struct) (*BuildStatus, error) {
	f := fields{m: s.AsMap()}

	b := &BuildStatus{
		ID:            f.str("id"),
		Project:       f.str("project"),
		Target:        f.str("target"),
		Verb:          f.str("verb"),
		Platform:      f.str("platform"),
		Runner:        f.str("runner"),
		State:         f.str("state"),
		Display:       f.str("display"),
		StoppedByUser: f.boolean("stopped_by_user"),
		ExitCode:      f.number("exit_code"),
	}

	if startedAt := f.str("started_at"); startedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}

		b.StartedAt = t
	}

	if sm := f.object("summary"); sm != nil {
		sf := fields{m: sm}

		b.Summary = &Summary{
			Lines:    sf.number("lines"),
			Errors:   sf.list("errors"),
			Warnings: sf.list("warnings"),
			Outcome:  sf.str("outcome"),
			Elapsed:  time.Duration(sf.number("elapsed_ms")) * time.Millisecond,
		}

		if sf.err != nil {
			return nil, fmt.Errorf("summary: %w", sf.err)
		}
	}

	if f.err != nil {
		return nil, f.err
	}

	return b, nil
}

func BuildStatusesToProto(builds []*BuildStatus) (*structpb.ListValue, error) {
	values := make([]*structpb.Value, 0, len(builds))

	for _, b := range builds {
		s, err := b.ToProto()
		if err != nil {
			return nil, fmt.Errorf("build '%s': %w", b.ID, err)
		}

		values = append(values, structpb.NewStructValue(s))
	}

	return &structpb.ListValue{Values: values}, nil
}

func BuildStatusesFromProto(l *structpb.ListValue) ([]*BuildStatus, error) {
	builds := make([]*BuildStatus, 0, len(l.GetValues()))

	for i, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("item %d is not a struct", i)
		}

		b, err := BuildStatusFromProto(s)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		builds = append(builds, b)
	}

	return builds, nil
}

func anySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}

	return out
}

// fields reads typed values out of a decoded Struct. Missing keys read as
// the zero value; the first value of the wrong type is kept in err.
type fields struct {
	m   map[string]any
	err error
}

func (f *fields) get(key string) (any, bool) {
	v, ok := f.m[key]
	if !ok || v == nil {
		return nil, false
	}

	return v, true
}

func (f *fields) fail(key string, want string, v any) {
	if f.err == nil {
		f.err = fmt.Errorf("field '%s': want %s, got %T", key, want, v)
	}
}

func (f *fields) str(key string) string {
	v, ok := f.get(key)
	if !ok {
		return ""
	}

	s, ok := v.(string)
	if !ok {
		f.fail(key, "string", v)
	}

	return s
}

func (f *fields) boolean(key string) bool {
	v, ok := f.get(key)
	if !ok {
		return false
	}

	b, ok := v.(bool)
	if !ok {
		f.fail(key, "bool", v)
	}

	return b
}

func (f *fields) number(key string) int {
	v, ok := f.get(key)
	if !ok {
		return 0
	}

	n, ok := v.(float64)
	if !ok {
		f.fail(key, "number", v)
	}

	return int(n)
}

func (f *fields) list(key string) []string {
	v, ok := f.get(key)
	if !ok {
		return nil
	}

	items, ok := v.([]any)
	if !ok {
		f.fail(key, "list", v)
		return nil
	}

	out := make([]string, 0, len(items))

	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			f.fail(key, "list of strings", item)
			return nil
		}

		out = append(out, s)
	}

	return out
}

func (f *fields) object(key string) map[string]any {
	v, ok := f.get(key)
	if !ok {
		return nil
	}

	m, ok := v.(map[string]any)
	if !ok {
		f.fail(key, "struct", v)
	}

	return m
}

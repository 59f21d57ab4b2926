// Package recipe holds the registry of named build steps: per step a build
// function, dependency edges, and an optional download descriptor. Steps are
// immutable once registered.
package recipe

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/twangboy/relative-environment-for-python/internal/download"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// BuildFunc is the contract every build step implements: given a prepared
// environment, the step's directory bundle, and its private log sink, invoke
// whatever external tooling the step needs. A non-nil error fails the step.
// Diagnostics must go to logf only, never to a shared stream.
type BuildFunc func(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error

// Step is one named unit of build work.
type Step struct {
	Name      string
	Build     BuildFunc
	DependsOn []string
	Download  *download.Download
}

// DownloadSpec declares a step's remote source archive. The URL may contain
// a {version} placeholder.
type DownloadSpec struct {
	URL       string
	Version   string
	MD5       string
	Signature string
}

// Options configures a step at registration time. Zero values pick the
// defaults: the generic configure/compile/install build function and no
// dependencies.
type Options struct {
	Build     BuildFunc
	DependsOn []string
	Download  *DownloadSpec
}

// Registry maps step names to their recipes for one run.
type Registry struct {
	downloadDir  string
	defaultBuild BuildFunc
	steps        map[string]*Step
}

// NewRegistry returns an empty registry whose downloads are bound to the
// shared download directory.
func NewRegistry(downloadDir string) *Registry {
	return &Registry{
		downloadDir:  downloadDir,
		defaultBuild: DefaultBuild,
		steps:        make(map[string]*Step),
	}
}

// Register adds a step. Names must be unique within a run.
func (r *Registry) Register(name string, opts Options) error {
	if _, ok := r.steps[name]; ok {
		return fmt.Errorf("step %q already registered", name)
	}
	build := opts.Build
	if build == nil {
		build = r.defaultBuild
	}
	step := &Step{
		Name:      name,
		Build:     build,
		DependsOn: append([]string(nil), opts.DependsOn...),
	}
	if opts.Download != nil {
		step.Download = &download.Download{
			Name:        name,
			URLTemplate: opts.Download.URL,
			Version:     opts.Download.Version,
			MD5:         opts.Download.MD5,
			Signature:   opts.Download.Signature,
			Destination: r.downloadDir,
		}
	}
	r.steps[name] = step
	return nil
}

// Step looks up a registered step by name.
func (r *Registry) Step(name string) (*Step, bool) {
	s, ok := r.steps[name]
	return s, ok
}

// Names returns every registered step name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves the requested step subset, or every registered step when
// names is empty. Requesting an unregistered step is an error.
func (r *Registry) Select(names []string) ([]*Step, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	steps := make([]*Step, 0, len(names))
	for _, name := range names {
		s, ok := r.steps[name]
		if !ok {
			return nil, fmt.Errorf("unknown step %q", name)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

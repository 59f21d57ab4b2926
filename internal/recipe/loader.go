package recipe

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
	"github.com/twangboy/relative-environment-for-python/internal/fsutil"
)

// manifestRoot decodes the top-level blocks of a recipe manifest file.
type manifestRoot struct {
	Steps  []*stepBlock `hcl:"step,block"`
	Remain hcl.Body     `hcl:",remain"`
}

// stepBlock is one `step "name" { ... }` block. The optional build attribute
// names a builtin build function; steps without one use the generic
// configure/compile/install sequence.
type stepBlock struct {
	Name      string         `hcl:"name,label"`
	Build     string         `hcl:"build,optional"`
	DependsOn []string       `hcl:"depends_on,optional"`
	Download  *downloadBlock `hcl:"download,block"`
}

type downloadBlock struct {
	URL       string `hcl:"url"`
	Version   string `hcl:"version,optional"`
	MD5       string `hcl:"md5,optional"`
	Signature string `hcl:"signature,optional"`
}

// LoadManifests discovers every .hcl file under path and registers the step
// blocks it finds. Manifests can reference the target arch and triplet as
// variables in their expressions.
func (r *Registry) LoadManifests(ctx context.Context, path, arch, triplet string) error {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return fmt.Errorf("discovering recipe manifests under %s: %w", path, err)
	}
	sort.Strings(files)
	logger.Debug("Discovered recipe manifests.", "count", len(files))

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"arch":    cty.StringVal(arch),
			"triplet": cty.StringVal(triplet),
		},
	}
	builtins := Builtins()
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return fmt.Errorf("parsing recipe manifest %s: %w", file, diags)
		}
		var root manifestRoot
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return fmt.Errorf("decoding recipe manifest %s: %w", file, diags)
		}
		for _, block := range root.Steps {
			opts := Options{DependsOn: block.DependsOn}
			if block.Build != "" {
				build, ok := builtins[block.Build]
				if !ok {
					return fmt.Errorf("manifest %s: step %q names unknown build function %q", file, block.Name, block.Build)
				}
				opts.Build = build
			}
			if block.Download != nil {
				opts.Download = &DownloadSpec{
					URL:       block.Download.URL,
					Version:   block.Download.Version,
					MD5:       block.Download.MD5,
					Signature: block.Download.Signature,
				}
			}
			if err := r.Register(block.Name, opts); err != nil {
				return fmt.Errorf("manifest %s: %w", file, err)
			}
			logger.Debug("Registered step from manifest.", "step", block.Name, "file", file)
		}
	}
	return nil
}

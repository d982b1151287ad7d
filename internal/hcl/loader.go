package hcl

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/stormrisk/internal/config"
	"github.com/vk/stormrisk/internal/ctxlog"
	"github.com/vk/stormrisk/internal/fsutil"
)

// rootSchema is the top-level HCL document: any number of analysis blocks.
type rootSchema struct {
	Analyses []*analysisSchema `hcl:"analysis,block"`
}

// analysisSchema mirrors the user-facing analysis block.
type analysisSchema struct {
	Name             string            `hcl:"name,label"`
	PopulationRaster string            `hcl:"population_raster"`
	Boundaries       *boundariesSchema `hcl:"boundaries,block"`
	Cyclone          *cycloneSchema    `hcl:"cyclone,block"`
	WindBands        []float64         `hcl:"wind_bands,optional"`
	Output           string            `hcl:"output,optional"`
}

type boundariesSchema struct {
	Archive string   `hcl:"archive"`
	Layer   string   `hcl:"layer"`
	Columns []string `hcl:"columns,optional"`
}

type cycloneSchema struct {
	EventType string `hcl:"event_type,optional"`
	EventID   int    `hcl:"event_id,optional"`
	EpisodeID int    `hcl:"episode_id,optional"`
	Source    string `hcl:"source,optional"`
	URL       string `hcl:"url,optional"`
}

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load implements config.Loader. The path may be a single .hcl file or a
// directory, in which case every .hcl file under it is parsed. Exactly one
// analysis block must be defined across all parsed files.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := collectFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found at %q", path)
	}
	logger.Debug("Parsing analysis files.", "count", len(files))

	evalCtx := newEvalContext()
	parser := hclparse.NewParser()

	var analyses []*analysisSchema
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", file, diags)
		}
		var root rootSchema
		if diags := gohcl.DecodeBody(f.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s: %w", file, diags)
		}
		analyses = append(analyses, root.Analyses...)
	}

	if len(analyses) == 0 {
		return nil, fmt.Errorf("no analysis block defined in %q", path)
	}
	if len(analyses) > 1 {
		names := make([]string, 0, len(analyses))
		for _, a := range analyses {
			names = append(names, a.Name)
		}
		return nil, fmt.Errorf("exactly one analysis block is allowed per run, found %d: %s",
			len(analyses), strings.Join(names, ", "))
	}

	model := translate(analyses[0])
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis %q: %w", model.Name, err)
	}
	logger.Debug("Analysis definition loaded.", "analysis", model.Name)
	return model, nil
}

// collectFiles resolves a file-or-directory path to the list of HCL files.
func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access config path: %w", err)
	}
	if info.IsDir() {
		return fsutil.FindFilesByExtension(path, ".hcl")
	}
	return []string{path}, nil
}

// translate converts the HCL-specific schema into the agnostic model,
// applying defaults for the optional fields.
func translate(a *analysisSchema) *config.Model {
	m := &config.Model{
		Name:             a.Name,
		PopulationRaster: a.PopulationRaster,
		WindBands:        a.WindBands,
		Output:           a.Output,
	}
	if a.Boundaries != nil {
		m.Boundaries = config.Boundaries{
			Archive: a.Boundaries.Archive,
			Layer:   a.Boundaries.Layer,
			Columns: a.Boundaries.Columns,
		}
	}
	if a.Cyclone != nil {
		m.Cyclone = config.Cyclone{
			EventType: a.Cyclone.EventType,
			EventID:   a.Cyclone.EventID,
			EpisodeID: a.Cyclone.EpisodeID,
			Source:    a.Cyclone.Source,
			URL:       a.Cyclone.URL,
		}
	}
	if len(m.WindBands) == 0 {
		m.WindBands = append([]float64(nil), config.DefaultWindBands...)
	}
	if len(m.Boundaries.Columns) == 0 {
		m.Boundaries.Columns = append([]string(nil), config.DefaultColumns...)
	}
	if m.Output == "" {
		m.Output = config.DefaultOutput
	}
	return m
}

// newEvalContext builds the expression scope available to analysis files.
// Currently that is a single `env` object exposing the process environment,
// so paths and credentials can live outside the checked-in file.
func newEvalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
	}
}

package hclmanifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	jsoniter "github.com/json-iterator/go"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// manifestFile is the top-level structure of one .hcl manifest.
type manifestFile struct {
	Modules []*moduleBlock `hcl:"module,block"`
}

type moduleBlock struct {
	Name         string     `hcl:"name,label"`
	Stage        string     `hcl:"stage"`
	Frequency    string     `hcl:"frequency"`
	DependsOn    []string   `hcl:"depends_on,optional"`
	BootCritical bool       `hcl:"boot_critical,optional"`
	Settings     *cty.Value `hcl:"settings,optional"`
}

// Load parses every .hcl file in dir into module specs. File names are
// sorted so declaration order is stable across runs.
func Load(dir string) ([]domain.ModuleSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CodeConfigReadError, fmt.Sprintf("cannot read manifest directory %s", dir))
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".hcl" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	parser := hclparse.NewParser()
	var specs []domain.ModuleSpec
	for _, path := range files {
		fileSpecs, err := loadFile(parser, path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, fileSpecs...)
	}
	return specs, nil
}

func loadFile(parser *hclparse.Parser, path string) ([]domain.ModuleSpec, error) {
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.CodeManifestParseError, fmt.Sprintf("failed to parse manifest %s", path))
	}

	var parsed manifestFile
	diags = gohcl.DecodeBody(hclFile.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.CodeManifestParseError, fmt.Sprintf("failed to decode manifest %s", path))
	}

	specs := make([]domain.ModuleSpec, 0, len(parsed.Modules))
	for _, block := range parsed.Modules {
		settings, err := settingsToMap(block.Settings)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeManifestParseError,
				fmt.Sprintf("invalid settings for module '%s' in %s", block.Name, path))
		}
		specs = append(specs, domain.ModuleSpec{
			Name:         block.Name,
			Stage:        domain.Stage(block.Stage),
			Frequency:    domain.Frequency(block.Frequency),
			DependsOn:    block.DependsOn,
			BootCritical: block.BootCritical,
			Settings:     settings,
		})
	}
	return specs, nil
}

// settingsToMap lowers an HCL object value into the opaque settings map
// appliers consume, going through the cty JSON encoding.
func settingsToMap(v *cty.Value) (map[string]any, error) {
	if v == nil || v.IsNull() {
		return nil, nil
	}
	raw, err := ctyjson.Marshal(*v, v.Type())
	if err != nil {
		return nil, err
	}
	var settings map[string]any
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Merge appends manifest specs to the configured ones. A module name may
// be declared once across both sources.
func Merge(configured, manifest []domain.ModuleSpec) ([]domain.ModuleSpec, error) {
	seen := make(map[string]struct{}, len(configured))
	for _, spec := range configured {
		seen[spec.Name] = struct{}{}
	}
	merged := append([]domain.ModuleSpec{}, configured...)
	for _, spec := range manifest {
		if _, dup := seen[spec.Name]; dup {
			return nil, errors.New(errors.CodeConfigValidation,
				fmt.Sprintf("module '%s' declared in both config and manifest", spec.Name))
		}
		seen[spec.Name] = struct{}{}
		merged = append(merged, spec)
	}
	return merged, nil
}

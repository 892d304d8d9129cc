// Package plan loads update plans: YAML files naming a flow and the
// branch updates to apply to it.
//
// A plan is checked against an embedded CUE schema before it is decoded,
// so typos and wrong types are reported with their position.
//
//	flow_file: flow.json
//	max_values: 5000
//	updates:
//	  - branch: West
//	    property: zip
//	    replace: true
//	    enforce_cap: true
//	    values_from:
//	      file: west_zips.csv
//	      header: zip
package plan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flowfilter/internal/filtertree"
	"github.com/roach88/flowfilter/internal/ingest"
)

// Plan is a parsed update plan.
type Plan struct {
	// Name is an optional label recorded with the stored revision.
	Name string `yaml:"name,omitempty"`

	// Flow is the id of a flow in the store. Exactly one of Flow and
	// FlowFile must be set.
	Flow string `yaml:"flow,omitempty"`

	// FlowFile is a path to a flow JSON file, relative to the plan.
	FlowFile string `yaml:"flow_file,omitempty"`

	// MaxValues is the default cap for updates that do not set one.
	MaxValues int `yaml:"max_values,omitempty"`

	// Updates are applied in order.
	Updates []UpdateSpec `yaml:"updates"`

	dir string
}

// UpdateSpec is one update as written in the plan.
type UpdateSpec struct {
	Branch     string      `yaml:"branch"`
	Property   string      `yaml:"property"`
	Add        []string    `yaml:"add,omitempty"`
	Remove     []string    `yaml:"remove,omitempty"`
	ValuesFrom *ValuesFrom `yaml:"values_from,omitempty"`
	Replace    bool        `yaml:"replace,omitempty"`
	EnforceCap bool        `yaml:"enforce_cap,omitempty"`
	MaxValues  int         `yaml:"max_values,omitempty"`
}

// ValuesFrom reads additional values from a file column.
type ValuesFrom struct {
	File     string `yaml:"file"`
	Header   string `yaml:"header,omitempty"`
	Index    int    `yaml:"index,omitempty"`
	NoHeader bool   `yaml:"no_header,omitempty"`
	Sheet    string `yaml:"sheet,omitempty"`
}

// Load reads and validates the plan at path. Relative file references in
// the plan resolve against the plan's directory.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse validates and decodes plan YAML. dir is the base for relative
// file references.
func Parse(data []byte, dir string) (*Plan, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	var p Plan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validatePlan(&p); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	p.dir = dir
	return &p, nil
}

// validatePlan checks what the schema cannot express.
func validatePlan(p *Plan) error {
	if (p.Flow == "") == (p.FlowFile == "") {
		return &ValidationError{Field: "flow", Message: "exactly one of flow and flow_file is required"}
	}
	for i, u := range p.Updates {
		if len(u.Add) == 0 && len(u.Remove) == 0 && u.ValuesFrom == nil && !u.Replace {
			return &ValidationError{
				Field:   fmt.Sprintf("updates[%d]", i),
				Message: "one of add, remove, values_from or replace is required",
			}
		}
		if vf := u.ValuesFrom; vf != nil && vf.Header != "" && vf.Index != 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("updates[%d].values_from", i),
				Message: "header and index are mutually exclusive",
			}
		}
	}
	return nil
}

// FlowPath returns FlowFile resolved against the plan's directory.
func (p *Plan) FlowPath() string {
	if p.FlowFile == "" || filepath.IsAbs(p.FlowFile) {
		return p.FlowFile
	}
	return filepath.Join(p.dir, p.FlowFile)
}

// Resolve turns the plan into editor updates, reading values_from files
// and cleaning every value the way imported columns are cleaned.
func (p *Plan) Resolve() ([]filtertree.Update, error) {
	out := make([]filtertree.Update, 0, len(p.Updates))
	for i, spec := range p.Updates {
		add := append([]string(nil), spec.Add...)
		if vf := spec.ValuesFrom; vf != nil {
			res, err := ingest.ReadFile(p.resolve(vf.File), ingest.Selector{
				Header:   vf.Header,
				Index:    vf.Index,
				NoHeader: vf.NoHeader,
				Sheet:    vf.Sheet,
			})
			if err != nil {
				return nil, fmt.Errorf("updates[%d].values_from: %w", i, err)
			}
			add = append(add, res.Values...)
		}
		add, _ = ingest.Clean(add)
		remove, _ := ingest.Clean(spec.Remove)

		limit := spec.MaxValues
		if limit == 0 {
			limit = p.MaxValues
		}
		out = append(out, filtertree.Update{
			BranchName: spec.Branch,
			Property:   spec.Property,
			Add:        add,
			Remove:     remove,
			Replace:    spec.Replace,
			EnforceCap: spec.EnforceCap,
			MaxValues:  limit,
		})
	}
	return out, nil
}

func (p *Plan) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.dir, path)
}

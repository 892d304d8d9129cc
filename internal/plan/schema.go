package plan

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaCUE string

// ValidationError reports a plan that does not match the schema.
type ValidationError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%d:%d: %s: %s", e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// validateSchema unifies the plan YAML with #Plan. A fresh cue.Context is
// used per call since contexts are not safe for concurrent use.
func validateSchema(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile plan schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Plan"))

	file, err := cueyaml.Extract("plan.yaml", data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	v := ctx.BuildFile(file)
	if err := v.Err(); err != nil {
		return formatCUEError(err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError keeps the first CUE error, with its path as the field.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := "plan"
	if path := first.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	format, args := first.Msg()
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Pos:     first.Position(),
	}
}

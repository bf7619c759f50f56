package compiler

import (
	_ "embed"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// validateSchema unifies the raw YAML document with the embedded
// descriptor schema. The #Descriptor definition is closed, so unknown
// keys at any depth surface here with document positions.
func validateSchema(name string, data []byte) []ValidationError {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationError{{
			Field:   "schema",
			Message: "embedded schema is invalid: " + err.Error(),
			Code:    ErrCodeSchema,
		}}
	}
	def := schema.LookupPath(cue.ParsePath("#Descriptor"))
	if err := def.Err(); err != nil {
		return []ValidationError{{
			Field:   "schema",
			Message: err.Error(),
			Code:    ErrCodeSchema,
		}}
	}

	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return []ValidationError{{
			Field:   "document",
			Message: err.Error(),
			Code:    ErrCodeYAML,
		}}
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return cueViolations(err)
	}

	if err := def.Unify(doc).Validate(); err != nil {
		return cueViolations(err)
	}
	return nil
}

// cueViolations flattens a CUE error list into coded findings,
// preferring positions inside the document over schema positions.
func cueViolations(err error) []ValidationError {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return []ValidationError{{Field: "document", Message: err.Error(), Code: ErrCodeSchema}}
	}

	out := make([]ValidationError, 0, len(list))
	for _, e := range list {
		v := ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: e.Error(),
			Code:    ErrCodeSchema,
		}
		if v.Field == "" {
			v.Field = "document"
		}
		for _, pos := range cueerrors.Positions(e) {
			if pos.IsValid() && pos.Filename() != "schema.cue" {
				v.Line = pos.Line()
				break
			}
		}
		if v.Line == 0 {
			for _, pos := range cueerrors.Positions(e) {
				if pos.IsValid() {
					v.Line = pos.Line()
					break
				}
			}
		}
		out = append(out, v)
	}
	return out
}

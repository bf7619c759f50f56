// Package compiler turns YAML pipeline descriptors into validated
// runtime pipelines.
//
// Compilation is three passes: a syntax check (exactly one well-formed
// YAML document), structural validation against the embedded CUE
// schema (types, enums, unknown keys, with source positions), and
// semantic validation of the assembled pipeline (coded E1xx findings,
// collected rather than fail-fast).
package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// Error is a structural compile failure: the input could not be read
// or is not a usable YAML document.
type Error struct {
	Code    string
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Name, e.Message)
}

// DescriptorError bundles every validation finding for one document.
type DescriptorError struct {
	Name   string
	Errors []ValidationError
}

func (e *DescriptorError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s: %s", e.Name, e.Errors[0].Error())
	}
	lines := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		lines[i] = v.Error()
	}
	return fmt.Sprintf("%s: %d validation errors:\n  %s",
		e.Name, len(e.Errors), strings.Join(lines, "\n  "))
}

// CompileFile reads and compiles a descriptor file. The pipeline name
// defaults to the file's base name without extension, so "ci.yml"
// names the pipeline "ci" and ".travis.yml" names it "travis".
func CompileFile(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeRead, Name: path, Message: err.Error()}
	}
	return Compile(PipelineName(path), data)
}

// PipelineName derives the default pipeline name from a config path.
func PipelineName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.TrimPrefix(name, ".")
	if name == "" {
		name = "pipeline"
	}
	return name
}

// Compile parses, schema-checks, and semantically validates one
// descriptor document, returning the runnable pipeline with all
// defaults applied.
//
// Failures are typed: *Error for unreadable or unparsable input,
// *DescriptorError carrying the coded findings otherwise.
func Compile(name string, data []byte) (*pipeline.Pipeline, error) {
	if err := checkSyntax(data); err != nil {
		switch {
		case errors.Is(err, errEmptyDocument):
			return nil, &Error{Code: ErrCodeYAML, Name: name, Message: errEmptyDocument.Error()}
		case errors.Is(err, errMultiDocument):
			return nil, &Error{Code: ErrCodeMultiDoc, Name: name, Message: errMultiDocument.Error()}
		default:
			return nil, &Error{Code: ErrCodeYAML, Name: name, Message: err.Error()}
		}
	}

	if violations := validateSchema(name, data); len(violations) > 0 {
		return nil, &DescriptorError{Name: name, Errors: violations}
	}

	// The schema pass guarantees the strict decode succeeds; anything
	// slipping through is still reported rather than panicking.
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, &Error{Code: ErrCodeYAML, Name: name, Message: err.Error()}
	}

	p := doc.toPipeline(name)
	if findings := Validate(p); len(findings) > 0 {
		return nil, &DescriptorError{Name: name, Errors: findings}
	}
	return p, nil
}

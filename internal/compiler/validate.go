package compiler

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tessera-dev/tessera/internal/matrix"
	"github.com/tessera-dev/tessera/internal/notify"
	"github.com/tessera-dev/tessera/internal/pipeline"
)

// Validation error codes.
const (
	// Document errors (E00x)
	ErrCodeRead     = "E001" // descriptor file unreadable
	ErrCodeMultiDoc = "E002" // more than one YAML document
	ErrCodeYAML     = "E003" // YAML syntax or decode failure
	ErrCodeSchema   = "E004" // schema violation

	// Descriptor errors (E10x)
	ErrEmptyToolchains    = "E101" // rust list present but empty
	ErrEmptyOS            = "E102" // os list present but empty
	ErrNoBlockingCommands = "E103" // nothing to run before after_* hooks
	ErrInvalidPolicy      = "E104" // policy outside always/never/change
	ErrEmptySelector      = "E105" // selector with no attributes
	ErrIncompleteInclude  = "E106" // include entry missing os or rust
	ErrDuplicateCell      = "E107" // include collides with an existing cell
	ErrUnknownToken       = "E108" // template references an unknown token
	ErrMalformedEnv       = "E109" // env entry is not KEY=VALUE
	ErrEmptyTarget        = "E110" // notification target missing or malformed
)

// ValidationError is one coded finding against a descriptor.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// envEntryPattern accepts KEY=VALUE with a shell-safe variable name.
var envEntryPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// Validate checks descriptor semantics that the structural schema
// cannot express. Returns all findings rather than failing fast, so a
// single validate pass reports everything.
func Validate(p *pipeline.Pipeline) []ValidationError {
	var errs []ValidationError

	errs = append(errs, validateAxes(p)...)
	errs = append(errs, validateCommands(p)...)
	errs = append(errs, validateMatrix(p)...)
	errs = append(errs, validateEnv("env", p.Env)...)
	errs = append(errs, validateNotifications(&p.Notifications)...)

	// Expansion-level checks only make sense on an otherwise sound
	// matrix; a bad axis list would drown them in noise.
	if len(errs) == 0 {
		errs = append(errs, validateExpansion(p)...)
	}

	return errs
}

func validateAxes(p *pipeline.Pipeline) []ValidationError {
	var errs []ValidationError

	if len(p.Toolchains) == 0 {
		errs = append(errs, ValidationError{
			Field:   "rust",
			Message: "at least one toolchain channel is required",
			Code:    ErrEmptyToolchains,
		})
	}
	for i, channel := range p.Toolchains {
		if strings.TrimSpace(channel) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rust[%d]", i),
				Message: "toolchain channel must be non-empty",
				Code:    ErrEmptyToolchains,
			})
		}
	}

	if len(p.OS) == 0 {
		errs = append(errs, ValidationError{
			Field:   "os",
			Message: "at least one operating system is required",
			Code:    ErrEmptyOS,
		})
	}
	for i, osName := range p.OS {
		if strings.TrimSpace(osName) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("os[%d]", i),
				Message: "operating system must be non-empty",
				Code:    ErrEmptyOS,
			})
		}
	}

	return errs
}

func validateCommands(p *pipeline.Pipeline) []ValidationError {
	var errs []ValidationError

	if !p.Commands.HasWork() {
		errs = append(errs, ValidationError{
			Field:   "script",
			Message: "descriptor runs nothing: before_install, install, before_script, and script are all empty",
			Code:    ErrNoBlockingCommands,
		})
	}

	for _, phase := range pipeline.Phases() {
		for i, cmd := range p.Commands.ForPhase(phase) {
			if strings.TrimSpace(cmd) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", phase, i),
					Message: "command must be non-empty",
					Code:    ErrNoBlockingCommands,
				})
			}
		}
	}

	return errs
}

func validateMatrix(p *pipeline.Pipeline) []ValidationError {
	var errs []ValidationError

	for i, sel := range p.Matrix.AllowFailures {
		if sel.IsZero() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("matrix.allow_failures[%d]", i),
				Message: "selector requires at least one of os, rust, dist",
				Code:    ErrEmptySelector,
			})
		}
	}
	for i, sel := range p.Matrix.Exclude {
		if sel.IsZero() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("matrix.exclude[%d]", i),
				Message: "selector requires at least one of os, rust, dist",
				Code:    ErrEmptySelector,
			})
		}
	}

	for i, inc := range p.Matrix.Include {
		if inc.OS == "" || inc.Toolchain == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("matrix.include[%d]", i),
				Message: "include entries must name both os and rust",
				Code:    ErrIncompleteInclude,
			})
		}
		errs = append(errs, validateEnv(fmt.Sprintf("matrix.include[%d].env", i), inc.Env)...)
	}

	return errs
}

func validateEnv(field string, env []string) []ValidationError {
	var errs []ValidationError
	for i, entry := range env {
		if !envEntryPattern.MatchString(entry) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("%q is not of the form KEY=VALUE", entry),
				Code:    ErrMalformedEnv,
			})
		}
	}
	return errs
}

func validateNotifications(n *pipeline.Notifications) []ValidationError {
	var errs []ValidationError

	if n.Email != nil {
		errs = append(errs, validatePolicies("notifications.email", n.Email.OnSuccess, n.Email.OnFailure)...)
		if len(n.Email.Recipients) == 0 {
			errs = append(errs, ValidationError{
				Field:   "notifications.email",
				Message: "at least one recipient is required",
				Code:    ErrEmptyTarget,
			})
		}
		for i, rcpt := range n.Email.Recipients {
			if strings.TrimSpace(rcpt) == "" || !strings.Contains(rcpt, "@") {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("notifications.email[%d]", i),
					Message: fmt.Sprintf("%q is not an email address", rcpt),
					Code:    ErrEmptyTarget,
				})
			}
		}
	}

	if n.IRC != nil {
		errs = append(errs, validatePolicies("notifications.irc", n.IRC.OnSuccess, n.IRC.OnFailure)...)
		if len(n.IRC.Channels) == 0 {
			errs = append(errs, ValidationError{
				Field:   "notifications.irc.channels",
				Message: "at least one channel is required",
				Code:    ErrEmptyTarget,
			})
		}
		for i, channel := range n.IRC.Channels {
			if _, err := notify.ParseIRCTarget(channel); err != nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("notifications.irc.channels[%d]", i),
					Message: err.Error(),
					Code:    ErrEmptyTarget,
				})
			}
		}
		for i, line := range n.IRC.Template {
			if err := notify.ValidateTemplate(line); err != nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("notifications.irc.template[%d]", i),
					Message: err.Error(),
					Code:    ErrUnknownToken,
				})
			}
		}
	}

	if n.Webhooks != nil {
		errs = append(errs, validatePolicies("notifications.webhooks", n.Webhooks.OnSuccess, n.Webhooks.OnFailure)...)
		if len(n.Webhooks.URLs) == 0 {
			errs = append(errs, ValidationError{
				Field:   "notifications.webhooks",
				Message: "at least one URL is required",
				Code:    ErrEmptyTarget,
			})
		}
		for i, raw := range n.Webhooks.URLs {
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("notifications.webhooks[%d]", i),
					Message: fmt.Sprintf("%q is not an http(s) URL", raw),
					Code:    ErrEmptyTarget,
				})
			}
		}
	}

	return errs
}

func validatePolicies(field string, onSuccess, onFailure pipeline.Policy) []ValidationError {
	var errs []ValidationError
	if !onSuccess.Valid() {
		errs = append(errs, ValidationError{
			Field:   field + ".on_success",
			Message: fmt.Sprintf("invalid policy %q, must be \"always\", \"never\", or \"change\"", onSuccess),
			Code:    ErrInvalidPolicy,
		})
	}
	if !onFailure.Valid() {
		errs = append(errs, ValidationError{
			Field:   field + ".on_failure",
			Message: fmt.Sprintf("invalid policy %q, must be \"always\", \"never\", or \"change\"", onFailure),
			Code:    ErrInvalidPolicy,
		})
	}
	return errs
}

// validateExpansion runs the matrix expansion to surface duplicate
// cells introduced by matrix.include.
func validateExpansion(p *pipeline.Pipeline) []ValidationError {
	_, err := matrix.Expand(p)
	if err == nil {
		return nil
	}

	var dup *matrix.DuplicateCellError
	if errors.As(err, &dup) {
		return []ValidationError{{
			Field:   "matrix.include",
			Message: fmt.Sprintf("cell %s is declared more than once", dup.Key),
			Code:    ErrDuplicateCell,
		}}
	}
	return []ValidationError{{
		Field:   "matrix",
		Message: err.Error(),
		Code:    ErrDuplicateCell,
	}}
}

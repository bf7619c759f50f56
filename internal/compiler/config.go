package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// document mirrors the YAML descriptor surface before defaulting.
// Field presence matters: a nil list means the key was omitted (and
// may be defaulted), an empty non-nil list means it was declared
// empty (a validation error for the axis keys).
type document struct {
	Language string     `yaml:"language"`
	Cache    stringList `yaml:"cache"`
	Rust     stringList `yaml:"rust"`
	OS       stringList `yaml:"os"`
	Dist     string     `yaml:"dist"`
	Env      stringList `yaml:"env"`

	Matrix *matrixDoc `yaml:"matrix"`

	BeforeInstall stringList `yaml:"before_install"`
	Install       stringList `yaml:"install"`
	BeforeScript  stringList `yaml:"before_script"`
	Script        stringList `yaml:"script"`
	AfterSuccess  stringList `yaml:"after_success"`
	AfterFailure  stringList `yaml:"after_failure"`
	AfterScript   stringList `yaml:"after_script"`

	Notifications *notificationsDoc `yaml:"notifications"`
}

type matrixDoc struct {
	AllowFailures []selectorDoc `yaml:"allow_failures"`
	Exclude       []selectorDoc `yaml:"exclude"`
	Include       []includeDoc  `yaml:"include"`
}

type selectorDoc struct {
	OS   string `yaml:"os"`
	Rust string `yaml:"rust"`
	Dist string `yaml:"dist"`
}

type includeDoc struct {
	OS   string     `yaml:"os"`
	Rust string     `yaml:"rust"`
	Dist string     `yaml:"dist"`
	Env  stringList `yaml:"env"`
}

type notificationsDoc struct {
	Email    *emailDoc   `yaml:"email"`
	IRC      *ircDoc     `yaml:"irc"`
	Webhooks *webhookDoc `yaml:"webhooks"`
}

// stringList accepts either a single scalar or a sequence of strings.
// Hosted CI descriptors use both forms interchangeably ("cache: cargo"
// vs a list), so every list-valued key tolerates the scalar shorthand.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		if items == nil {
			items = []string{}
		}
		*l = stringList(items)
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

// emailDoc accepts the three descriptor forms: a single address, a
// list of addresses, or a mapping with recipients and policies.
type emailDoc struct {
	Recipients []string
	OnSuccess  string
	OnFailure  string
}

func (d *emailDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		d.Recipients = []string{s}
		return nil
	case yaml.SequenceNode:
		return node.Decode(&d.Recipients)
	case yaml.MappingNode:
		if err := checkMappingKeys(node, "recipients", "on_success", "on_failure"); err != nil {
			return err
		}
		var m struct {
			Recipients stringList `yaml:"recipients"`
			OnSuccess  string     `yaml:"on_success"`
			OnFailure  string     `yaml:"on_failure"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		d.Recipients = m.Recipients
		d.OnSuccess = m.OnSuccess
		d.OnFailure = m.OnFailure
		return nil
	default:
		return fmt.Errorf("line %d: email must be an address, a list, or a mapping", node.Line)
	}
}

// ircDoc accepts a bare channel list or the full mapping form.
type ircDoc struct {
	Channels  []string
	Template  []string
	OnSuccess string
	OnFailure string
	UseNotice bool
	SkipJoin  bool
}

func (d *ircDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&d.Channels)
	case yaml.MappingNode:
		if err := checkMappingKeys(node, "channels", "template", "on_success", "on_failure", "use_notice", "skip_join"); err != nil {
			return err
		}
		var m struct {
			Channels  stringList `yaml:"channels"`
			Template  stringList `yaml:"template"`
			OnSuccess string     `yaml:"on_success"`
			OnFailure string     `yaml:"on_failure"`
			UseNotice bool       `yaml:"use_notice"`
			SkipJoin  bool       `yaml:"skip_join"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		d.Channels = m.Channels
		d.Template = m.Template
		d.OnSuccess = m.OnSuccess
		d.OnFailure = m.OnFailure
		d.UseNotice = m.UseNotice
		d.SkipJoin = m.SkipJoin
		return nil
	default:
		return fmt.Errorf("line %d: irc must be a channel list or a mapping", node.Line)
	}
}

// webhookDoc accepts a single URL, a list of URLs, or a mapping.
type webhookDoc struct {
	URLs      []string
	OnSuccess string
	OnFailure string
}

func (d *webhookDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		d.URLs = []string{s}
		return nil
	case yaml.SequenceNode:
		return node.Decode(&d.URLs)
	case yaml.MappingNode:
		if err := checkMappingKeys(node, "urls", "on_success", "on_failure"); err != nil {
			return err
		}
		var m struct {
			URLs      stringList `yaml:"urls"`
			OnSuccess string     `yaml:"on_success"`
			OnFailure string     `yaml:"on_failure"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		d.URLs = m.URLs
		d.OnSuccess = m.OnSuccess
		d.OnFailure = m.OnFailure
		return nil
	default:
		return fmt.Errorf("line %d: webhooks must be a URL, a list, or a mapping", node.Line)
	}
}

// checkMappingKeys enforces strict decoding inside custom
// unmarshalers, where the decoder's KnownFields setting does not
// reach.
func checkMappingKeys(node *yaml.Node, allowed ...string) error {
	known := make(map[string]bool, len(allowed))
	for _, key := range allowed {
		known[key] = true
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !known[key.Value] {
			return fmt.Errorf("line %d: unknown key %q", key.Line, key.Value)
		}
	}
	return nil
}

// Sentinel parse failures that map to their own error codes.
var (
	errEmptyDocument = errors.New("descriptor is empty")
	errMultiDocument = errors.New("descriptor must be a single YAML document")
)

// checkSyntax verifies the input is exactly one well-formed YAML
// document, without interpreting its content. Schema validation runs
// on the raw bytes afterwards so violations carry CUE positions
// instead of decoder messages.
func checkSyntax(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyDocument
		}
		return err
	}
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 && root.Content[0].Tag == "!!null" {
		return errEmptyDocument
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return errMultiDocument
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeDocument strictly decodes the document into the descriptor
// model. The decoder rejects unknown keys in plain structs; the
// union-typed values enforce their own key sets.
func decodeDocument(data []byte) (*document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// toPipeline maps the raw document onto the runtime model, applying
// the descriptor defaults: os [linux] and rust [stable] when the keys
// are omitted, and the per-channel notification policies.
func (doc *document) toPipeline(name string) *pipeline.Pipeline {
	p := &pipeline.Pipeline{
		Name:       name,
		Language:   doc.Language,
		Cache:      doc.Cache,
		Toolchains: doc.Rust,
		OS:         doc.OS,
		Dist:       doc.Dist,
		Env:        doc.Env,
		Commands: pipeline.Commands{
			BeforeInstall: doc.BeforeInstall,
			Install:       doc.Install,
			BeforeScript:  doc.BeforeScript,
			Script:        doc.Script,
			AfterSuccess:  doc.AfterSuccess,
			AfterFailure:  doc.AfterFailure,
			AfterScript:   doc.AfterScript,
		},
	}

	if doc.Rust == nil {
		p.Toolchains = []string{"stable"}
	}
	if doc.OS == nil {
		p.OS = []string{"linux"}
	}

	if doc.Matrix != nil {
		for _, sel := range doc.Matrix.AllowFailures {
			p.Matrix.AllowFailures = append(p.Matrix.AllowFailures, pipeline.Selector{
				OS: sel.OS, Toolchain: sel.Rust, Dist: sel.Dist,
			})
		}
		for _, sel := range doc.Matrix.Exclude {
			p.Matrix.Exclude = append(p.Matrix.Exclude, pipeline.Selector{
				OS: sel.OS, Toolchain: sel.Rust, Dist: sel.Dist,
			})
		}
		for _, inc := range doc.Matrix.Include {
			p.Matrix.Include = append(p.Matrix.Include, pipeline.IncludeEntry{
				OS: inc.OS, Toolchain: inc.Rust, Dist: inc.Dist, Env: inc.Env,
			})
		}
	}

	if doc.Notifications != nil {
		if e := doc.Notifications.Email; e != nil {
			p.Notifications.Email = &pipeline.EmailNotification{
				Recipients: e.Recipients,
				OnSuccess:  pipeline.Policy(e.OnSuccess),
				OnFailure:  pipeline.Policy(e.OnFailure),
			}
		}
		if irc := doc.Notifications.IRC; irc != nil {
			p.Notifications.IRC = &pipeline.IRCNotification{
				Channels:  irc.Channels,
				Template:  irc.Template,
				OnSuccess: pipeline.Policy(irc.OnSuccess),
				OnFailure: pipeline.Policy(irc.OnFailure),
				UseNotice: irc.UseNotice,
				SkipJoin:  irc.SkipJoin,
			}
		}
		if w := doc.Notifications.Webhooks; w != nil {
			p.Notifications.Webhooks = &pipeline.WebhookNotification{
				URLs:      w.URLs,
				OnSuccess: pipeline.Policy(w.OnSuccess),
				OnFailure: pipeline.Policy(w.OnFailure),
			}
		}
	}
	p.Notifications.ApplyDefaults()

	return p
}

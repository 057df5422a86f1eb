// Package flow runs a YAML-described sequence of iframe steps: wait for
// frames, read, click and fill elements, then report the outcome through a
// webhook and a browser notification.
package flow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/grez-lucas/iframe-bridge/internal/iframe"
)

// Action names as written in flow files.
const (
	ActionWaitIframe        = "wait_iframe"
	ActionWaitDynamicIframe = "wait_dynamic_iframe"
	ActionFill              = "fill"
	ActionType              = "type"
	ActionClick             = "click"
	ActionGetValue          = "get_value"
	ActionNotify            = "notify"
	ActionAlert             = "alert"
)

// Notify message formats.
const (
	FormatPlain    = "plain"
	FormatCode     = "code"
	FormatMarkdown = "markdown"
)

var ErrInvalidFlow = errors.New("invalid flow")

var varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Flow is one parsed flow file.
type Flow struct {
	Name string `yaml:"name"`
	// Vars seeds the variables available to ${name} expansion.
	Vars  map[string]string `yaml:"vars,omitempty"`
	Steps []Step            `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	WaitIframe        *WaitIframe        `yaml:"wait_iframe,omitempty"`
	WaitDynamicIframe *WaitDynamicIframe `yaml:"wait_dynamic_iframe,omitempty"`
	Fill              *Write             `yaml:"fill,omitempty"`
	Type              *Write             `yaml:"type,omitempty"`
	Click             *Target            `yaml:"click,omitempty"`
	GetValue          *Read              `yaml:"get_value,omitempty"`
	Notify            *Notify            `yaml:"notify,omitempty"`
	Alert             *Alert             `yaml:"alert,omitempty"`
}

type WaitIframe struct {
	Iframe string `yaml:"iframe"`
}

type WaitDynamicIframe struct {
	Partial string `yaml:"partial"`
	// As stores the resolved iframe id.
	As string `yaml:"as,omitempty"`
}

// Target names an element inside an iframe. An empty Iframe means
// iframe.DefaultIframeID.
type Target struct {
	Iframe  string `yaml:"iframe,omitempty"`
	Element string `yaml:"element"`
}

type Write struct {
	Target `yaml:",inline"`
	Value  string `yaml:"value"`
}

type Read struct {
	Target `yaml:",inline"`
	// As stores the value read.
	As string `yaml:"as,omitempty"`
}

type Notify struct {
	Message string `yaml:"message"`
	Format  string `yaml:"format,omitempty"`
}

type Alert struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body,omitempty"`
}

// Action returns the name of the step's action, or "" when it has none.
// Validate rejects steps with more than one.
func (s *Step) Action() string {
	names := s.actions()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (s *Step) actions() []string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(s.WaitIframe != nil, ActionWaitIframe)
	add(s.WaitDynamicIframe != nil, ActionWaitDynamicIframe)
	add(s.Fill != nil, ActionFill)
	add(s.Type != nil, ActionType)
	add(s.Click != nil, ActionClick)
	add(s.GetValue != nil, ActionGetValue)
	add(s.Notify != nil, ActionNotify)
	add(s.Alert != nil, ActionAlert)
	return names
}

// Parse decodes and validates a flow. Unknown keys are errors.
func Parse(r io.Reader) (*Flow, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Flow
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidFlow)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(data []byte) (*Flow, error) {
	return Parse(bytes.NewReader(data))
}

// Load reads and parses a flow file.
func Load(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow: %w", err)
	}
	f, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate checks every step. Variables are not resolved here.
func (f *Flow) Validate() error {
	if len(f.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidFlow)
	}
	for name := range f.Vars {
		if !varName.MatchString(name) {
			return fmt.Errorf("%w: invalid variable name %q", ErrInvalidFlow, name)
		}
	}
	for i := range f.Steps {
		if err := f.Steps[i].validate(); err != nil {
			return fmt.Errorf("%w: step %d: %w", ErrInvalidFlow, i+1, err)
		}
	}
	return nil
}

func (s *Step) validate() error {
	names := s.actions()
	switch len(names) {
	case 0:
		return errors.New("no action")
	case 1:
	default:
		return fmt.Errorf("more than one action: %s", strings.Join(names, ", "))
	}

	switch {
	case s.WaitIframe != nil:
		return nil
	case s.WaitDynamicIframe != nil:
		if s.WaitDynamicIframe.Partial == "" {
			return errors.New("wait_dynamic_iframe: partial is required")
		}
		return checkAs(s.WaitDynamicIframe.As)
	case s.Fill != nil:
		return s.Fill.Target.validate()
	case s.Type != nil:
		return s.Type.Target.validate()
	case s.Click != nil:
		return s.Click.validate()
	case s.GetValue != nil:
		if err := s.GetValue.Target.validate(); err != nil {
			return err
		}
		return checkAs(s.GetValue.As)
	case s.Notify != nil:
		if s.Notify.Message == "" {
			return errors.New("notify: message is required")
		}
		switch s.Notify.Format {
		case "", FormatPlain, FormatCode, FormatMarkdown:
			return nil
		default:
			return fmt.Errorf("notify: unknown format %q", s.Notify.Format)
		}
	case s.Alert != nil:
		if s.Alert.Title == "" {
			return errors.New("alert: title is required")
		}
	}
	return nil
}

func (t *Target) validate() error {
	if strings.TrimPrefix(t.Element, "#") == "" {
		return errors.New("element is required")
	}
	return nil
}

func checkAs(name string) error {
	if name != "" && !varName.MatchString(name) {
		return fmt.Errorf("invalid variable name %q", name)
	}
	return nil
}

// iframeOrDefault returns id, falling back to the default content frame.
func iframeOrDefault(id string) string {
	if id == "" {
		return iframe.DefaultIframeID
	}
	return id
}

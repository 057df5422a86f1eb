package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/alert"
	"github.com/grez-lucas/iframe-bridge/internal/iframe"
	"github.com/grez-lucas/iframe-bridge/internal/notify"
	"github.com/grez-lucas/iframe-bridge/internal/redact"
)

// Alerter shows a user-facing notification.
type Alerter interface {
	Show(ctx context.Context, title, body string) (alert.Permission, error)
}

// StepResult records one executed step.
type StepResult struct {
	Index    int           `json:"index"`
	Action   string        `json:"action"`
	Target   string        `json:"target,omitempty"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	// Error is Err as text, for JSON reports.
	Error string `json:"error,omitempty"`
}

// Report is the outcome of one Run. Steps holds every step that ran,
// including the one that failed.
type Report struct {
	RunID    string            `json:"run_id"`
	Name     string            `json:"name"`
	Steps    []StepResult      `json:"steps"`
	Vars     map[string]string `json:"vars"`
	Duration time.Duration     `json:"duration"`
}

// StepError is returned by Run when a step fails.
type StepError struct {
	Index  int
	Action string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Action, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Runner executes flows against one Bridge.
type Runner struct {
	bridge   *iframe.Bridge
	notifier notify.Notifier
	alerter  Alerter
	log      *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithNotifier(n notify.Notifier) RunnerOption {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithAlerter enables alert steps. Without one they are skipped.
func WithAlerter(a Alerter) RunnerOption {
	return func(r *Runner) {
		r.alerter = a
	}
}

func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = l
	}
}

// NewRunner returns a Runner driving b.
func NewRunner(b *iframe.Bridge, opts ...RunnerOption) *Runner {
	r := &Runner{
		bridge:   b,
		notifier: notify.Nop{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("flow")
	return r
}

// Run executes f's steps in order and stops at the first failure. The
// outcome is sent to the notifier either way.
func (r *Runner) Run(ctx context.Context, f *Flow) (*Report, error) {
	start := time.Now()
	rep := &Report{
		RunID: uuid.NewString(),
		Name:  f.Name,
		Vars:  make(map[string]string, len(f.Vars)),
	}
	for k, v := range f.Vars {
		rep.Vars[k] = v
	}

	log := r.log.With(zap.String("run_id", rep.RunID), zap.String("flow", f.Name))
	log.Info("flow started", zap.Int("steps", len(f.Steps)))

	for i := range f.Steps {
		step := &f.Steps[i]
		res := StepResult{Index: i + 1, Action: step.Action()}

		stepStart := time.Now()
		err := r.runStep(ctx, step, rep.Vars, &res)
		res.Duration = time.Since(stepStart)
		if err != nil {
			res.Err = err
			res.Error = err.Error()
		}
		rep.Steps = append(rep.Steps, res)

		if err != nil {
			rep.Duration = time.Since(start)
			stepErr := &StepError{Index: res.Index, Action: res.Action, Err: err}
			log.Error("flow failed", zap.Int("step", res.Index), zap.String("action", res.Action), zap.Error(err))
			r.notifier.NotifyError(ctx, fmt.Sprintf("%s [%s] failed at %v", f.Name, rep.RunID, stepErr))
			return rep, stepErr
		}

		log.Debug("step done",
			zap.Int("step", res.Index),
			zap.String("action", res.Action),
			zap.String("target", res.Target),
			zap.Duration("took", res.Duration))
	}

	rep.Duration = time.Since(start)
	log.Info("flow finished", zap.Duration("took", rep.Duration))
	r.notifier.NotifySuccess(ctx, notify.CodeBlock(rep.Summary()))
	return rep, nil
}

func (r *Runner) runStep(ctx context.Context, s *Step, vars map[string]string, res *StepResult) error {
	x := expander{vars: vars}

	switch {
	case s.WaitIframe != nil:
		id := iframeOrDefault(x.expand(s.WaitIframe.Iframe))
		res.Target = id
		if x.err != nil {
			return x.err
		}
		return r.bridge.Locator().WaitForIframe(ctx, id)

	case s.WaitDynamicIframe != nil:
		partial := x.expand(s.WaitDynamicIframe.Partial)
		res.Target = "*" + partial + "*"
		if x.err != nil {
			return x.err
		}
		id, err := r.bridge.Locator().WaitForDynamicIframeID(ctx, partial)
		if err != nil {
			return err
		}
		res.Output = id
		if s.WaitDynamicIframe.As != "" {
			vars[s.WaitDynamicIframe.As] = id
		}
		return nil

	case s.Fill != nil:
		frame, el := x.target(s.Fill.Target)
		value := x.expand(s.Fill.Value)
		res.Target = frame + " > " + el
		if x.err != nil {
			return x.err
		}
		return r.bridge.Fill(ctx, frame, el, value)

	case s.Type != nil:
		frame, el := x.target(s.Type.Target)
		value := x.expand(s.Type.Value)
		res.Target = frame + " > " + el
		if x.err != nil {
			return x.err
		}
		return r.bridge.Type(ctx, frame, el, value)

	case s.Click != nil:
		frame, el := x.target(*s.Click)
		res.Target = frame + " > " + el
		if x.err != nil {
			return x.err
		}
		return r.bridge.Click(ctx, frame, el)

	case s.GetValue != nil:
		frame, el := x.target(s.GetValue.Target)
		res.Target = frame + " > " + el
		if x.err != nil {
			return x.err
		}
		v, err := r.bridge.GetValue(ctx, frame, el)
		if err != nil {
			return err
		}
		res.Output = redact.Value(el, v)
		if s.GetValue.As != "" {
			vars[s.GetValue.As] = v
		}
		return nil

	case s.Notify != nil:
		msg := x.expand(s.Notify.Message)
		if x.err != nil {
			return x.err
		}
		switch s.Notify.Format {
		case FormatCode:
			msg = notify.CodeBlock(msg)
		case FormatMarkdown:
			msg = notify.MarkdownBlock(msg)
		}
		r.notifier.Notify(ctx, msg)
		return nil

	case s.Alert != nil:
		title, body := x.expand(s.Alert.Title), x.expand(s.Alert.Body)
		if x.err != nil {
			return x.err
		}
		if r.alerter == nil {
			res.Output = "skipped"
			return nil
		}
		perm, err := r.alerter.Show(ctx, title, body)
		if err != nil {
			// alerts are best effort
			r.log.Warn("alert failed", zap.Error(err))
			res.Output = "failed"
			return nil
		}
		res.Output = string(perm)
		return nil
	}
	return fmt.Errorf("no action")
}

// Summary renders the report as one line per step.
func (rep *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) %d step(s) in %s\n", rep.Name, rep.RunID, len(rep.Steps), rep.Duration.Round(time.Millisecond))
	for _, s := range rep.Steps {
		status := "ok"
		if s.Err != nil {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "%2d. %-19s %-6s %s", s.Index, s.Action, status, s.Target)
		if s.Output != "" {
			fmt.Fprintf(&b, " = %s", s.Output)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expander substitutes ${name} references and keeps the first undefined
// one as err.
type expander struct {
	vars map[string]string
	err  error
}

func (x *expander) expand(s string) string {
	return varRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		v, ok := x.vars[name]
		if !ok && x.err == nil {
			x.err = fmt.Errorf("undefined variable %q", name)
		}
		return v
	})
}

func (x *expander) target(t Target) (frame, element string) {
	frame = iframeOrDefault(x.expand(t.Iframe))
	element = strings.TrimPrefix(x.expand(t.Element), "#")
	return frame, element
}

package flow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/grez-lucas/iframe-bridge/internal/alert"
	"github.com/grez-lucas/iframe-bridge/internal/dom/domtest"
	"github.com/grez-lucas/iframe-bridge/internal/iframe"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *fakeNotifier) add(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *fakeNotifier) Notify(_ context.Context, msg string)        { n.add(msg) }
func (n *fakeNotifier) NotifySuccess(_ context.Context, msg string) { n.add("success: " + msg) }
func (n *fakeNotifier) NotifyError(_ context.Context, msg string)   { n.add("error: " + msg) }

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type fakeAlerter struct {
	calls [][2]string
	perm  alert.Permission
	err   error
}

func (a *fakeAlerter) Show(_ context.Context, title, body string) (alert.Permission, error) {
	a.calls = append(a.calls, [2]string{title, body})
	return a.perm, a.err
}

// portal is the enrolment page: a content frame plus a modal frame that
// appears on the third scan.
type portal struct {
	top    *domtest.Document
	name   *domtest.Element
	code   *domtest.Element
	save   *domtest.Element
	status *domtest.Element
}

func newPortal() *portal {
	p := &portal{
		name:   domtest.Input("name", ""),
		code:   domtest.Input("code", ""),
		save:   domtest.Button("ICSave", "OK"),
		status: domtest.Text("span", "status", "Enrolled"),
	}
	content := domtest.NewDocument(p.name, p.code, p.status)
	p.top = domtest.NewDocument(domtest.Iframe(iframe.DefaultIframeID, content))
	p.top.BeforeScan(3, func(d *domtest.Document) {
		d.Append(domtest.Iframe("ptModFrame_3", domtest.NewDocument(p.save)))
	})
	return p
}

func newRunner(t *testing.T, p *portal, timeout time.Duration, opts ...RunnerOption) *Runner {
	t.Helper()
	b := iframe.NewBridge(p.top,
		iframe.WithInterval(time.Millisecond),
		iframe.WithTimeout(timeout),
		iframe.WithLogger(zaptest.NewLogger(t)),
	)
	return NewRunner(b, append([]RunnerOption{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

func TestRun_Enrol(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "enrol.yaml"))
	require.NoError(t, err)

	p := newPortal()
	n := &fakeNotifier{}
	a := &fakeAlerter{perm: alert.Granted}
	r := newRunner(t, p, time.Second, WithNotifier(n), WithAlerter(a))

	rep, err := r.Run(context.Background(), f)

	require.NoError(t, err)
	_, uuidErr := uuid.Parse(rep.RunID)
	assert.NoError(t, uuidErr)
	assert.Equal(t, "enrol", rep.Name)
	require.Len(t, rep.Steps, 8)

	assert.Equal(t, "Alice", p.name.CurrentValue())
	assert.Equal(t, "1234", p.code.CurrentValue())
	assert.Equal(t, 1, p.save.Count(domtest.OpClick, ""))

	assert.Equal(t, map[string]string{
		"student": "Alice",
		"modal":   "ptModFrame_3",
		"status":  "Enrolled",
	}, rep.Vars)
	assert.Equal(t, "*ptModFrame_*", rep.Steps[1].Target)
	assert.Equal(t, "ptModFrame_3", rep.Steps[1].Output)
	assert.Equal(t, "ptModFrame_3 > ICSave", rep.Steps[4].Target)
	assert.Equal(t, "ptifrmtgtframe > code", rep.Steps[3].Target)
	assert.Equal(t, "granted", rep.Steps[7].Output)
	assert.Equal(t, [][2]string{{"Done", "Enrolled"}}, a.calls)

	msgs := n.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "```\nstatus Enrolled```", msgs[0])
	assert.True(t, strings.HasPrefix(msgs[1], "success: ```\nenrol ("+rep.RunID+") 8 step(s)"), msgs[1])
	assert.Contains(t, msgs[1], "get_value")
	assert.Contains(t, msgs[1], "= Enrolled")
}

func TestRun_StopsAtFailingStep(t *testing.T) {
	f, err := ParseBytes([]byte(`
name: broken
steps:
  - fill: {element: name, value: Bob}
  - click: {element: missing}
  - fill: {element: code, value: "9"}
`))
	require.NoError(t, err)

	p := newPortal()
	n := &fakeNotifier{}
	r := newRunner(t, p, 20*time.Millisecond, WithNotifier(n))

	rep, err := r.Run(context.Background(), f)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 2, stepErr.Index)
	assert.Equal(t, ActionClick, stepErr.Action)
	assert.ErrorIs(t, err, iframe.ErrNotFoundWithinDeadline)

	require.Len(t, rep.Steps, 2)
	assert.NoError(t, rep.Steps[0].Err)
	assert.Error(t, rep.Steps[1].Err)
	assert.Empty(t, p.code.Events(), "steps after the failure must not run")
	assert.Contains(t, rep.Summary(), "FAILED")

	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0], "error: broken ["+rep.RunID+"] failed at step 2 (click)"), msgs[0])
}

func TestRun_UndefinedVariable(t *testing.T) {
	f, err := ParseBytes([]byte("steps:\n  - fill: {element: name, value: \"${nope}\"}"))
	require.NoError(t, err)

	p := newPortal()
	r := newRunner(t, p, time.Second)

	_, err = r.Run(context.Background(), f)

	assert.ErrorContains(t, err, `undefined variable "nope"`)
	assert.Empty(t, p.name.Events())
	assert.Zero(t, p.top.Scans())
}

func TestRun_AlertIsBestEffort(t *testing.T) {
	f, err := ParseBytes([]byte("steps:\n  - alert: {title: hi}"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		alerter Alerter
		want    string
	}{
		{"no alerter", nil, "skipped"},
		{"denied", &fakeAlerter{perm: alert.Denied}, "denied"},
		{"eval fails", &fakeAlerter{err: errors.New("target closed")}, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []RunnerOption
			if tt.alerter != nil {
				opts = append(opts, WithAlerter(tt.alerter))
			}
			r := newRunner(t, newPortal(), time.Second, opts...)

			rep, err := r.Run(context.Background(), f)

			require.NoError(t, err)
			assert.Equal(t, tt.want, rep.Steps[0].Output)
		})
	}
}

func TestRun_RedactsSensitiveOutput(t *testing.T) {
	f, err := ParseBytes([]byte("steps:\n  - get_value: {element: password, as: pw}"))
	require.NoError(t, err)

	content := domtest.NewDocument(domtest.Input("password", "hunter2"))
	p := &portal{top: domtest.NewDocument(domtest.Iframe(iframe.DefaultIframeID, content))}
	r := newRunner(t, p, time.Second)

	rep, err := r.Run(context.Background(), f)

	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", rep.Steps[0].Output)
	assert.Equal(t, "hunter2", rep.Vars["pw"])
}

func TestRun_Cancelled(t *testing.T) {
	f, err := ParseBytes([]byte("steps:\n  - wait_iframe: {iframe: never}"))
	require.NoError(t, err)

	r := newRunner(t, newPortal(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = r.Run(ctx, f)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

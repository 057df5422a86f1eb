package iframe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grez-lucas/iframe-bridge/internal/dom"
	"github.com/grez-lucas/iframe-bridge/internal/dom/domtest"
)

// page builds a top-level document with one iframe "f1" holding els.
func page(els ...*domtest.Element) (*domtest.Document, *domtest.Document) {
	inner := domtest.NewDocument(els...)
	outer := domtest.NewDocument(domtest.Iframe("f1", inner))
	return outer, inner
}

func TestGetValue_ValueTakesPrecedence(t *testing.T) {
	in := domtest.Input("name", "Alice")
	outer, _ := page(in)
	b := NewBridge(outer, testOptions(t)...)

	got, err := b.GetValue(context.Background(), "f1", "name")

	require.NoError(t, err)
	assert.Equal(t, "Alice", got)
}

func TestGetValue_FallsBackToText(t *testing.T) {
	tests := []struct {
		name string
		el   *domtest.Element
		want string
	}{
		{"display element", domtest.Text("span", "status", "Enrolled"), "Enrolled"},
		{"empty input value", domtest.Input("status", ""), ""},
		{"empty everything", domtest.Text("div", "status", ""), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outer, _ := page(tt.el)
			b := NewBridge(outer, testOptions(t)...)

			got, err := b.GetValue(context.Background(), "f1", "status")

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetValue_WaitsUntilIframeAndElementCoexist(t *testing.T) {
	frame := domtest.Iframe("f1", nil)
	outer := domtest.NewDocument()
	inner := domtest.NewDocument()

	// scan 2: iframe exists but has no document yet
	outer.BeforeScan(2, func(d *domtest.Document) { d.Append(frame) })
	// scan 3: document loaded, element still missing
	outer.BeforeScan(3, func(*domtest.Document) { frame.SetContent(inner) })
	// scan 5: element rendered
	outer.BeforeScan(5, func(*domtest.Document) {
		inner.Append(domtest.Text("span", "total", "42.00"))
	})

	b := NewBridge(outer, testOptions(t)...)
	got, err := b.GetValue(context.Background(), "f1", "total")

	require.NoError(t, err)
	assert.Equal(t, "42.00", got)
	assert.Equal(t, 5, outer.Scans())
	assert.Equal(t, 3, inner.Scans())
}

func TestGetValue_ElementInOtherIframeIsIgnored(t *testing.T) {
	other := domtest.NewDocument(domtest.Input("name", "Mallory"))
	outer := domtest.NewDocument(
		domtest.Iframe("f2", other),
		domtest.Iframe("f1", domtest.NewDocument()),
	)
	b := NewBridge(outer, testOptions(t, WithTimeout(20*time.Millisecond))...)

	_, err := b.GetValue(context.Background(), "f1", "name")

	assert.ErrorIs(t, err, ErrNotFoundWithinDeadline)

	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, "GetValue", resolveErr.Operation)
	assert.Equal(t, "name", resolveErr.Element)
}

func TestFill_EventOrder(t *testing.T) {
	in := domtest.Input("name", "")
	outer, _ := page(in)
	b := NewBridge(outer, testOptions(t)...)

	err := b.Fill(context.Background(), "f1", "name", "Alice")

	require.NoError(t, err)
	assert.Equal(t, "Alice", in.CurrentValue())
	assert.Equal(t, []string{
		"name:focus",
		`name:set-value="Alice"`,
		"name:input",
		"name:change",
		"name:blur",
	}, in.EventStrings())
	assert.Equal(t, 1, in.Count(domtest.OpDispatch, dom.EventInput))
	assert.Equal(t, 1, in.Count(domtest.OpDispatch, dom.EventChange))

	for _, e := range in.Events() {
		if e.Op == domtest.OpDispatch {
			assert.True(t, e.Bubbles, "%s should bubble", e.Detail)
		}
	}
}

func TestFill_OverwritesPriorValue(t *testing.T) {
	in := domtest.Input("name", "Bob")
	outer, _ := page(in)
	b := NewBridge(outer, testOptions(t)...)

	require.NoError(t, b.Fill(context.Background(), "f1", "name", "Alice"))

	assert.Equal(t, "Alice", in.CurrentValue())
	assert.Len(t, in.Events(), 5)
}

func TestFill_NonFormControlIsTypeMismatch(t *testing.T) {
	div := domtest.Text("div", "name", "")
	outer, _ := page(div)
	b := NewBridge(outer, testOptions(t)...)

	err := b.Fill(context.Background(), "f1", "name", "Alice")

	require.ErrorIs(t, err, ErrElementTypeMismatch)
	assert.Empty(t, div.Events(), "nothing may be touched before the type check")
	assert.Equal(t, 1, outer.Scans(), "mismatch is terminal")
}

func TestFill_RetriesWhenFrameIsReplacedBeforeWrite(t *testing.T) {
	stale := domtest.Input("name", "").Fail(domtest.OpFocus, dom.ErrStale)
	outer, _ := page(stale)

	fresh := domtest.Input("name", "")
	outer.BeforeScan(2, func(d *domtest.Document) {
		d.Remove("f1")
		d.Append(domtest.Iframe("f1", domtest.NewDocument(fresh)))
	})

	b := NewBridge(outer, testOptions(t)...)
	err := b.Fill(context.Background(), "f1", "name", "Alice")

	require.NoError(t, err)
	assert.Empty(t, stale.Events())
	assert.Equal(t, "Alice", fresh.CurrentValue())
	assert.Len(t, fresh.Events(), 5)
	assert.Equal(t, 2, outer.Scans())
}

func TestFill_StaleAfterWriteIsNotReplayed(t *testing.T) {
	tests := []struct {
		name    string
		input   func() *domtest.Element
		wantErr bool
		events  []string
	}{
		{
			name:    "stale after set-value",
			input:   func() *domtest.Element { return domtest.Input("name", "").FailAfter(domtest.OpSetValue, dom.ErrStale) },
			wantErr: true,
			events:  []string{"name:focus", `name:set-value="Alice"`},
		},
		{
			name:    "stale after input event",
			input:   func() *domtest.Element { return domtest.Input("name", "").FailAfter(domtest.OpDispatch, dom.ErrStale) },
			wantErr: true,
			events:  []string{"name:focus", `name:set-value="Alice"`, "name:input"},
		},
		{
			// the change handler replaced the frame; the write already landed
			name:   "stale on blur",
			input:  func() *domtest.Element { return domtest.Input("name", "").Fail(domtest.OpBlur, dom.ErrStale) },
			events: []string{"name:focus", `name:set-value="Alice"`, "name:input", "name:change"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input()
			outer, _ := page(in)
			b := NewBridge(outer, testOptions(t)...)

			err := b.Fill(context.Background(), "f1", "name", "Alice")

			if tt.wantErr {
				assert.ErrorIs(t, err, dom.ErrStale)
				assert.NotErrorIs(t, err, ErrNotFoundWithinDeadline)
			} else {
				require.NoError(t, err)
			}
			time.Sleep(10 * testInterval)
			assert.Equal(t, tt.events, in.EventStrings())
			assert.LessOrEqual(t, in.Count(domtest.OpDispatch, dom.EventChange), 1)
			assert.Equal(t, 1, outer.Scans())
		})
	}
}

func TestFill_DriverErrorIsTerminal(t *testing.T) {
	boom := errors.New("cdp: connection reset")
	in := domtest.Input("name", "").Fail(domtest.OpDispatch, boom)
	outer, _ := page(in)
	b := NewBridge(outer, testOptions(t)...)

	err := b.Fill(context.Background(), "f1", "name", "Alice")

	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "dispatch input")
	assert.Equal(t, 1, outer.Scans())
}

func TestClick_ExactlyOnce(t *testing.T) {
	btn := domtest.Button("save", "Save")
	outer, _ := page(btn)
	b := NewBridge(outer, testOptions(t)...)

	require.NoError(t, b.Click(context.Background(), "f1", "save"))

	// Give a stray ticker the chance to fire again.
	time.Sleep(10 * testInterval)
	assert.Equal(t, 1, btn.Count(domtest.OpClick, ""))
	assert.Equal(t, 1, outer.Scans())
}

func TestClick_StaleAfterClickIsNotReplayed(t *testing.T) {
	btn := domtest.Button("next", "Next").FailAfter(domtest.OpClick, dom.ErrStale)
	outer, _ := page(btn)
	b := NewBridge(outer, testOptions(t)...)

	err := b.Click(context.Background(), "f1", "next")

	assert.ErrorIs(t, err, dom.ErrStale)
	time.Sleep(10 * testInterval)
	assert.Equal(t, 1, btn.Count(domtest.OpClick, ""))
	assert.Equal(t, 1, outer.Scans())
}

func TestType_StaleAfterTypingIsNotReplayed(t *testing.T) {
	in := domtest.Input("code", "").FailAfter(domtest.OpType, dom.ErrStale)
	outer, _ := page(in)
	b := NewBridge(outer, testOptions(t)...)

	err := b.Type(context.Background(), "f1", "code", "12")

	assert.ErrorIs(t, err, dom.ErrStale)
	assert.Equal(t, "12", in.CurrentValue())
	assert.Equal(t, 1, in.Count(domtest.OpType, ""))
	assert.Equal(t, 1, outer.Scans())
}

func TestClick_WaitsForButton(t *testing.T) {
	btn := domtest.Button("save", "Save")
	outer, inner := page()
	outer.BeforeScan(4, func(*domtest.Document) { inner.Append(btn) })
	b := NewBridge(outer, testOptions(t)...)

	require.NoError(t, b.Click(context.Background(), "f1", "save"))

	assert.Equal(t, 1, btn.Count(domtest.OpClick, ""))
	assert.Equal(t, 4, outer.Scans())
}

func TestType_UsesKeyboard(t *testing.T) {
	in := domtest.Input("code", "")
	outer, _ := page(in)
	b := NewBridge(outer, testOptions(t)...)

	require.NoError(t, b.Type(context.Background(), "f1", "code", "1234"))

	assert.Equal(t, "1234", in.CurrentValue())
	assert.Equal(t, []string{"code:focus", `code:type="1234"`, "code:blur"}, in.EventStrings())
}

func TestType_WithoutKeyboardIsTypeMismatch(t *testing.T) {
	in := domtest.Input("code", "").WithoutKeyboard()
	outer, _ := page(in)
	b := NewBridge(outer, testOptions(t)...)

	err := b.Type(context.Background(), "f1", "code", "1234")

	assert.ErrorIs(t, err, ErrElementTypeMismatch)
	assert.ErrorIs(t, err, dom.ErrUnsupported)
}

func TestBridge_ConcurrentOperationsAreIndependent(t *testing.T) {
	name := domtest.Input("name", "")
	total := domtest.Text("span", "total", "")
	outer, inner := page(name)
	outer.BeforeScan(6, func(*domtest.Document) { inner.Append(total) })
	b := NewBridge(outer, testOptions(t)...)

	type result struct {
		value string
		err   error
	}
	read := make(chan result, 1)
	go func() {
		v, err := b.GetValue(context.Background(), "f1", "total")
		read <- result{v, err}
	}()

	require.NoError(t, b.Fill(context.Background(), "f1", "name", "Alice"))

	r := <-read
	require.NoError(t, r.err)
	assert.Equal(t, "", r.value)
	assert.Equal(t, "Alice", name.CurrentValue())
}

package browser

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Spok95/spendguard/internal/infra/metrics"
	"github.com/Spok95/spendguard/internal/messaging"
	"github.com/Spok95/spendguard/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sent struct {
	action messaging.Action
	id     string
}

type fakeOutbox struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeOutbox) Send(_ context.Context, action messaging.Action, _ messaging.Sender, payload any) (messaging.Reply, error) {
	req, _ := payload.(messaging.RemovedRequest)
	f.mu.Lock()
	f.sent = append(f.sent, sent{action: action, id: req.ID})
	f.mu.Unlock()
	return messaging.OK(nil), nil
}

func (f *fakeOutbox) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestWatcher(t *testing.T, patterns ...string) (*Watcher, *fakeOutbox, *Popups) {
	t.Helper()
	res, err := CompilePatterns(patterns)
	require.NoError(t, err)
	out := &fakeOutbox{}
	popups := NewPopups(nil, "http://localhost:8000", 400, 350, discard())
	w := NewWatcher(WatcherDeps{
		Log:      discard(),
		Bus:      out,
		Tabs:     messaging.NewTabs(),
		Popups:   popups,
		Patterns: res,
		Metrics:  metrics.New(prometheus.NewRegistry()),
	})
	return w, out, popups
}

func TestCompilePatterns(t *testing.T) {
	res, err := CompilePatterns([]string{`^https://www\.amazon\.com/gp/buy/`, `/checkout/spc`})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	_, err = CompilePatterns([]string{`(unclosed`})
	assert.ErrorContains(t, err, "(unclosed")
}

func TestIsCheckout(t *testing.T) {
	w, _, _ := newTestWatcher(t, `^https://www\.amazon\.com/gp/buy/`, `/checkout/spc`)

	assert.True(t, w.isCheckout("https://www.amazon.com/gp/buy/spc/handlers/display.html"))
	assert.True(t, w.isCheckout("https://www.amazon.com/checkout/spc?pipelineType=Chewbacca"))
	assert.False(t, w.isCheckout("https://www.amazon.com/gp/cart/view.html"))
	assert.False(t, w.isCheckout("http://localhost:8000/confirm?window=abc"))
}

func TestConsiderIgnoresNonPages(t *testing.T) {
	w, _, _ := newTestWatcher(t, `/checkout`)

	w.consider(context.Background(), &proto.TargetTargetInfo{
		TargetID: "sw-1",
		Type:     "service_worker",
		URL:      "https://shop.example/checkout",
	})
	w.consider(context.Background(), nil)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Empty(t, w.attached)
}

func TestDestroyedPopupReportsWindow(t *testing.T) {
	w, out, popups := newTestWatcher(t, `/checkout`)
	popups.targets["tok-1"] = "target-9"
	popups.byTarget["target-9"] = "tok-1"

	var closed []string
	w.d.OnWindowClosed = func(win string) { closed = append(closed, win) }

	assert.True(t, popups.IsPopup("target-9"))
	w.destroyed(context.Background(), "target-9")
	w.wg.Wait()

	assert.Equal(t, []string{"tok-1"}, closed)
	assert.Equal(t, []sent{{action: messaging.ActionWindowRemoved, id: "tok-1"}}, out.all())
	assert.False(t, popups.IsPopup("target-9"))
}

func TestDestroyedTabReportsTab(t *testing.T) {
	w, out, _ := newTestWatcher(t, `/checkout`)

	w.destroyed(context.Background(), "tab-3")
	w.wg.Wait()

	assert.Equal(t, []sent{{action: messaging.ActionTabRemoved, id: "tab-3"}}, out.all())
}

func TestDestroyedDetachesPendingAttachment(t *testing.T) {
	w, out, _ := newTestWatcher(t, `/checkout`)
	cancelled := false
	w.attached["tab-5"] = &attachment{cancel: func() { cancelled = true }}

	w.destroyed(context.Background(), "tab-5")
	w.wg.Wait()

	assert.True(t, cancelled)
	w.mu.Lock()
	assert.NotContains(t, w.attached, proto.TargetTargetID("tab-5"))
	w.mu.Unlock()
	assert.Equal(t, []sent{{action: messaging.ActionTabRemoved, id: "tab-5"}}, out.all())
}

func TestPopupsForgetUnknown(t *testing.T) {
	p := NewPopups(nil, "http://localhost:8000", 0, 0, discard())

	_, ok := p.Forget("nope")
	assert.False(t, ok)

	err := p.Close(context.Background(), session.WindowID("missing"))
	assert.ErrorIs(t, err, ErrUnknownWindow)
}

func TestInterceptedMetric(t *testing.T) {
	w, _, _ := newTestWatcher(t, `/checkout`)

	w.intercepted("timeout")
	w.intercepted("timeout")
	w.intercepted("intercepted")

	assert.Equal(t, 2.0, testutil.ToFloat64(w.d.Metrics.Intercepts.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.d.Metrics.Intercepts.WithLabelValues("intercepted")))
}

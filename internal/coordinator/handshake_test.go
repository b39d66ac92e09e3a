package coordinator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/spendguard/internal/infra/metrics"
	"github.com/Spok95/spendguard/internal/messaging"
	"github.com/Spok95/spendguard/internal/scanner"
)

const checkoutPage = `<html><body>
  <div class="a-box lineitem-container">
    <span class="item-name">USB cable</span>
    <span class="item-price">$9.99</span>
    <span class="item-qty">1</span>
  </div>
  <div class="total">$49.99</div>
  <button id="placeOrder">Place your order</button>
</body></html>`

// checkoutDoc статическая страница, которая запоминает нашу кнопку,
// нажатия настоящей и показанные пользователю сообщения.
type checkoutDoc struct {
	*scanner.HTMLDocument

	mu       sync.Mutex
	activate func()
	clicks   int
	alerts   []string
}

func (d *checkoutDoc) Substitute(original scanner.Element, label string, activate func()) error {
	d.mu.Lock()
	d.activate = activate
	d.mu.Unlock()
	return d.HTMLDocument.Substitute(original, label, activate)
}

func (d *checkoutDoc) Trigger(original scanner.Element) error {
	d.mu.Lock()
	d.clicks++
	d.mu.Unlock()
	return d.HTMLDocument.Trigger(original)
}

func (d *checkoutDoc) Alert(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, msg)
}

func (d *checkoutDoc) press() bool {
	d.mu.Lock()
	fn := d.activate
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (d *checkoutDoc) state() (clicks int, alerts []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clicks, append([]string(nil), d.alerts...)
}

// Полный цикл: кнопка-заменитель -> окно -> данные -> подтверждение ->
// настоящая кнопка -> запись траты.
func TestHandshakeEndToEnd(t *testing.T) {
	log := discardLogger()
	bus := messaging.NewBus(log, 2*time.Second)
	tabs := messaging.NewTabs()
	store := newStore()
	windows := newWindows()

	c := New(Deps{
		Log:     log,
		Store:   store,
		Windows: windows,
		Tabs:    tabs,
		Loop:    bus,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Clock:   clockwork.NewRealClock(),
	})
	c.Register(bus)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = bus.Run(ctx)
		close(stopped)
	}()

	page, err := scanner.ParseHTML(strings.NewReader(checkoutPage))
	require.NoError(t, err)
	doc := &checkoutDoc{HTMLDocument: page}
	sc := scanner.New("tab-1", doc, bus, scanner.Config{
		CheckoutSelectors: []string{"#placeOrder"},
		TotalSelectors:    []string{".total"},
		Items: scanner.ItemSelectors{
			Name:      ".item-name",
			Container: ".lineitem-container",
			Price:     ".item-price",
			Quantity:  ".item-qty",
		},
		ObserveTimeout: time.Second,
	}, clockwork.NewRealClock(), log)
	tabs.Register("tab-1", sc)

	defer func() {
		sc.Close()
		cancel()
		<-stopped
		c.Close()
	}()

	require.NoError(t, sc.Intercept(context.Background()))
	require.True(t, doc.press())
	_, alerts := doc.state()
	assert.Empty(t, alerts)

	r, err := bus.Send(context.Background(), messaging.ActionGetPopupData, messaging.Sender{WindowID: "w1"}, nil)
	require.NoError(t, err)
	require.True(t, r.Success, r.Error)
	var data messaging.PopupData
	require.NoError(t, r.Decode(&data))
	assert.Equal(t, "tab-1", data.TabID)
	assert.Equal(t, "49.99", data.OrderTotal.String())
	require.Len(t, data.Items, 1)
	assert.Equal(t, "USB cable", data.Items[0].Name)

	r, err = bus.Send(context.Background(), messaging.ActionConfirmOrder, messaging.Sender{WindowID: "w1"}, messaging.DecisionRequest{TabID: data.TabID})
	require.NoError(t, err)
	require.True(t, r.Success, r.Error)

	require.Eventually(t, func() bool { return len(store.recordsCopy()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "49.99", store.recordsCopy()[0].total.String())
	assert.Equal(t, scanner.StateActionTriggered, sc.State())

	clicks, _ := doc.state()
	assert.Equal(t, 1, clicks)
}

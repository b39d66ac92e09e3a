package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Spok95/spendguard/internal/messaging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadFixture(t *testing.T) *HTMLDocument {
	t.Helper()
	f, err := os.Open("testdata/checkout.html")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	doc, err := ParseHTML(f)
	require.NoError(t, err)
	return doc
}

func parse(t *testing.T, src string) *HTMLDocument {
	t.Helper()
	doc, err := ParseHTML(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func testConfig() Config {
	return Config{
		CheckoutSelectors: []string{`#placeYourOrder input[type="submit"]`, `input[name="placeYourOrder1"]`},
		TotalSelectors:    []string{"div.order-summary-line-definition"},
		TotalLastMatch:    true,
		Items: ItemSelectors{
			Name:      `span[data-csa-c-slot-id="checkout-item-block-itemPrimaryTitle"]`,
			Title:     "span.lineitem-title-text",
			Container: "div.a-box.lineitem-container",
			Price:     "span.lineitem-price-text",
			Quantity:  "span.quantity-display",
		},
		Classifier:     Classifier{Keywords: []string{"diaper", "detergent"}},
		ObserveTimeout: 20 * time.Second,
		SettleDelay:    100 * time.Millisecond,
		TriggerDelay:   50 * time.Millisecond,
	}
}

type sent struct {
	action messaging.Action
	from   messaging.Sender
	order  messaging.OrderSnapshot
}

type fakeOutbox struct {
	mu    sync.Mutex
	sent  []sent
	reply messaging.Reply
	err   error
	ch    chan sent
}

func newOutbox() *fakeOutbox {
	return &fakeOutbox{reply: messaging.OK(nil), ch: make(chan sent, 8)}
}

func (f *fakeOutbox) Send(_ context.Context, action messaging.Action, from messaging.Sender, payload any) (messaging.Reply, error) {
	s := sent{action: action, from: from}
	if o, ok := payload.(messaging.OrderSnapshot); ok {
		s.order = o
	}
	f.mu.Lock()
	f.sent = append(f.sent, s)
	f.mu.Unlock()
	f.ch <- s
	return f.reply, f.err
}

func TestLocateKeepsSelectorPriority(t *testing.T) {
	doc := parse(t, `<body>
		<button id="second">B</button>
		<button id="first">A</button>
	</body>`)

	el, err := Locate(doc, []string{"#first", "#second"})
	require.NoError(t, err)
	assert.Equal(t, "A", el.Text())

	el, err = Locate(doc, []string{"#second", "#first"})
	require.NoError(t, err)
	assert.Equal(t, "B", el.Text())
}

func TestLocateSkipsHiddenAndInvalid(t *testing.T) {
	doc := parse(t, `<body>
		<div style="display: none"><button class="buy">hidden</button></div>
		<button class="buy" hidden>hidden too</button>
		<button class="alt">visible</button>
	</body>`)

	el, err := Locate(doc, []string{"[[broken", ".buy", ".alt"})
	require.NoError(t, err)
	assert.Equal(t, "visible", el.Text())

	_, err = Locate(doc, []string{".missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocateLast(t *testing.T) {
	doc := loadFixture(t)
	el, err := LocateLast(doc, []string{"div.order-summary-line-definition"})
	require.NoError(t, err)
	assert.Equal(t, "$1,234.56", el.Text())
}

func TestExtractAmount(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"$1,234.56 (per unit)", "1234.56"},
		{"  $10.49 ($0.37 / Fl Oz)", "10.49"},
		{"Total: USD 5", "5"},
		{"£7.5", "7.5"},
		{"99.99 €", "99.99"},
		{"12,000 JPY", "12000"},
		{"CAD 1,000,000.00", "1000000"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, err := ExtractAmount(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}

	for _, text := range []string{"", "free", "1234.56", "price unavailable"} {
		_, err := ExtractAmount(text)
		assert.ErrorIs(t, err, ErrUnparseable, text)
	}
}

func TestExtractLineItems(t *testing.T) {
	doc := loadFixture(t)
	items := ExtractLineItems(doc, testConfig().Items)

	require.Len(t, items, 2)
	assert.Equal(t, "Baby Diapers, Size 3", items[0].Name)
	require.NotNil(t, items[0].Price)
	assert.Equal(t, "29.99", items[0].Price.String())
	assert.Equal(t, 2, items[0].Quantity)

	assert.Equal(t, "Laundry Detergent", items[1].Name)
	assert.Nil(t, items[1].Price)
	assert.Equal(t, 1, items[1].Quantity)
}

func TestParseQuantity(t *testing.T) {
	assert.Equal(t, 3, parseQuantity(" 3 "))
	assert.Equal(t, 12, parseQuantity("12 items"))
	assert.Equal(t, 1, parseQuantity("Qty"))
	assert.Equal(t, 1, parseQuantity("0"))
	assert.Equal(t, 1, parseQuantity("-2"))
}

func TestClassifier(t *testing.T) {
	c := Classifier{Keywords: []string{"Diaper"}}
	assert.True(t, c.Essential([]messaging.LineItem{{Name: "baby diapers"}}))
	assert.False(t, c.Essential([]messaging.LineItem{{Name: "baby diapers"}, {Name: "game console"}}))
	assert.False(t, c.Essential(nil))
	assert.False(t, Classifier{}.Essential([]messaging.LineItem{{Name: "diapers"}}))
}

func TestSnapshot(t *testing.T) {
	order, err := Snapshot(loadFixture(t), testConfig())
	require.NoError(t, err)
	assert.Equal(t, "1234.56", order.Total.String())
	assert.Len(t, order.Items, 2)
	assert.True(t, order.Essential)
}

func TestInterceptImmediately(t *testing.T) {
	doc := loadFixture(t)
	s := New("tab-1", doc, newOutbox(), testConfig(), clockwork.NewFakeClock(), discardLogger())
	defer s.Close()

	require.NoError(t, s.Intercept(context.Background()))
	assert.Equal(t, StateIntercepted, s.State())

	// оригинал скрыт и выключен, но не удалён
	orig, err := doc.QueryAll(`#placeYourOrder input[type="submit"]`)
	require.NoError(t, err)
	require.Len(t, orig, 1)
	assert.False(t, orig[0].Visible())
	sub, err := doc.QueryAll("#" + SubstituteID)
	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Equal(t, DefaultLabel, sub[0].Text())

	err = s.Intercept(context.Background())
	assert.ErrorIs(t, err, ErrState)
}

func TestInterceptWaitsForMutations(t *testing.T) {
	doc := parse(t, `<body><div id="root"></div></body>`)
	clock := clockwork.NewFakeClock()
	s := New("tab-1", doc, newOutbox(), testConfig(), clock, discardLogger())
	defer s.Close()

	errc := make(chan error, 1)
	go func() { errc <- s.Intercept(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	// только кнопка, суммы ещё нет, ждём дальше
	require.NoError(t, doc.Append("#root", `<div id="placeYourOrder"><input type="submit"></div>`))
	require.NoError(t, doc.Append("#root", `<div class="order-summary-line-definition">$49.99</div>`))

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("intercept did not finish")
	}
	assert.Equal(t, StateIntercepted, s.State())
}

func TestInterceptGivesUpAfterTimeout(t *testing.T) {
	doc := parse(t, `<body><div id="root"></div></body>`)
	clock := clockwork.NewFakeClock()
	s := New("tab-1", doc, newOutbox(), testConfig(), clock, discardLogger())
	defer s.Close()

	errc := make(chan error, 1)
	go func() { errc <- s.Intercept(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(20 * time.Second)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrObserveTimeout)
	case <-time.After(time.Second):
		t.Fatal("intercept did not give up")
	}
	assert.Equal(t, StateIdle, s.State())
}

func TestReviewSendsSnapshot(t *testing.T) {
	doc := loadFixture(t)
	clock := clockwork.NewFakeClock()
	out := newOutbox()
	s := New("tab-1", doc, out, testConfig(), clock, discardLogger())
	defer s.Close()
	require.NoError(t, s.Intercept(context.Background()))

	errc := make(chan error, 1)
	go func() { errc <- s.Review(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(100 * time.Millisecond)

	require.NoError(t, <-errc)
	got := <-out.ch
	assert.Equal(t, messaging.ActionShowConfirmation, got.action)
	assert.Equal(t, "tab-1", got.from.TabID)
	assert.Equal(t, "1234.56", got.order.Total.String())
	assert.Len(t, got.order.Items, 2)
	assert.Empty(t, doc.Alerts())
}

func TestReviewUnparseableTotalAlertsWithoutSending(t *testing.T) {
	doc := parse(t, `<body>
		<div id="placeYourOrder"><input type="submit"></div>
		<div class="order-summary-line-definition">calculating...</div>
	</body>`)
	clock := clockwork.NewFakeClock()
	out := newOutbox()
	s := New("tab-1", doc, out, testConfig(), clock, discardLogger())
	defer s.Close()
	require.NoError(t, s.Intercept(context.Background()))

	errc := make(chan error, 1)
	go func() { errc <- s.Review(context.Background()) }()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(100 * time.Millisecond)

	err := <-errc
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Len(t, doc.Alerts(), 1)
	assert.Empty(t, out.sent)
}

func TestReviewReportsCoordinatorFailure(t *testing.T) {
	doc := loadFixture(t)
	clock := clockwork.NewFakeClock()
	out := newOutbox()
	out.reply = messaging.Fail(errors.New("Missing tab ID"))
	s := New("tab-1", doc, out, testConfig(), clock, discardLogger())
	defer s.Close()
	require.NoError(t, s.Intercept(context.Background()))

	errc := make(chan error, 1)
	go func() { errc <- s.Review(context.Background()) }()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(100 * time.Millisecond)

	assert.Error(t, <-errc)
	require.Len(t, doc.Alerts(), 1)
	assert.Contains(t, doc.Alerts()[0], "Missing tab ID")
}

func TestPressActivatesReview(t *testing.T) {
	doc := loadFixture(t)
	out := newOutbox()
	cfg := testConfig()
	cfg.SettleDelay = 0
	s := New("tab-1", doc, out, cfg, clockwork.NewRealClock(), discardLogger())
	defer s.Close()
	require.NoError(t, s.Intercept(context.Background()))

	require.True(t, doc.Press())
	got := <-out.ch
	assert.Equal(t, messaging.ActionShowConfirmation, got.action)
}

func TestDeliverTriggersOriginalAction(t *testing.T) {
	doc := loadFixture(t)
	clock := clockwork.NewFakeClock()
	out := newOutbox()
	s := New("tab-1", doc, out, testConfig(), clock, discardLogger())
	defer s.Close()
	require.NoError(t, s.Intercept(context.Background()))

	order, err := Snapshot(doc, testConfig())
	require.NoError(t, err)
	env, err := messaging.NewEnvelope(messaging.ActionTriggerOriginalOrder, messaging.Sender{}, messaging.TriggerRequest{Order: order})
	require.NoError(t, err)

	reply, err := s.Deliver(context.Background(), env)
	require.NoError(t, err)
	require.True(t, reply.Success)
	assert.Equal(t, StateActionTriggered, s.State())

	orig, err := doc.QueryAll(`#placeYourOrder input[type="submit"]`)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Clicks(orig[0]))
	assert.Empty(t, out.sent, "orderTriggered goes out only after the delay")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(50 * time.Millisecond)

	got := <-out.ch
	assert.Equal(t, messaging.ActionOrderTriggered, got.action)
	assert.Equal(t, "1234.56", got.order.Total.String())

	// из ActionTriggered назад дороги нет
	reply, err = s.Deliver(context.Background(), env)
	require.NoError(t, err)
	assert.False(t, reply.Success)
}

func TestCloseFlushesPendingOrderTriggered(t *testing.T) {
	doc := loadFixture(t)
	clock := clockwork.NewFakeClock()
	out := newOutbox()
	s := New("tab-1", doc, out, testConfig(), clock, discardLogger())
	require.NoError(t, s.Intercept(context.Background()))

	order, err := Snapshot(doc, testConfig())
	require.NoError(t, err)
	require.NoError(t, s.PerformOriginalAction(order))

	// вкладка ушла со страницы, не дождавшись TriggerDelay
	s.Close()

	require.Len(t, out.sent, 1)
	assert.Equal(t, messaging.ActionOrderTriggered, out.sent[0].action)
	assert.Equal(t, "1234.56", out.sent[0].order.Total.String())
	assert.Equal(t, "tab-1", out.sent[0].from.TabID)
}

func TestDeliverUnknownAction(t *testing.T) {
	s := New("tab-1", loadFixture(t), newOutbox(), testConfig(), clockwork.NewFakeClock(), discardLogger())
	defer s.Close()
	reply, err := s.Deliver(context.Background(), messaging.Envelope{Action: messaging.ActionSetLimit})
	require.NoError(t, err)
	assert.False(t, reply.Success)
}

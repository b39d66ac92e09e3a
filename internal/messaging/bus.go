package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrNoHandler = errors.New("messaging: no handler for action")
	ErrTimeout   = errors.New("messaging: request timed out")
	ErrClosed    = errors.New("messaging: bus stopped")
)

// Handler обрабатывает одно сообщение и возвращает ровно один ответ.
type Handler func(ctx context.Context, env Envelope) Reply

// AsyncHandler может ответить позже, из продолжения, поставленного через Post.
// respond срабатывает только один раз.
type AsyncHandler func(ctx context.Context, env Envelope, respond func(Reply))

type request struct {
	ctx   context.Context
	env   Envelope
	reply chan Reply
	fn    func()
}

// Bus доставляет сообщения обработчикам по одному, в одной горутине.
// Пока обработчик не вернулся, следующее сообщение не начинается, поэтому
// состояние, которым владеют обработчики, не требует блокировок.
type Bus struct {
	log      *slog.Logger
	handlers map[Action]AsyncHandler
	queue    chan request
	done     chan struct{}
	stopOnce sync.Once
	timeout  time.Duration
}

func NewBus(log *slog.Logger, timeout time.Duration) *Bus {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bus{
		log:      log,
		handlers: map[Action]AsyncHandler{},
		queue:    make(chan request, 64),
		done:     make(chan struct{}),
		timeout:  timeout,
	}
}

// Handle регистрирует синхронный обработчик. Вызывать до Run.
func (b *Bus) Handle(action Action, h Handler) {
	b.handlers[action] = func(ctx context.Context, env Envelope, respond func(Reply)) {
		respond(h(ctx, env))
	}
}

// HandleAsync регистрирует обработчик с отложенным ответом. Вызывать до Run.
func (b *Bus) HandleAsync(action Action, h AsyncHandler) {
	b.handlers[action] = h
}

// Run обслуживает очередь до отмены ctx.
func (b *Bus) Run(ctx context.Context) error {
	defer b.stopOnce.Do(func() { close(b.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-b.queue:
			if req.fn != nil {
				req.fn()
				continue
			}
			b.dispatch(req)
		}
	}
}

func (b *Bus) dispatch(req request) {
	var once sync.Once
	respond := func(r Reply) {
		once.Do(func() { req.reply <- r })
	}

	h, ok := b.handlers[req.env.Action]
	if !ok {
		b.log.Warn("no handler", "action", req.env.Action)
		respond(Fail(fmt.Errorf("%w: %s", ErrNoHandler, req.env.Action)))
		return
	}
	if err := req.ctx.Err(); err != nil {
		respond(Fail(err))
		return
	}
	b.log.Debug("dispatch", "action", req.env.Action, "tab", req.env.Sender.TabID, "window", req.env.Sender.WindowID)
	h(req.ctx, req.env, respond)
}

// Post ставит продолжение в ту же очередь, что и сообщения.
// Возвращает false, если шина уже остановлена.
func (b *Bus) Post(fn func()) bool {
	if b.stopped() {
		return false
	}
	select {
	case b.queue <- request{fn: fn}:
		return true
	case <-b.done:
		return false
	}
}

func (b *Bus) stopped() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Request ставит сообщение в очередь и ждёт единственный ответ.
func (b *Bus) Request(ctx context.Context, env Envelope) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if b.stopped() {
		return Reply{}, ErrClosed
	}
	req := request{ctx: ctx, env: env, reply: make(chan Reply, 1)}
	select {
	case b.queue <- req:
	case <-b.done:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, requestErr(ctx)
	}

	select {
	case r := <-req.reply:
		return r, nil
	case <-b.done:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, requestErr(ctx)
	}
}

// Send то же, что Request, но собирает конверт сам.
func (b *Bus) Send(ctx context.Context, action Action, sender Sender, payload any) (Reply, error) {
	env, err := NewEnvelope(action, sender, payload)
	if err != nil {
		return Reply{}, err
	}
	return b.Request(ctx, env)
}

func requestErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

package coordinator

import (
	"context"

	"github.com/Spok95/spendguard/internal/messaging"
	"github.com/Spok95/spendguard/internal/session"
)

// Register привязывает операции координатора к именам сообщений.
func (c *Coordinator) Register(bus *messaging.Bus) {
	bus.HandleAsync(messaging.ActionShowConfirmation, func(ctx context.Context, env messaging.Envelope, respond func(messaging.Reply)) {
		var order messaging.OrderSnapshot
		if err := env.Decode(&order); err != nil {
			respond(messaging.Fail(err))
			return
		}
		c.OpenConfirmation(ctx, session.TabID(env.Sender.TabID), order, func(err error) {
			respond(reply(nil, err))
		})
	})

	bus.HandleAsync(messaging.ActionGetPopupData, func(ctx context.Context, env messaging.Envelope, respond func(messaging.Reply)) {
		c.FetchSnapshot(ctx, session.WindowID(env.Sender.WindowID), func(d messaging.PopupData, err error) {
			respond(reply(d, err))
		})
	})

	decide := func(d messaging.Decision) messaging.AsyncHandler {
		return func(ctx context.Context, env messaging.Envelope, respond func(messaging.Reply)) {
			var req messaging.DecisionRequest
			if err := env.Decode(&req); err != nil {
				respond(messaging.Fail(err))
				return
			}
			c.RelayDecision(ctx, session.TabID(req.TabID), d, func(err error) {
				respond(reply(nil, err))
			})
		}
	}
	bus.HandleAsync(messaging.ActionConfirmOrder, decide(messaging.DecisionConfirm))
	bus.HandleAsync(messaging.ActionCancelOrder, decide(messaging.DecisionCancel))

	bus.HandleAsync(messaging.ActionOrderTriggered, func(ctx context.Context, env messaging.Envelope, respond func(messaging.Reply)) {
		var order messaging.OrderSnapshot
		if err := env.Decode(&order); err != nil {
			respond(messaging.Fail(err))
			return
		}
		c.PersistSpend(ctx, session.TabID(env.Sender.TabID), order, func(r messaging.PersistResult, err error) {
			respond(reply(r, err))
		})
	})

	bus.Handle(messaging.ActionTabRemoved, func(_ context.Context, env messaging.Envelope) messaging.Reply {
		var req messaging.RemovedRequest
		if err := env.Decode(&req); err != nil {
			return messaging.Fail(err)
		}
		c.TabRemoved(session.TabID(req.ID))
		return messaging.OK(nil)
	})

	bus.Handle(messaging.ActionWindowRemoved, func(_ context.Context, env messaging.Envelope) messaging.Reply {
		var req messaging.RemovedRequest
		if err := env.Decode(&req); err != nil {
			return messaging.Fail(err)
		}
		c.WindowRemoved(session.WindowID(req.ID))
		return messaging.OK(nil)
	})

	bus.HandleAsync(messaging.ActionGetOptionsData, func(ctx context.Context, _ messaging.Envelope, respond func(messaging.Reply)) {
		c.OptionsData(ctx, func(d messaging.OptionsData, err error) {
			respond(reply(d, err))
		})
	})

	bus.HandleAsync(messaging.ActionSetLimit, func(ctx context.Context, env messaging.Envelope, respond func(messaging.Reply)) {
		var req messaging.LimitRequest
		if err := env.Decode(&req); err != nil {
			respond(messaging.Fail(err))
			return
		}
		c.SetLimit(ctx, req.Limit, func(err error) {
			respond(reply(nil, err))
		})
	})

	bus.HandleAsync(messaging.ActionResetSpending, func(ctx context.Context, _ messaging.Envelope, respond func(messaging.Reply)) {
		c.ResetSpending(ctx, func(err error) {
			respond(reply(nil, err))
		})
	})
}

func reply(data any, err error) messaging.Reply {
	if err != nil {
		return messaging.Fail(err)
	}
	return messaging.OK(data)
}

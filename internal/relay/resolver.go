package relay

import (
	"context"
	"fmt"
)

// Strategy names the rule that located an inbound reply's session.
type Strategy string

const (
	StrategyReply      Strategy = "reply"
	StrategyChatID     Strategy = "chat_id"
	StrategyRecentUser Strategy = "recent_user"
	StrategyMiss       Strategy = "miss"
)

type Resolution struct {
	SessionID string
	Strategy  Strategy
}

// Resolver maps a bot-network update to a website session using the log as
// its only state. It only reads.
//
// Lookup order:
//  1. reply: the update replies to a forwarded message whose id was recorded
//  2. chat_id: newest event recorded with the update's chat id
//  3. recent_user: newest visitor event anywhere (legacy fallback)
//
// recent_user is only correct while a single visitor is active; deployments
// with concurrent visitors should turn it off and rely on 1 and 2.
type Resolver struct {
	log            Log
	legacyFallback bool
}

func NewResolver(log Log, legacyFallback bool) *Resolver {
	return &Resolver{log: log, legacyFallback: legacyFallback}
}

// Resolve returns ok=false when no session matches under any enabled strategy.
func (r *Resolver) Resolve(ctx context.Context, upd InboundUpdate) (Resolution, bool, error) {
	if upd.ReplyToMessageID != 0 && upd.ChatID != "" {
		ev, err := r.log.LatestByExternalMessageID(ctx, upd.ChatID, upd.ReplyToMessageID)
		if err != nil {
			return Resolution{}, false, fmt.Errorf("resolve by reply: %w", err)
		}
		if ev != nil {
			return Resolution{SessionID: ev.SessionID, Strategy: StrategyReply}, true, nil
		}
	}

	if upd.ChatID != "" {
		ev, err := r.log.LatestByExternalChatID(ctx, upd.ChatID)
		if err != nil {
			return Resolution{}, false, fmt.Errorf("resolve by chat id: %w", err)
		}
		if ev != nil {
			return Resolution{SessionID: ev.SessionID, Strategy: StrategyChatID}, true, nil
		}
	}

	if !r.legacyFallback {
		return Resolution{Strategy: StrategyMiss}, false, nil
	}

	ev, err := r.log.LatestBySender(ctx, SenderUser)
	if err != nil {
		return Resolution{}, false, fmt.Errorf("resolve by recent user: %w", err)
	}
	if ev == nil {
		return Resolution{Strategy: StrategyMiss}, false, nil
	}
	return Resolution{SessionID: ev.SessionID, Strategy: StrategyRecentUser}, true, nil
}

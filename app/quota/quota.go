package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/pipeline"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// Metered actions.
const (
	MetricAnalyses     = "analyses"
	MetricTranslations = "translations"
)

// Limits is a pure function of tier; adding a tier is a data change.
type Limits struct {
	Analyses     int
	Translations int
}

var tierLimits = map[Tier]Limits{
	TierFree:    {Analyses: 5, Translations: 0},
	TierPro:     {Analyses: 50, Translations: 20},
	TierPremium: {Analyses: 500, Translations: 200},
}

func LimitsFor(tier Tier) Limits {
	if l, ok := tierLimits[tier]; ok {
		return l
	}
	return tierLimits[TierFree]
}

func (l Limits) For(metric string) int {
	switch metric {
	case MetricAnalyses:
		return l.Analyses
	case MetricTranslations:
		return l.Translations
	default:
		return 0
	}
}

// EffectiveTier derives the billable tier from the raw stored value. A
// time-boxed pass whose expiry has passed silently downgrades to free.
func EffectiveTier(raw string, expiresAt *time.Time, now time.Time) Tier {
	tier := Tier(raw)
	if _, ok := tierLimits[tier]; !ok {
		return TierFree
	}
	if expiresAt != nil && expiresAt.Before(now) {
		return TierFree
	}
	return tier
}

// AllowsTranslation reports whether a tier can request analysis in a
// non-default language at all, independent of remaining quota.
func AllowsTranslation(tier Tier) bool {
	return LimitsFor(tier).Translations > 0
}

type Result struct {
	Allowed bool
	Limit   int
	Used    int
	Tier    Tier
}

// Gate enforces subscription quotas. CheckAndIncrement must only be called
// after every other precondition (ownership, feature gating) has passed, so a
// rejected request never consumes a unit of quota.
type Gate struct {
	users database.UserRepository
	usage database.UsageRepository
}

func NewGate(users database.UserRepository, usage database.UsageRepository) *Gate {
	return &Gate{users: users, usage: usage}
}

func (g *Gate) CheckAndIncrement(ctx context.Context, userID, metric string) (*Result, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, pipeline.NewError(pipeline.KindPermanentInput, "QUOTA", "UNKNOWN_USER", nil)
	}

	now := time.Now().UTC()
	tier := EffectiveTier(user.Tier, user.TierExpiresAt, now)
	limit := LimitsFor(tier).For(metric)

	if limit <= 0 {
		return &Result{Allowed: false, Limit: 0, Tier: tier}, nil
	}

	allowed, used, err := g.usage.Increment(ctx, userID, Period(now), metric, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	if !allowed {
		slog.Info("Usage quota exhausted", "user_id", userID, "metric", metric, "tier", tier, "limit", limit)
	}

	return &Result{Allowed: allowed, Limit: limit, Used: used, Tier: tier}, nil
}

// Period is the billing-period key, one calendar month.
func Period(now time.Time) string {
	return now.UTC().Format("2006-01")
}

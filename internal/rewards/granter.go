package rewards

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/profile"
)

const (
	casRetries  = 5
	batchSize   = 100
	maxAttempts = 10
)

// Granter delivers the pending grants parked on profiles. Each grant key is
// applied at most once per profile, so draining again is always safe.
type Granter struct {
	profiles profile.Store
	resolver Resolver
	log      *zap.Logger
}

func NewGranter(profiles profile.Store, resolver Resolver, log *zap.Logger) *Granter {
	return &Granter{profiles: profiles, resolver: resolver, log: log}
}

// Deliver resolves and applies every pending grant on uid's profile.
// A failing lookup leaves that grant pending for the next drain.
func (g *Granter) Deliver(ctx context.Context, uid string) error {
	var lookupErr error

	_, err := profile.Mutate(ctx, g.profiles, uid, casRetries, func(p *profile.Profile) error {
		lookupErr = nil
		if len(p.PendingGrants) == 0 {
			return profile.ErrNoChange
		}

		var keep []profile.PendingGrant
		for _, pg := range p.PendingGrants {
			if p.HasApplied(pg.GrantKey) {
				continue
			}
			items, err := g.resolver.Resolve(ctx, pg.RewardKey)
			if err != nil {
				lookupErr = multierr.Append(lookupErr, fmt.Errorf("resolve %s: %w", pg.RewardKey, err))
				pg.Attempts++
				if pg.Attempts >= maxAttempts {
					g.log.Error("dropping reward grant after repeated failures",
						zap.String("uid", p.UID), zap.String("grantKey", pg.GrantKey), zap.Error(err))
					continue
				}
				keep = append(keep, pg)
				continue
			}
			p.Inventory = mergeItems(p.Inventory, items)
			p.MarkApplied(pg.GrantKey)
		}
		if keep == nil {
			keep = []profile.PendingGrant{}
		}
		p.PendingGrants = keep
		return nil
	})
	return multierr.Append(err, lookupErr)
}

// DrainPending delivers grants for every profile that still owes some.
func (g *Granter) DrainPending(ctx context.Context) error {
	owing, err := g.profiles.WithPendingGrants(ctx, batchSize)
	if err != nil {
		return err
	}

	var errs error
	for _, p := range owing {
		if err := g.Deliver(ctx, p.UID); err != nil {
			g.log.Warn("reward delivery failed", zap.String("uid", p.UID), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func mergeItems(inv []profile.Item, add []profile.Item) []profile.Item {
	for _, it := range add {
		merged := false
		for i := range inv {
			if inv[i].Kind == it.Kind && inv[i].ID == it.ID {
				inv[i].Amount += it.Amount
				merged = true
				break
			}
		}
		if !merged {
			inv = append(inv, it)
		}
	}
	return inv
}

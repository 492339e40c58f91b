package ledger

import (
	"context"

	"github.com/rs/zerolog"
)

// PurgeAccount deletes everything the ledger holds for a user: entries, slots and
// the schedule. Purging an empty account succeeds with zero counts.
func (s *Service) PurgeAccount(ctx context.Context, userID uint) (PurgeResult, error) {
	var res PurgeResult
	err := s.withUserLock(ctx, userID, func() error {
		return s.store.Atomic(ctx, func(tx Tx) error {
			var err error
			res, err = tx.PurgeUser(userID)
			return err
		})
	})
	if err != nil {
		return PurgeResult{}, s.finish(ctx, "purge_account", userID, err)
	}

	zerolog.Ctx(ctx).Info().
		Uint("user_id", userID).
		Int64("entries", res.Entries).
		Int64("slots", res.Slots).
		Int64("schedules", res.Schedules).
		Msg("signal account purged")
	return res, nil
}

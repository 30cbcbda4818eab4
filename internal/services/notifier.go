package services

import (
	"context"
	"errors"
	"fmt"

	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// WinnerNotifier announces final results to the owners of winning photos
type WinnerNotifier interface {
	NotifyWinners(ctx context.Context, contest *models.Contest, winners []models.Standing) error
}

// APNsNotifier pushes winner announcements through Apple Push Notifications.
// A notifier without a client does nothing.
type APNsNotifier struct {
	client *apns2.Client
	topic  string
	store  repository.Store
}

// NewAPNsNotifier builds a token-authenticated APNs client from a .p8 key
func NewAPNsNotifier(store repository.Store, keyFile, keyID, teamID, topic string, production bool) (*APNsNotifier, error) {
	if keyFile == "" {
		log.Info().Msg("APNs not configured, winner pushes disabled")
		return &APNsNotifier{store: store}, nil
	}

	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsNotifier{client: client, topic: topic, store: store}, nil
}

// NotifyWinners sends one push per winner that registered a device token
func (n *APNsNotifier) NotifyWinners(ctx context.Context, contest *models.Contest, winners []models.Standing) error {
	if n == nil || n.client == nil {
		return nil
	}

	var errs []error
	for _, w := range winners {
		user, err := n.store.GetUser(ctx, w.OwnerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if user.PushToken == nil || *user.PushToken == "" {
			continue
		}

		notification := &apns2.Notification{
			DeviceToken: *user.PushToken,
			Topic:       n.topic,
			Payload: payload.NewPayload().
				AlertTitle(contest.Title).
				AlertBody(fmt.Sprintf("Your photo placed #%d!", w.Rank)).
				Custom("contest_id", contest.ID).
				Custom("photo_id", w.PhotoID),
		}

		res, err := n.client.PushWithContext(ctx, notification)
		if err != nil {
			errs = append(errs, fmt.Errorf("push to %s: %w", w.OwnerID, err))
			continue
		}
		if !res.Sent() {
			log.Warn().
				Str("user_id", w.OwnerID).
				Int("status", res.StatusCode).
				Str("reason", res.Reason).
				Msg("APNs rejected winner notification")
			continue
		}

		log.Info().
			Str("contest_id", contest.ID).
			Str("user_id", w.OwnerID).
			Int("rank", w.Rank).
			Msg("Winner notified")
	}

	return errors.Join(errs...)
}

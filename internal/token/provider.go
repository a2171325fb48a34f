package token

import (
	"context"
	"fmt"
	"time"

	"github.com/shoplens/tiksync/internal/models"
	"github.com/shoplens/tiksync/pkg/logger"
)

// accessTokenSlack is subtracted from the expiry when judging whether the
// current access token is still usable, so a sync never starts on a token
// about to die mid-call.
const accessTokenSlack = 2 * time.Minute

// Provider implements models.TokenProvider over the store table, minting a
// fresh access token through the API client when the stored one expired.
// Token refresh deliberately takes no store lock: it is a prerequisite for
// data sync, not mutually exclusive with it.
type Provider struct {
	logger *logger.Logger

	repo models.Repository
	api  models.MetricsAPI
}

func New(repo models.Repository, api models.MetricsAPI, logger *logger.Logger) *Provider {
	return &Provider{repo: repo, api: api, logger: logger}
}

// GetValidToken returns a usable bearer token for the store or an empty
// string when none is obtainable without operator intervention.
func (p *Provider) GetValidToken(ctx context.Context, storeCode string) (string, error) {
	store, err := p.repo.GetStore(ctx, storeCode)
	if err != nil {
		return "", fmt.Errorf("failed to load store %s: %w", storeCode, err)
	}
	if store.Status != models.StatusConnected {
		return "", nil
	}

	now := time.Now()
	if store.AccessToken != "" && store.AccessExpiresAt > now.Add(accessTokenSlack).Unix() {
		return store.AccessToken, nil
	}

	// Access token expired; try the refresh token before giving up.
	if store.RefreshToken == "" || store.RefreshExpiresAt <= now.Unix() {
		return "", nil
	}
	if err := p.RefreshStoreToken(ctx, store); err != nil {
		return "", err
	}
	refreshed, err := p.repo.GetStore(ctx, storeCode)
	if err != nil {
		return "", fmt.Errorf("failed to reload store %s: %w", storeCode, err)
	}
	return refreshed.AccessToken, nil
}

// RefreshStoreToken exchanges the store's refresh token for a new token
// pair and persists it. An upstream auth failure flags the store for
// reconnection since no automatic recovery is possible.
func (p *Provider) RefreshStoreToken(ctx context.Context, store *models.Store) error {
	pair, err := p.api.RefreshAccessToken(ctx, store.RefreshToken)
	if err != nil {
		if p.api.IsAuthFailure(err) {
			if flagErr := p.FlagNeedsReconnect(ctx, store.StoreCode); flagErr != nil {
				p.logger.Error("Failed to flag store for reconnect ", "store ", store.StoreCode, " error ", flagErr)
			}
		}
		return fmt.Errorf("failed to refresh token for store %s: %w", store.StoreCode, err)
	}

	if err := p.repo.UpdateStoreTokens(ctx, store.StoreCode,
		pair.AccessToken, pair.AccessExpiresAt,
		pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		return fmt.Errorf("failed to persist refreshed tokens for store %s: %w", store.StoreCode, err)
	}
	p.logger.Info("Refreshed access token ", "store ", store.StoreCode)
	return nil
}

// ListExpiring returns connected stores whose access token expires inside
// the lookahead window.
func (p *Provider) ListExpiring(ctx context.Context, lookahead time.Duration) ([]*models.Store, error) {
	return p.repo.ListStoresWithExpiringTokens(ctx, time.Now().Add(lookahead).Unix())
}

func (p *Provider) FlagNeedsReconnect(ctx context.Context, storeCode string) error {
	return p.repo.UpdateStoreStatus(ctx, storeCode, models.StatusNeedReconnect)
}

func (p *Provider) UpdateLastSyncTime(ctx context.Context, storeCode string) error {
	return p.repo.UpdateLastSyncTime(ctx, storeCode, time.Now().Unix())
}

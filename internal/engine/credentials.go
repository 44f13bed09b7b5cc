package engine

import (
	"context"
	"errors"
	"fmt"

	"idle_engine/internal/model"
	"idle_engine/internal/notify"
	"idle_engine/internal/utils"
)

// SetCredentials stores session cookies, sealed when a credentials key is configured.
func (e *Engine) SetCredentials(ctx context.Context, creds model.SessionCredentials) error {
	if creds.Empty() {
		return ErrMissingCredentials
	}
	stored := creds
	if e.steam.CredentialsKey != "" {
		sealed, err := utils.SealCredentials(e.steam.CredentialsKey, creds)
		if err != nil {
			return err
		}
		stored = sealed
	}
	_, err := e.store.UpdateUserSettings(ctx, e.steam.SteamID, func(s *model.UserSettings) {
		s.CardFarming.Credentials = stored
	})
	return err
}

func (e *Engine) ClearCredentials(ctx context.Context) error {
	_, err := e.store.UpdateUserSettings(ctx, e.steam.SteamID, func(s *model.UserSettings) {
		s.CardFarming.Credentials = model.SessionCredentials{}
	})
	return err
}

// HarvestCredentials opens the login window and stores the cookies it yields.
func (e *Engine) HarvestCredentials(ctx context.Context) error {
	if e.harvester == nil {
		return errors.New("credential harvesting is not available")
	}
	creds, err := e.harvester.Harvest(ctx)
	if err != nil {
		return fmt.Errorf("harvest credentials: %w", err)
	}
	if err := e.SetCredentials(ctx, creds); err != nil {
		return err
	}
	e.log("info", "[Card Farming] Credentials refreshed from login window", nil)
	return nil
}

// openCredentials returns the usable cookies from settings.
func (e *Engine) openCredentials(settings model.UserSettings) (model.SessionCredentials, error) {
	stored := settings.CardFarming.Credentials
	if stored.Empty() {
		return model.SessionCredentials{}, ErrMissingCredentials
	}
	if e.steam.CredentialsKey == "" {
		return stored, nil
	}
	return utils.OpenCredentials(e.steam.CredentialsKey, stored)
}

// currentCredentials re-reads settings so a mid-run credential update is picked up.
func (e *Engine) currentCredentials(ctx context.Context) (model.SessionCredentials, error) {
	settings, err := e.store.GetUserSettings(ctx, e.steam.SteamID)
	if err != nil {
		return model.SessionCredentials{}, err
	}
	return e.openCredentials(settings)
}

// checkCredentials resolves the credentials a card farming run starts with.
func (e *Engine) checkCredentials(ctx context.Context, settings model.UserSettings) (model.SessionCredentials, error) {
	if settings.CardFarming.AutoRevalidate && e.harvester != nil {
		if err := e.HarvestCredentials(ctx); err != nil {
			e.handleError("autoRevalidate", err)
		} else if refreshed, err := e.store.GetUserSettings(ctx, e.steam.SteamID); err == nil {
			settings = refreshed
		}
	}

	creds, err := e.openCredentials(settings)
	if err != nil {
		if errors.Is(err, ErrMissingCredentials) {
			return model.SessionCredentials{}, err
		}
		return model.SessionCredentials{}, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}

	valid, err := e.provider.ValidateSession(ctx, e.steam.SteamID, creds)
	if err != nil {
		return model.SessionCredentials{}, fmt.Errorf("validate session: %w", err)
	}
	if !valid {
		if err := e.ClearCredentials(ctx); err != nil {
			e.handleError("clearCredentials", err)
		}
		e.notify(ctx, notify.AutomationEvent{
			Kind:    notify.EventOutdatedCredentials,
			Task:    string(model.TaskCardFarming),
			Message: "Card farming credentials need to be updated",
		})
		return model.SessionCredentials{}, ErrOutdatedCredentials
	}
	return creds, nil
}

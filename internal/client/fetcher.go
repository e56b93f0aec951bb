package client

import (
	"context"
	"errors"

	"github.com/iliyamo/designer-bridge/internal/model"
)

// StatusQuerier is the status call of APIClient.
type StatusQuerier interface {
	Status(ctx context.Context, token, scriptID string, tt model.TargetType, siteID string, ids []string) (map[string]model.StatusEntry, error)
}

// StatusFetcher reads statuses through the bridge with the managed session,
// so a status.Engine can run in the designer process too.
type StatusFetcher struct {
	api      StatusQuerier
	sessions *Manager
}

func NewStatusFetcher(api StatusQuerier, sessions *Manager) *StatusFetcher {
	return &StatusFetcher{api: api, sessions: sessions}
}

// FetchStatus issues one call for the site target and one for all pages.
// A rejected session is dropped so the next call re-authenticates.
func (f *StatusFetcher) FetchStatus(ctx context.Context, scriptID string, targets []model.Target) (map[string]model.StatusEntry, error) {
	rec, err := f.sessions.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	var siteIDs, pageIDs []string
	for _, t := range targets {
		switch t.Type {
		case model.TargetSite:
			siteIDs = append(siteIDs, t.ID)
		case model.TargetPage:
			pageIDs = append(pageIDs, t.ID)
		}
	}

	out := make(map[string]model.StatusEntry, len(targets))
	merge := func(res map[string]model.StatusEntry, err error) error {
		if errors.Is(err, ErrUnauthorized) {
			f.sessions.Invalidate()
		}
		if err != nil {
			return err
		}
		for id, st := range res {
			out[id] = st
		}
		return nil
	}
	for _, id := range siteIDs {
		if err := merge(f.api.Status(ctx, rec.Token, scriptID, model.TargetSite, id, nil)); err != nil {
			return nil, err
		}
	}
	if len(pageIDs) > 0 {
		if err := merge(f.api.Status(ctx, rec.Token, scriptID, model.TargetPage, "", pageIDs)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

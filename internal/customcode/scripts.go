package customcode

import (
	"context"
	"fmt"

	"github.com/iliyamo/designer-bridge/internal/logging"
	"github.com/iliyamo/designer-bridge/internal/model"
	"github.com/iliyamo/designer-bridge/internal/utils"
)

// ListRegistered returns the scripts registered on a site.
func (s *Service) ListRegistered(ctx context.Context, token, siteID string) ([]model.RegisteredScript, error) {
	if siteID == "" {
		return nil, fmt.Errorf("%w: site id is required", ErrInvalidRequest)
	}
	return s.platform.ListRegisteredScripts(ctx, token, siteID)
}

// Register adds a script to a site's registry.  Hosted scripts are
// downloaded once to compute their subresource integrity hash.
func (s *Service) Register(ctx context.Context, token, siteID string, script model.RegisteredScript) (model.RegisteredScript, error) {
	if siteID == "" {
		return model.RegisteredScript{}, fmt.Errorf("%w: site id is required", ErrInvalidRequest)
	}
	if err := script.Validate(); err != nil {
		return model.RegisteredScript{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if !script.Hosted() {
		script.IntegrityHash = ""
		return s.platform.RegisterInline(ctx, token, siteID, script)
	}

	if err := utils.CheckHostedLocation(script.HostedLocation); err != nil {
		return model.RegisteredScript{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	hash, err := utils.FetchIntegrityHash(ctx, s.hashClient, script.HostedLocation)
	if err != nil {
		return model.RegisteredScript{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	script.IntegrityHash = hash
	out, err := s.platform.RegisterHosted(ctx, token, siteID, script)
	if err != nil {
		return model.RegisteredScript{}, err
	}
	s.log.Info("hosted script registered", logging.SiteID(siteID), logging.ScriptID(out.ID))
	return out, nil
}

// Package customcode applies and removes registered scripts on sites and
// pages.  A target's code list is a set keyed by script id; every write
// reads the current list, edits it and writes the whole list back.
//
// The read-modify-write is not atomic: two callers editing the same target
// at once can lose one of the edits.  One interactive user per target is
// the expected load.
package customcode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/logging"
	"github.com/iliyamo/designer-bridge/internal/model"
	"github.com/iliyamo/designer-bridge/internal/platform"
	"github.com/iliyamo/designer-bridge/internal/queue"
	"github.com/iliyamo/designer-bridge/internal/utils"
)

// ErrInvalidRequest marks input that failed validation.
var ErrInvalidRequest = errors.New("invalid request")

// Platform is the subset of the platform client used by the service.
type Platform interface {
	CustomCode(ctx context.Context, token string, t model.Target) platform.Result[model.CodeList]
	PutCustomCode(ctx context.Context, token string, t model.Target, scripts []model.ScriptRef) (model.CodeList, error)
	DeleteCustomCode(ctx context.Context, token string, t model.Target) error
	ListRegisteredScripts(ctx context.Context, token, siteID string) ([]model.RegisteredScript, error)
	RegisterInline(ctx context.Context, token, siteID string, s model.RegisteredScript) (model.RegisteredScript, error)
	RegisterHosted(ctx context.Context, token, siteID string, s model.RegisteredScript) (model.RegisteredScript, error)
}

// Invalidator drops cached application status.
type Invalidator interface {
	Invalidate(ctx context.Context, scriptID, targetID string)
	InvalidateTarget(ctx context.Context, targetID string)
}

// Publisher announces code list changes to other instances.
type Publisher interface {
	PublishCodeChanged(ctx context.Context, ev queue.CodeChangedEvent) error
}

// Service mutates code lists and keeps the status cache coherent.
type Service struct {
	platform   Platform
	invalidate Invalidator
	publish    Publisher
	hashClient *http.Client
	log        *zap.Logger
}

// NewService wires the service.  inv and pub may be nil.
func NewService(p Platform, inv Invalidator, pub Publisher, logger *zap.Logger) *Service {
	return &Service{
		platform:   p,
		invalidate: inv,
		publish:    pub,
		hashClient: utils.NewPublicClient(30 * time.Second),
		log:        logging.OrNop(logger).With(logging.Component("customcode")),
	}
}

// Upsert applies a script to a target, replacing any earlier entry for the
// same script id.
func (s *Service) Upsert(ctx context.Context, token string, app model.CodeApplication) (model.CodeList, error) {
	app, err := app.Normalize()
	if err != nil {
		return model.CodeList{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	target := app.Target()
	scripts, err := s.currentScripts(ctx, token, target)
	if err != nil {
		return model.CodeList{}, err
	}
	out, err := s.platform.PutCustomCode(ctx, token, target, model.WithScript(scripts, app.Ref()))
	if err != nil {
		return model.CodeList{}, err
	}
	s.changed(ctx, target, app.ScriptID, queue.ActionApplied)
	return out, nil
}

// Remove drops one script from a target's code list.  Removing a script
// that is not applied is not an error.
func (s *Service) Remove(ctx context.Context, token string, target model.Target, scriptID string) (model.CodeList, error) {
	target, err := normalizeTarget(target)
	if err != nil {
		return model.CodeList{}, err
	}
	if scriptID == "" {
		return model.CodeList{}, fmt.Errorf("%w: script id is required", ErrInvalidRequest)
	}
	scripts, err := s.currentScripts(ctx, token, target)
	if err != nil {
		return model.CodeList{}, err
	}
	next := model.WithoutScript(scripts, scriptID)
	var out model.CodeList
	if len(next) == 0 {
		err = s.platform.DeleteCustomCode(ctx, token, target)
		if platform.IsNotFound(err) {
			err = nil
		}
	} else {
		out, err = s.platform.PutCustomCode(ctx, token, target, next)
	}
	if err != nil {
		return model.CodeList{}, err
	}
	s.changed(ctx, target, scriptID, queue.ActionRemoved)
	return out, nil
}

// Clear removes every script from a target.
func (s *Service) Clear(ctx context.Context, token string, target model.Target) error {
	target, err := normalizeTarget(target)
	if err != nil {
		return err
	}
	if err := s.platform.DeleteCustomCode(ctx, token, target); err != nil && !platform.IsNotFound(err) {
		return err
	}
	s.changed(ctx, target, "", queue.ActionCleared)
	return nil
}

// Scripts returns a target's current code list; a target without custom
// code has an empty list.
func (s *Service) Scripts(ctx context.Context, token string, target model.Target) ([]model.ScriptRef, error) {
	target, err := normalizeTarget(target)
	if err != nil {
		return nil, err
	}
	return s.currentScripts(ctx, token, target)
}

func (s *Service) currentScripts(ctx context.Context, token string, target model.Target) ([]model.ScriptRef, error) {
	res := s.platform.CustomCode(ctx, token, target)
	switch res.Kind {
	case platform.KindOK:
		return res.Value.Scripts, nil
	case platform.KindNotFound:
		return nil, nil
	default:
		return nil, res.Err
	}
}

// changed invalidates the local view and tells other instances.  A failed
// publish is logged; the mutation itself already succeeded.
func (s *Service) changed(ctx context.Context, target model.Target, scriptID string, action queue.Action) {
	if s.invalidate != nil {
		if scriptID == "" {
			s.invalidate.InvalidateTarget(ctx, target.ID)
		} else {
			s.invalidate.Invalidate(ctx, scriptID, target.ID)
		}
	}
	s.log.Info("custom code changed",
		logging.TargetID(target.ID), logging.ScriptID(scriptID), zap.String("action", string(action)))
	if s.publish == nil {
		return
	}
	ev := queue.CodeChangedEvent{
		TargetType: target.Type,
		TargetID:   target.ID,
		ScriptID:   scriptID,
		Action:     action,
		ChangedAt:  time.Now().UTC(),
	}
	if err := s.publish.PublishCodeChanged(ctx, ev); err != nil {
		s.log.Warn("publish code change failed", logging.TargetID(target.ID), zap.Error(err))
	}
}

// normalizeTarget returns t with its type in canonical form.
func normalizeTarget(t model.Target) (model.Target, error) {
	tt, err := model.ParseTargetType(string(t.Type))
	if err != nil {
		return model.Target{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	t.Type, t.ID = tt, strings.TrimSpace(t.ID)
	if t.ID == "" {
		return model.Target{}, fmt.Errorf("%w: target id is required", ErrInvalidRequest)
	}
	return t, nil
}

package status

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/designer-bridge/internal/logging"
	"github.com/iliyamo/designer-bridge/internal/model"
	"github.com/iliyamo/designer-bridge/internal/platform"
)

// CodeReader reads a target's code list from the platform.
type CodeReader interface {
	CustomCode(ctx context.Context, token string, t model.Target) platform.Result[model.CodeList]
}

// PlatformFetcher reads statuses straight from the platform with one access
// credential.  Each target of a batch is read concurrently.
type PlatformFetcher struct {
	reader CodeReader
	token  string
	limit  int
	log    *zap.Logger
}

// NewPlatformFetcher binds reader to the caller's access credential.
func NewPlatformFetcher(reader CodeReader, token string, logger *zap.Logger) *PlatformFetcher {
	return &PlatformFetcher{
		reader: reader,
		token:  token,
		limit:  5,
		log:    logging.OrNop(logger).With(logging.Component("status_fetcher")),
	}
}

// CacheScope identifies the credential without revealing it.
func (f *PlatformFetcher) CacheScope() string {
	sum := sha256.Sum256([]byte(f.token))
	return hex.EncodeToString(sum[:8])
}

// FetchStatus reads every target's code list.  A target without custom code
// is not applied; a target whose read fails is left out of the result.
func (f *PlatformFetcher) FetchStatus(ctx context.Context, scriptID string, targets []model.Target) (map[string]model.StatusEntry, error) {
	var mu sync.Mutex
	out := make(map[string]model.StatusEntry, len(targets))

	g := new(errgroup.Group)
	g.SetLimit(f.limit)
	for _, t := range targets {
		g.Go(func() error {
			res := f.reader.CustomCode(ctx, f.token, t)
			var st model.StatusEntry
			switch res.Kind {
			case platform.KindOK:
				st = model.StatusFromCodeList(scriptID, res.Value.Scripts)
			case platform.KindNotFound:
				st = model.NotApplied
			default:
				f.log.Warn("status lookup failed",
					logging.TargetID(t.ID), logging.ScriptID(scriptID), zap.Error(res.Err))
				return nil
			}
			mu.Lock()
			out[t.ID] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

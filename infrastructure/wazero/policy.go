package wazero

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/hostfuncs"
)

// FetchPolicy decides whether a guest may fetch a resource.
type FetchPolicy interface {
	Allow(guest string, res entities.Resource) error
}

// PatternPolicy allows network hosts matching one of Hosts (path.Match
// globs, e.g. "*.example.com") and files under one of Paths.
// An empty list denies that kind entirely.
type PatternPolicy struct {
	Hosts []string
	Paths []string
}

// Allow implements FetchPolicy.
func (p PatternPolicy) Allow(guest string, res entities.Resource) error {
	switch res.ResolvedKind() {
	case entities.ResourceKindNetwork:
		u, err := url.Parse(res.URL)
		if err != nil {
			return &AccessDeniedError{Guest: guest, Kind: entities.ResourceKindNetwork, Target: res.URL}
		}
		host := strings.ToLower(u.Hostname())
		for _, pattern := range p.Hosts {
			if ok, _ := path.Match(strings.ToLower(pattern), host); ok {
				return nil
			}
		}
		return &AccessDeniedError{Guest: guest, Kind: entities.ResourceKindNetwork, Target: host}
	default:
		target := strings.TrimPrefix(res.URL, "file://")
		clean := filepath.Clean(target)
		for _, prefix := range p.Paths {
			rel, err := filepath.Rel(filepath.Clean(prefix), clean)
			if err == nil && filepath.IsLocal(rel) {
				return nil
			}
		}
		return &AccessDeniedError{Guest: guest, Kind: entities.ResourceKindFile, Target: clean}
	}
}

// FetchPolicyMiddleware rejects fetch_start calls the policy denies. The
// guest receives a JSON error instead of a request ID.
func FetchPolicyMiddleware(policy FetchPolicy) hostfuncs.Middleware {
	return func(next hostfuncs.ByteHandler) hostfuncs.ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			hctx, ok := ctx.(hostfuncs.HostContext)
			if !ok || hctx.FunctionName() != "fetch_start" {
				return next(ctx, payload)
			}

			var res entities.Resource
			if err := json.Unmarshal(payload, &res); err != nil {
				return next(ctx, payload)
			}

			if err := policy.Allow(hctx.Guest(), res); err != nil {
				denied := hostfuncs.NewAccessDeniedError(err.Error())
				return json.Marshal(hostfuncs.FetchStartResponse{Error: &denied})
			}
			return next(ctx, payload)
		}
	}
}

// AccessDeniedError represents a policy check failure.
type AccessDeniedError struct {
	Guest  string
	Kind   entities.ResourceKind
	Target string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: guest %q may not fetch %s %s", e.Guest, e.Kind, e.Target)
}

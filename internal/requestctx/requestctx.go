// Package requestctx carries the authenticated actor and request details from the
// HTTP layer down to the audit facade.
package requestctx

import (
	"context"
	"strings"

	"inventory-audit/internal/domain"
)

type Actor struct {
	ID    string
	Name  string
	Email string
}

type RequestInfo struct {
	SourceAddress string
	ClientAgent   string
	Origin        domain.Origin
	CorrelationID string
}

type actorKey struct{}

type requestInfoKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored on ctx; ok is false when none or when its ID is empty.
func ActorFrom(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func RequestInfoFrom(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// ClassifyOrigin marks a request as Web when its Origin header contains one of the
// configured markers. Anything else with a header or without one is an API call.
func ClassifyOrigin(originHeader string, webMarkers []string) domain.Origin {
	if originHeader == "" {
		return domain.OriginAPI
	}
	for _, marker := range webMarkers {
		if marker != "" && strings.Contains(originHeader, marker) {
			return domain.OriginWeb
		}
	}
	return domain.OriginAPI
}

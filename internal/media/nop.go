package media

import (
	"context"

	"pqcall/internal/domain"
)

// NopEngine satisfies the media engine contract without opening any
// transport. Used in tests and in deployments where clients negotiate media
// entirely between themselves.
type NopEngine struct{}

func (NopEngine) Initialize(context.Context, domain.SessionID) error { return nil }
func (NopEngine) Teardown(domain.SessionID) error                    { return nil }

var _ domain.MediaEngine = NopEngine{}

//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"context"

	"github.com/google/wire"

	"github.com/zeusync/doublezero/internal/config"
)

func InitializeAuthority(cfg config.Config) (*Authority, error) {
	wire.Build(AuthoritySet)
	return nil, nil
}

func InitializeFollower(ctx context.Context, cfg config.Config) (*Follower, func(), error) {
	wire.Build(FollowerSet)
	return nil, nil, nil
}

package injector

import (
	"context"

	"github.com/google/wire"

	"github.com/zeusync/doublezero/internal/config"
	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/store"
	"github.com/zeusync/doublezero/internal/server"
	"github.com/zeusync/doublezero/sdk/go/client"
)

// Authority is everything `doublezero serve` runs. The registry is not
// initialized; the caller owns its Init/Shutdown lifecycle.
type Authority struct {
	Server   *server.Server
	Registry *server.Registry
	Logger   log.Log
}

// Follower is a local store synced through a client.
type Follower struct {
	Store  *store.Store
	Client *client.Client
	Logger log.Log
}

var LoggerSet = wire.NewSet(ProvideLogger, wire.Bind(new(log.Log), new(*log.Logger)))

var AuthoritySet = wire.NewSet(
	LoggerSet,
	ProvideRegistry,
	ProvideServer,
	wire.Struct(new(Authority), "*"),
)

var FollowerSet = wire.NewSet(
	LoggerSet,
	ProvideStore,
	ProvideClient,
	wire.Struct(new(Follower), "*"),
)

func ProvideLogger(cfg config.Config) *log.Logger {
	return log.New(cfg.Level())
}

func ProvideRegistry(cfg config.Config) *server.Registry {
	return server.NewRegistry(cfg.Server.SessionQueueSize)
}

func ProvideServer(cfg config.Config, registry *server.Registry, logger log.Log) (*server.Server, error) {
	return server.NewServer(cfg.Server, registry, logger)
}

// ProvideStore opens the configured store; the cleanup closes it.
func ProvideStore(ctx context.Context, cfg config.Config, logger log.Log) (*store.Store, func(), error) {
	kind, err := cfg.Storage.StoreKind()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(ctx, kind, cfg.Storage.StoreOptions(logger))
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

func ProvideClient(cfg config.Config, st *store.Store, logger log.Log) (*client.Client, error) {
	return client.NewClient(cfg.Client, st, logger)
}

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/followgate/internal/follow"
	"github.com/tyemirov/followgate/internal/followpg"
	"github.com/tyemirov/followgate/internal/identity"
	"github.com/tyemirov/followgate/internal/storage"
	"go.uber.org/zap"
)

const configCodePGXRequiresPostgres = "config.pgx_requires_postgres"

type backends struct {
	identities identity.Store
	follows    follow.Store
	database   *storage.Database
	pool       *pgxpool.Pool
}

// Close releases the connection pools opened for the backends.
func (stores *backends) Close() {
	if stores == nil {
		return
	}
	if stores.pool != nil {
		stores.pool.Close()
	}
	if stores.database != nil {
		if sqlDB, err := stores.database.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// openBackends selects identity and relationship stores from the database URL and store driver.
// An empty URL selects in-memory stores; the pgx driver requires a postgres URL.
func openBackends(ctx context.Context, serverSettings ServerSettings, logger *zap.Logger) (*backends, error) {
	if serverSettings.DatabaseURL == "" {
		logger.Info("using in-memory stores")
		return &backends{
			identities: identity.NewMemoryStore(),
			follows:    follow.NewMemoryStore(),
		}, nil
	}
	if serverSettings.StoreDriver == storeDriverPGX && !storage.IsPostgres(serverSettings.DatabaseURL) {
		return nil, configError(configCodePGXRequiresPostgres, "store_driver pgx requires a postgres database_url")
	}

	database, openErr := storage.Open(ctx, serverSettings.DatabaseURL)
	if openErr != nil {
		return nil, openErr
	}
	stores := &backends{database: database}

	identityStore, identityErr := identity.NewDatabaseStore(ctx, database.DB, database.DriverLabel)
	if identityErr != nil {
		stores.Close()
		return nil, identityErr
	}
	stores.identities = identityStore

	if serverSettings.StoreDriver == storeDriverPGX {
		pool, poolErr := followpg.BuildPool(ctx, serverSettings.DatabaseURL)
		if poolErr != nil {
			stores.Close()
			return nil, poolErr
		}
		stores.pool = pool
		if schemaErr := followpg.EnsureSchema(ctx, pool); schemaErr != nil {
			stores.Close()
			return nil, schemaErr
		}
		stores.follows = followpg.NewStore(pool)
		logger.Info("using persistent stores",
			zap.String("identity_driver", database.DriverLabel),
			zap.String("follow_driver", "pgx"))
		return stores, nil
	}

	followStore, followErr := follow.NewDatabaseStore(ctx, database.DB, database.DriverLabel)
	if followErr != nil {
		stores.Close()
		return nil, followErr
	}
	stores.follows = followStore
	logger.Info("using persistent stores",
		zap.String("identity_driver", database.DriverLabel),
		zap.String("follow_driver", followStore.Driver()))
	return stores, nil
}

package app

import (
	"context"
	"database/sql"
	"fmt"

	accessDomain "github.com/felixgeelhaar/gatehouse/internal/access/domain"
	"github.com/felixgeelhaar/gatehouse/internal/access/infrastructure/policy"
	entitlementsDomain "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	entitlementsPersistence "github.com/felixgeelhaar/gatehouse/internal/entitlements/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/gatehouse/internal/shared/application"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	sharingDomain "github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	sharingPersistence "github.com/felixgeelhaar/gatehouse/internal/sharing/infrastructure/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	handle *database.Handle
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(handle *database.Handle) *RepositoryFactory {
	return &RepositoryFactory{handle: handle}
}

// Driver returns the driver the factory builds for.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.handle.Driver
}

// GrantRepository creates the entitlement grant repository.
func (f *RepositoryFactory) GrantRepository() (entitlementsDomain.GrantRepository, error) {
	switch f.handle.Driver {
	case database.DriverPostgres:
		pool, err := f.postgresPool()
		if err != nil {
			return nil, err
		}
		return entitlementsPersistence.NewPostgresGrantRepository(pool), nil
	case database.DriverSQLite:
		db, err := f.sqliteDB()
		if err != nil {
			return nil, err
		}
		return entitlementsPersistence.NewSQLiteGrantRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.handle.Driver)
	}
}

// TokenRepository creates the share-token repository.
func (f *RepositoryFactory) TokenRepository() (sharingDomain.TokenRepository, error) {
	switch f.handle.Driver {
	case database.DriverPostgres:
		pool, err := f.postgresPool()
		if err != nil {
			return nil, err
		}
		return sharingPersistence.NewPostgresTokenRepository(pool), nil
	case database.DriverSQLite:
		db, err := f.sqliteDB()
		if err != nil {
			return nil, err
		}
		return sharingPersistence.NewSQLiteTokenRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.handle.Driver)
	}
}

// OutboxRepository creates the outbox repository.
func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	switch f.handle.Driver {
	case database.DriverPostgres:
		pool, err := f.postgresPool()
		if err != nil {
			return nil, err
		}
		return outbox.NewPostgresRepository(pool), nil
	case database.DriverSQLite:
		db, err := f.sqliteDB()
		if err != nil {
			return nil, err
		}
		return outbox.NewSQLiteRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.handle.Driver)
	}
}

// UnitOfWork creates the transaction boundary every repository above joins.
func (f *RepositoryFactory) UnitOfWork() (sharedApplication.UnitOfWork, error) {
	switch f.handle.Driver {
	case database.DriverPostgres:
		pool, err := f.postgresPool()
		if err != nil {
			return nil, err
		}
		return sharedPersistence.NewPostgresUnitOfWork(pool), nil
	case database.DriverSQLite:
		db, err := f.sqliteDB()
		if err != nil {
			return nil, err
		}
		return sharedPersistence.NewSQLiteUnitOfWork(db), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.handle.Driver)
	}
}

// PolicyStore creates the database-backed policy store. The Postgres store
// opens its own lib/pq handle; the returned closer releases it.
func (f *RepositoryFactory) PolicyStore(ctx context.Context, databaseURL string, maxConns int) (accessDomain.PolicyStore, func() error, error) {
	switch f.handle.Driver {
	case database.DriverPostgres:
		store, err := policy.OpenPostgresStore(ctx, databaseURL, maxConns)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case database.DriverSQLite:
		db, err := f.sqliteDB()
		if err != nil {
			return nil, nil, err
		}
		return policy.NewSQLiteStore(db), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported driver: %s", f.handle.Driver)
	}
}

func (f *RepositoryFactory) postgresPool() (*pgxpool.Pool, error) {
	if f.handle.Pool == nil {
		return nil, fmt.Errorf("postgres pool not available")
	}
	return f.handle.Pool, nil
}

func (f *RepositoryFactory) sqliteDB() (*sql.DB, error) {
	if f.handle.SQL == nil {
		return nil, fmt.Errorf("sqlite database not available")
	}
	return f.handle.SQL, nil
}

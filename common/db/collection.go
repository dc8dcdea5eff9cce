package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ceramicnetwork/go-fanout/common"
	"github.com/ceramicnetwork/go-fanout/models"
)

var _ models.CollectionRepository = &CollectionDatabase{}

const createCollectionTable = `CREATE TABLE IF NOT EXISTS collection_item (
	owner_id         TEXT        NOT NULL,
	item_key         TEXT        NOT NULL,
	quantity         INTEGER     NOT NULL,
	unit_price_minor BIGINT      NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner_id, item_key)
)`

type DbOpts struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// CollectionDatabase is the locally held copy of each owner's collection.
type CollectionDatabase struct {
	pool   *pgxpool.Pool
	logger models.Logger
}

func NewCollectionDb(ctx context.Context, logger models.Logger, opts DbOpts) (*CollectionDatabase, error) {
	connUrl := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		opts.User,
		opts.Password,
		opts.Host,
		opts.Port,
		opts.Name,
	)
	dbCtx, dbCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer dbCancel()

	pool, err := pgxpool.New(dbCtx, connUrl)
	if err != nil {
		return nil, err
	}
	if _, err = pool.Exec(dbCtx, createCollectionTable); err != nil {
		pool.Close()
		return nil, err
	}
	return &CollectionDatabase{pool, logger}, nil
}

func (cdb *CollectionDatabase) Load(ctx context.Context, ownerId string) (models.Collection, error) {
	dbCtx, dbCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer dbCancel()

	rows, err := cdb.pool.Query(
		dbCtx,
		"SELECT item_key, quantity, unit_price_minor, updated_at FROM collection_item WHERE owner_id = $1",
		ownerId,
	)
	if err != nil {
		cdb.logger.Errorf("load: error querying db: %v", err)
		return nil, err
	}
	defer rows.Close()

	collection := models.Collection{}
	for rows.Next() {
		item := models.CollectionItem{}
		if err = rows.Scan(&item.ItemKey, &item.Quantity, &item.UnitPriceMinor, &item.UpdatedAt); err != nil {
			return nil, err
		}
		collection[item.ItemKey] = item
	}
	return collection, rows.Err()
}

// Save replaces the stored collection for ownerId in a single transaction.
func (cdb *CollectionDatabase) Save(ctx context.Context, ownerId string, collection models.Collection) error {
	dbCtx, dbCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer dbCancel()

	tx, err := cdb.pool.Begin(dbCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(dbCtx)

	if _, err = tx.Exec(dbCtx, "DELETE FROM collection_item WHERE owner_id = $1", ownerId); err != nil {
		cdb.logger.Errorf("save: error clearing collection: %v", err)
		return err
	}
	for _, item := range collection {
		if _, err = tx.Exec(
			dbCtx,
			"INSERT INTO collection_item (owner_id, item_key, quantity, unit_price_minor, updated_at) VALUES ($1, $2, $3, $4, $5)",
			ownerId,
			item.ItemKey,
			item.Quantity,
			item.UnitPriceMinor,
			item.UpdatedAt.UTC(),
		); err != nil {
			cdb.logger.Errorf("save: error inserting item %s: %v", item.ItemKey, err)
			return err
		}
	}
	return tx.Commit(dbCtx)
}

func (cdb *CollectionDatabase) Close() {
	cdb.pool.Close()
}

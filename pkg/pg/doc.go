// Package pg bootstraps the PostgreSQL layer on top of pgx/v5.
//
// Connect opens a pool with retry, Migrate applies the embedded goose
// migrations through a database/sql bridge, and Healthcheck exposes a
// readiness probe. The error helpers classify pgx errors so stores can map
// them to their own sentinels:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
//		return err
//	}
package pg

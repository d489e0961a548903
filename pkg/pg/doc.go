// Package pg wires PostgreSQL access through pgx/v5: a pool with startup retry,
// goose migrations applied from an embedded filesystem, a health probe and
// helpers classifying pgx errors.
//
//	pool, err := pg.Connect(ctx, cfg.PG)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, cfg.PG, log); err != nil {
//		return err
//	}
package pg

// Package pgstore implements the subscription store contracts and the task
// queue storage on PostgreSQL with pgx.
//
// Every mutation is a single statement. The cuts reset rule runs inside the
// upsert as a CASE expression and credit consumption is one conditional
// UPDATE, so concurrent webhooks and appointment completions never need
// application-level locks.
//
// Schema migrations are embedded and applied with pg.Migrate:
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg, log); err != nil {
//		return err
//	}
//	store := pgstore.New(pool)
package pgstore

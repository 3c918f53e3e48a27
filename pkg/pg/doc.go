// Package pg wires PostgreSQL through pgx/v5.
//
// Connect opens a pgxpool.Pool with retry, Migrate applies goose migrations
// from an fs.FS (normally the embedded migrations package) and Healthcheck
// adapts Ping for readiness checks.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil { ... }
//
// Error classifiers such as IsDuplicateKeyError unwrap *pgconn.PgError so
// repositories can translate driver errors into domain sentinels.
package pg

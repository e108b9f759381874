// Package postgres implements the execution store using pgx/v5 with
// raw SQL. Optimistic-concurrency writes use a version-guarded UPDATE;
// step states and context live in JSONB columns. Migrations are
// embedded SQL files applied by Migrate.
package postgres

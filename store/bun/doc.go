// Package bunstore implements store.Store with the Bun ORM on PostgreSQL.
//
// It shares the lakequeue_entities schema and migration history with
// store/postgres, so one database can be served by either backend. The
// caller may pass its own *bun.DB:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	s := bunstore.New(db)
//	if err := s.Migrate(ctx); err != nil { ... }
package bunstore

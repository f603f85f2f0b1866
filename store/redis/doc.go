// Package redis implements store.Store on Redis.
//
// Each entity is a hash with "value" and "token" fields. Every partition
// has a sorted set of its row keys, all scored 0, so Range is a single
// ZRANGEBYLEX. Apply runs as one Lua script that checks every precondition
// before writing anything.
//
// All keys of a partition share a hash tag, so a partition maps to one
// cluster slot and Apply stays atomic on Redis Cluster.
//
// The caller owns the client lifecycle:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

// Package redis connects to Redis through go-redis with startup retry and
// offers a small typed JSON cache used for read-through lookups.
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//		return err
//	}
//	cache := redis.NewJSONCache[Entry](client, "catalog", 10*time.Minute)
package redis

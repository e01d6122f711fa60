// Package database holds the process-wide MySQL and Redis connections.
package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"cyberchat-go/pkg/log"
)

var RDB *redis.Client

// InitRedis connects to Redis and pings it.
func InitRedis(addr, password string, db int) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}
	log.Info("Redis client connected successfully")
}

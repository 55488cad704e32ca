package config

import (
	"context"
	"log"
	"os"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

func init() {
	godotenv.Load()
}

// ConnectRedis wires the shared client and the distributed locker.
// Redis is optional: when REDIS_ADDRESS is unset the locker stays nil and
// callers fall back to single-instance behavior.
func ConnectRedis(ctx context.Context) {
	address := os.Getenv("REDIS_ADDRESS")
	if address == "" {
		log.Printf("REDIS_ADDRESS not set; running without redis locks")
		return
	}

	rdb = redis.NewClient(&redis.Options{
		Addr:     address,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis not reachable at %s: %v; running without redis locks", address, err)
		rdb = nil
		return
	}

	locker = redislock.New(rdb)
	log.Printf("connected to redis at %s", address)
}

package config

// Redis backs the shared credential store.  Connection parameters come from
// the profile and REDIS_* environment variables.

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TLS      bool          `yaml:"tls"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

func defaultRedis() RedisConfig {
	return RedisConfig{Addr: "localhost:6379", Key: "league:session"}
}

// fromEnv applies the variables:
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand (host/port win when both are set)
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number
//	REDIS_TLS – enable TLS when "true" or "1"
//	REDIS_SESSION_KEY, REDIS_SESSION_TTL – where and how long the credential lives
func (r RedisConfig) fromEnv() RedisConfig {
	r.Addr = getenv("REDIS_ADDR", r.Addr)
	if host, port := getenv("REDIS_HOST", ""), getenv("REDIS_PORT", ""); host != "" && port != "" {
		r.Addr = host + ":" + port
	}
	r.Password = getenv("REDIS_PASSWORD", r.Password)
	r.DB = envInt("REDIS_DB", r.DB)
	r.TLS = envBool("REDIS_TLS", r.TLS)
	r.Key = getenv("REDIS_SESSION_KEY", r.Key)
	r.TTL = envDur("REDIS_SESSION_TTL", r.TTL)
	return r
}

// NewRedisClient builds a client and pings the server with a short timeout.
// The client is closed when the ping fails.
func NewRedisClient(rc RedisConfig) (*redis.Client, error) {
	var tlsConf *tls.Config
	if rc.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", rc.Addr, err)
	}
	return client, nil
}

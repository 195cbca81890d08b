package lock

import "time"

// Config holds configuration for the run lock.
type Config struct {
	// Backend selects the lock implementation (file, redis).
	Backend string `mapstructure:"backend" default:"file"`
	// Path is the lock file used by the file backend.
	Path string `mapstructure:"path" default:"/tmp/site-sync.lock"`
	// RedisAddr is the host:port of the redis server.
	RedisAddr string `mapstructure:"redis_addr" default:"localhost:6379"`
	// RedisPassword authenticates against redis.
	RedisPassword string `mapstructure:"redis_password" default:""`
	// RedisDB selects the redis database.
	RedisDB int `mapstructure:"redis_db" default:"0"`
	// Key is the redis key holding the lock.
	Key string `mapstructure:"key" default:"site-sync:lock"`
	// TTL bounds how long a crashed run keeps the lock.
	TTL time.Duration `mapstructure:"ttl" default:"2h"`
}

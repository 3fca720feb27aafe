package nlock

import (
	"encoding/json"
	"os"
	"time"
)

// Config contains the host/connection parameters and coordinator defaults read
// at startup. It mirrors the teacher's split between caching (Redis) and backend
// store (Cassandra) hosts, extended with the lock coordinator's own knobs.
type Config struct {
	// RedisAddrs are the Redis endpoints backing the near-cache L2 tier and the
	// per-node lock-key store.
	RedisAddrs []string
	// CassandraHosts are the cluster hosts backing the topology/membership table.
	CassandraHosts []string
	// CassandraKeyspace is the keyspace holding the node and topology_version tables.
	CassandraKeyspace string
	// DefaultTimeout is a default attempt timeout carried in the config file.
	// Nothing in this module reads it; lockfuture.New takes its timeout explicitly.
	DefaultTimeout time.Duration
	// MaxInFlightAttempts is a limit on in-flight LockAttempts carried in the
	// config file. The MVCC registry does not read or enforce it.
	MaxInFlightAttempts int
}

// DefaultConfig returns a Config with conservative defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:       15 * time.Second,
		MaxInFlightAttempts: 10000,
	}
}

// LoadConfig reads a JSON file into a Config, applying DefaultConfig for fields the file omits.
func LoadConfig(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, err
	}
	c := DefaultConfig()
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

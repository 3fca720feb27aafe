// Command lockadmin runs the introspection REST API over an in-process
// lock acquisition coordinator: listing in-flight attempts, inspecting one
// attempt's mini-futures, and force-expiring a stuck attempt.
//
// Please feel free to reuse or copy-paste it to implement your own
// operator-facing surface over a Coordinator.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/admin"
	"github.com/sharedcode/nlock/affinity"
	_ "github.com/sharedcode/nlock/cache" // registers the in-memory L2 cache factory
	"github.com/sharedcode/nlock/dht"
	"github.com/sharedcode/nlock/lockfuture"
	"github.com/sharedcode/nlock/nearcache"
	"github.com/sharedcode/nlock/redis"
	"github.com/sharedcode/nlock/transport"
)

// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	localNode := nlock.NodeID(envOr("NLOCK_NODE_ID", "node-1"))

	topo := affinity.NewStaticTopology(affinity.NodeRef{ID: localNode, Weight: 1})
	mapper := affinity.NewMapper([]nlock.NodeID{localNode}, topo.TopologyVersion())
	near := nearcache.NewStore(256, 4096, buildL2Cache())
	tier := dht.NewLocalTier()
	tr := transport.NewInMemory()
	registry := lockfuture.NewRegistry()
	timeouts := lockfuture.NewTimeoutWheel()

	coord := lockfuture.NewCoordinator(localNode, topo, mapper, near, tier, tr, registry, timeouts)
	coord.Dispatcher = lockfuture.NewDispatcher(context.Background(), 64)

	watcher := lockfuture.NewWatcher(topo, mapper, registry, coord, 2*time.Second)
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go watcher.Run(watchCtx)

	admin.Coordinator = coord
	admin.Registry = registry

	admin.RegisterMethod(admin.GET, "/attempts", admin.ListAttempts)
	admin.RegisterMethod(admin.GET, "/attempts/:futureId", admin.GetAttempt)
	admin.RegisterMethod(admin.POST, "/attempts/:futureId/expire", admin.ForceExpireAttempt)

	router := gin.Default()
	v1 := router.Group("/api/v1")
	{
		for _, rm := range admin.RestMethods() {
			switch rm.Verb {
			case admin.GET:
				v1.GET(rm.Path, admin.VerifyBearerToken(rm.Handler))
			case admin.POST:
				v1.POST(rm.Path, admin.VerifyBearerToken(rm.Handler))
			default:
				panic(fmt.Sprintf("lockadmin: HTTP verb %d not supported", rm.Verb))
			}
		}
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
	router.Run(envOr("NLOCK_LISTEN_ADDR", "localhost:8080"))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// buildL2Cache selects the near-cache's cross-process L2 tier from
// NLOCK_L2_CACHE ("redis", "memory", or unset/anything else for none). The
// DHT tier's own lock bookkeeping stays purely in-process either way; L2
// only backs Store.L2() for operators layering cross-process coordination
// on top of the near-cache.
func buildL2Cache() nlock.L2Cache {
	switch envOr("NLOCK_L2_CACHE", "none") {
	case "redis":
		if _, err := redis.OpenConnection(redis.Options{Address: envOr("REDIS_ADDR", "localhost:6379")}); err != nil {
			panic(fmt.Sprintf("lockadmin: opening redis connection: %v", err))
		}
		nlock.SetCacheFactory(nlock.RedisL2)
	case "memory":
		nlock.SetCacheFactory(nlock.InMemory)
	default:
		return nil
	}
	return nlock.NewCacheClient()
}

package nlock

// CacheFactory builds an L2Cache instance for a given L2CacheType.
type CacheFactory func() L2Cache

var globalCacheFactory CacheFactory
var globalCacheFactoryType L2CacheType
var cacheRegistry = make(map[L2CacheType]CacheFactory)

// RegisterCacheFactory registers a cache factory for a given type. Call this
// from an init() in the package providing the concrete cache (redis, cache).
func RegisterCacheFactory(t L2CacheType, f CacheFactory) {
	cacheRegistry[t] = f
}

// SetCacheFactory sets the global cache factory based on the registered type.
func SetCacheFactory(t L2CacheType) {
	if f, ok := cacheRegistry[t]; ok {
		globalCacheFactory = f
		globalCacheFactoryType = t
	}
}

// GetCacheFactoryType returns the currently selected L2 cache factory type.
func GetCacheFactoryType() L2CacheType {
	return globalCacheFactoryType
}

// NewCacheClient creates a new L2Cache using the registered factory.
// It returns nil if no factory has been selected via SetCacheFactory.
func NewCacheClient() L2Cache {
	if globalCacheFactory == nil {
		return nil
	}
	return globalCacheFactory()
}

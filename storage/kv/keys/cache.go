package keys

// Cache is the key of a cache entry. prefix separates
// deployments sharing one store.
func Cache(prefix, key string) string {
	return Join(string(KindCache), prefix, key)
}

// CachePrefix is shared by every entry created with prefix
func CachePrefix(prefix string) string {
	return Join(string(KindCache), prefix) + separator
}

// Queue is the list holding the events of queue
func Queue(queue string) string {
	return Join(string(KindEvents), queue)
}

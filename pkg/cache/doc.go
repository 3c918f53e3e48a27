// Package cache provides a generic, thread-safe LRU cache.
//
// Evicted values can be released through an eviction callback, which makes
// the cache suitable for holding per-tenant clients and per-user broadcasters:
//
//	c := cache.NewLRU[string, *Client](100, cache.WithEvictFunc(func(_ string, cl *Client) {
//		cl.Close()
//	}))
//	client, err := c.GetOrCreate(tenantID, func() (*Client, error) {
//		return dial(tenantID)
//	})
package cache

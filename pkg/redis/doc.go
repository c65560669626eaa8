// Package redis provides connection bootstrap with retries and a health
// probe for the Redis instance backing the durable notification queue.
package redis

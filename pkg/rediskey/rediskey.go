package rediskey

import "fmt"

// Callback keys (global convention across broker instances)
const (
	ReplayPrefix            = "callback:replay"
	CallbackRateLimitPrefix = "callback:ratelimit"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildReplayKey returns "callback:replay:{timestamp}:{signature}"
func BuildReplayKey(timestamp int64, signature string) string {
	return NamespaceKey(ReplayPrefix, fmt.Sprintf("%d:%s", timestamp, signature))
}

// BuildCallbackRateLimitKey returns "callback:ratelimit:{advertiserID}"
func BuildCallbackRateLimitKey(advertiserID string) string {
	return NamespaceKey(CallbackRateLimitPrefix, advertiserID)
}

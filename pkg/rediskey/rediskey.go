package rediskey

import "fmt"

// Entitlement keys (global convention across services)
const (
	EntitlementPrefix = "entitlement"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildEntitlementChannel returns "entitlement:{kind}:{ownerID}"
func BuildEntitlementChannel(kind, ownerID string) string {
	return NamespaceKey(NamespaceKey(EntitlementPrefix, kind), ownerID)
}

// BuildEntitlementPattern returns "entitlement:{kind}:*" for PSUBSCRIBE.
func BuildEntitlementPattern(kind string) string {
	return NamespaceKey(NamespaceKey(EntitlementPrefix, kind), "*")
}

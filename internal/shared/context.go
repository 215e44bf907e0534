package shared

import "context"

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated caller in context.
func ContextWithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext extracts the authenticated caller, empty when anonymous.
func PrincipalFromContext(ctx context.Context) string {
	principal, _ := ctx.Value(principalContextKey{}).(string)
	return principal
}

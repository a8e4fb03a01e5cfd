package outbox

import "context"

// TenantLocaleLookup returns the locale configured on a tenant.
// An empty string means "not set".
type TenantLocaleLookup interface {
	TenantLocale(ctx context.Context, tenantID string) (string, error)
}

// TenantLocaleFunc adapts a function to TenantLocaleLookup.
type TenantLocaleFunc func(ctx context.Context, tenantID string) (string, error)

func (f TenantLocaleFunc) TenantLocale(ctx context.Context, tenantID string) (string, error) {
	return f(ctx, tenantID)
}

// UserLocaleLookup returns the locale on a recipient's profile.
type UserLocaleLookup interface {
	UserLocale(ctx context.Context, userID string) (string, error)
}

// UserLocaleFunc adapts a function to UserLocaleLookup.
type UserLocaleFunc func(ctx context.Context, userID string) (string, error)

func (f UserLocaleFunc) UserLocale(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

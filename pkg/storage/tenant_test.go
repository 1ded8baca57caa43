package storage

import (
	"context"
	"testing"
)

func TestTenantRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := GetTenant(ctx); got != "" {
		t.Errorf("GetTenant on empty context = %q, want empty", got)
	}

	ctx = SetTenant(ctx, "acme")
	if got := GetTenant(ctx); got != "acme" {
		t.Errorf("GetTenant = %q, want acme", got)
	}
}

func TestTenantOverwrite(t *testing.T) {
	ctx := SetTenant(context.Background(), "first")
	ctx = SetTenant(ctx, "second")
	if got := GetTenant(ctx); got != "second" {
		t.Errorf("GetTenant = %q, want second", got)
	}
}

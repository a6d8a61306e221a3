package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSeedUsers_InsertsUsers(t *testing.T) {
	store := NewMemoryRecordStore()

	n, err := SeedUsers(context.Background(), store, strings.NewReader(`[
		{"id": "6f1b2c3d-0000-4000-8000-000000000001", "email": "alice@example.com", "name": "Alice", "created_at": "2025-02-01T00:00:00Z"},
		{"email": " bob@example.com "}
	]`))
	if err != nil {
		t.Fatalf("SeedUsers() error = %v", err)
	}
	if n != 2 {
		t.Errorf("seeded = %d, want 2", n)
	}

	alice, err := store.FindByField(context.Background(), TableUsers, "email", "alice@example.com")
	if err != nil || alice == nil {
		t.Fatalf("alice not found: %v", err)
	}
	if alice.String("name") != "Alice" {
		t.Errorf("name = %q, want %q", alice.String("name"), "Alice")
	}
	if _, ok, err := alice.Time("created_at"); err != nil || !ok {
		t.Errorf("created_at should be readable: ok=%v err=%v", ok, err)
	}

	bob, err := store.FindByField(context.Background(), TableUsers, "email", "bob@example.com")
	if err != nil || bob == nil {
		t.Fatalf("bob should be stored with a trimmed email: %v", err)
	}
	if _, ok := bob["name"]; ok {
		t.Error("empty fields should not be stored")
	}
}

func TestSeedUsers_EmptyArray(t *testing.T) {
	store := NewMemoryRecordStore()

	n, err := SeedUsers(context.Background(), store, strings.NewReader(`[]`))
	if err != nil {
		t.Fatalf("SeedUsers() error = %v", err)
	}
	if n != 0 || store.Len(TableUsers) != 0 {
		t.Errorf("seeded = %d, len = %d, want 0", n, store.Len(TableUsers))
	}
}

func TestSeedUsers_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `users: alice`},
		{"not an array", `{"email": "alice@example.com"}`},
		{"unknown field", `[{"email": "alice@example.com", "password": "x"}]`},
		{"missing email", `[{"name": "Alice"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SeedUsers(context.Background(), NewMemoryRecordStore(), strings.NewReader(tt.input)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSeedUsers_DuplicateEmail(t *testing.T) {
	store := NewMemoryRecordStore()

	n, err := SeedUsers(context.Background(), store, strings.NewReader(`[
		{"email": "alice@example.com"},
		{"email": "alice@example.com"}
	]`))
	if !errors.Is(err, ErrDuplicateSeedUser) {
		t.Fatalf("error = %v, want ErrDuplicateSeedUser", err)
	}
	if n != 1 {
		t.Errorf("seeded = %d, want 1", n)
	}
	if store.Len(TableUsers) != 1 {
		t.Errorf("len = %d, want 1", store.Len(TableUsers))
	}
}

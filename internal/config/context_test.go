package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestContext_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want bool
	}{
		{name: "empty context", ctx: Context{}, want: true},
		{name: "with identity only", ctx: Context{Identity: "alice"}, want: false},
		{name: "with counterpart only", ctx: Context{Counterpart: "bob"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.IsEmpty(); got != tt.want {
				t.Errorf("Context.IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext_SetIdentityClearsCounterpart(t *testing.T) {
	ctx := &Context{Identity: "alice", Counterpart: "bob"}

	ctx.SetIdentity("alice")
	if ctx.Counterpart != "bob" {
		t.Errorf("same identity should keep counterpart, got %q", ctx.Counterpart)
	}

	ctx.SetIdentity("carol")
	if ctx.Counterpart != "" {
		t.Errorf("new identity should clear counterpart, got %q", ctx.Counterpart)
	}
	if ctx.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestContext_String(t *testing.T) {
	tests := []struct {
		ctx  Context
		want string
	}{
		{ctx: Context{}, want: "(no context set)"},
		{ctx: Context{Identity: "alice"}, want: "as:alice"},
		{ctx: Context{Identity: "alice", Counterpart: "bob"}, want: "as:alice with:bob"},
	}

	for _, tt := range tests {
		if got := tt.ctx.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestContextStore_SaveLoad(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "nested", "context.yaml"))

	ctx := &Context{}
	ctx.SetIdentity("alice")
	ctx.SetCounterpart("bob")
	if err := store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Identity != "alice" || loaded.Counterpart != "bob" {
		t.Errorf("loaded = %+v, want alice/bob", loaded)
	}
}

func TestContextStore_LoadEmpty(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "context.yaml"))

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded.IsEmpty() {
		t.Error("Load() should return empty context for non-existent file")
	}
}

func TestContextStore_Clear(t *testing.T) {
	contextPath := filepath.Join(t.TempDir(), "context.yaml")
	store := NewContextStore(contextPath)

	if err := store.Save(&Context{Identity: "alice"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(contextPath); os.IsNotExist(err) {
		t.Fatal("context file should exist after save")
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(contextPath); !os.IsNotExist(err) {
		t.Error("context file should be removed after clear")
	}
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("absent key returns default", func(t *testing.T) {
		s := newStore(t)
		for _, def := range []bool{true, false} {
			v, err := s.GetBool(ctx, "missing", def)
			if err != nil {
				t.Fatalf("GetBool: %v", err)
			}
			if v != def {
				t.Errorf("GetBool(missing, %v) = %v", def, v)
			}
		}
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetBool(ctx, "security_header_csp", false); err != nil {
			t.Fatalf("SetBool: %v", err)
		}
		v, err := s.GetBool(ctx, "security_header_csp", true)
		if err != nil || v {
			t.Errorf("GetBool = %v, %v; want false", v, err)
		}
		if err := s.SetBool(ctx, "security_header_csp", true); err != nil {
			t.Fatalf("SetBool overwrite: %v", err)
		}
		if v, _ := s.GetBool(ctx, "security_header_csp", false); !v {
			t.Error("overwrite not visible")
		}
	})

	t.Run("add only when absent", func(t *testing.T) {
		s := newStore(t)
		added, err := s.AddBool(ctx, "k", false)
		if err != nil || !added {
			t.Fatalf("first AddBool = %v, %v", added, err)
		}
		added, err = s.AddBool(ctx, "k", true)
		if err != nil || added {
			t.Fatalf("second AddBool = %v, %v", added, err)
		}
		if v, _ := s.GetBool(ctx, "k", true); v {
			t.Error("AddBool overwrote an existing value")
		}
	})

	t.Run("delete selected keys", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"a", "b", "keep"} {
			if err := s.SetBool(ctx, k, true); err != nil {
				t.Fatal(err)
			}
		}
		if err := s.Delete(ctx, "a", "b", "never_existed"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		keys, err := s.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if strings.Join(keys, ",") != "keep" {
			t.Errorf("keys after delete = %v", keys)
		}
		if err := s.Delete(ctx); err != nil {
			t.Errorf("empty Delete: %v", err)
		}
	})

	t.Run("keys sorted", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"c", "a", "b"} {
			if err := s.SetBool(ctx, k, true); err != nil {
				t.Fatal(err)
			}
		}
		keys, err := s.Keys(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Join(keys, ",") != "a,b,c" {
			t.Errorf("keys = %v", keys)
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetBool(ctx, "", true); !errors.Is(err, ErrEmptyKey) {
			t.Errorf("SetBool empty key err = %v", err)
		}
		if _, err := s.GetBool(ctx, "", true); !errors.Is(err, ErrEmptyKey) {
			t.Errorf("GetBool empty key err = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestFileStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "settings.json"))
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		return s
	})
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetBool(ctx, "security_header_hsts", false); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, _ := reopened.GetBool(ctx, "security_header_hsts", true); v {
		t.Error("value not persisted")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "settings.db"))
		if err != nil {
			// go-sqlite3 needs cgo; the stub driver fails on first use.
			t.Skipf("sqlite unavailable: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("SECHEADERS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SECHEADERS_TEST_REDIS_URL not set")
	}
	runStoreContract(t, func(t *testing.T) Store {
		prefix := "secheaders_test:" + strings.ReplaceAll(t.Name(), "/", "_") + ":"
		s, err := NewRedisStore(context.Background(), url, prefix)
		if err != nil {
			t.Fatalf("NewRedisStore: %v", err)
		}
		t.Cleanup(func() {
			keys, _ := s.Keys(context.Background())
			_ = s.Delete(context.Background(), keys...)
			_ = s.Close()
		})
		return s
	})
}

func TestMongoDBStore(t *testing.T) {
	url := os.Getenv("SECHEADERS_TEST_MONGODB_URL")
	if url == "" {
		t.Skip("SECHEADERS_TEST_MONGODB_URL not set")
	}
	runStoreContract(t, func(t *testing.T) Store {
		coll := "settings_" + strings.ToLower(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
		if len(coll) > 60 {
			coll = coll[:60]
		}
		s, err := NewMongoDBStore(context.Background(), url, "secheaders_test", coll)
		if err != nil {
			t.Fatalf("NewMongoDBStore: %v", err)
		}
		t.Cleanup(func() {
			_ = s.coll.Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"header_settings", "_x", "Settings2"}
	invalid := []string{"", "1abc", "drop table;", "a-b", strings.Repeat("a", 64)}
	for _, name := range valid {
		if err := validateIdentifier(name); err != nil {
			t.Errorf("%q should be valid: %v", name, err)
		}
	}
	for _, name := range invalid {
		if err := validateIdentifier(name); err == nil {
			t.Errorf("%q should be invalid", name)
		}
	}
}

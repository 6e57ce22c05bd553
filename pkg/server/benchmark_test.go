package server_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ha1tch/hotelmig/pkg/cache"
	"github.com/ha1tch/hotelmig/pkg/config"
	"github.com/ha1tch/hotelmig/pkg/identity"
	"github.com/ha1tch/hotelmig/pkg/migration"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/server"
	"github.com/ha1tch/hotelmig/pkg/storage"
)

// setupBenchServer creates a server whose identity table holds n partners
func setupBenchServer(b *testing.B, n int) (http.Handler, func()) {
	b.Helper()

	tmpFile, err := os.CreateTemp("", "hotelmig-bench-*.db")
	if err != nil {
		b.Fatal(err)
	}
	tmpFile.Close()

	store, err := storage.NewMigrationStore("sqlite", map[string]interface{}{"db_path": tmpFile.Name()})
	if err != nil {
		b.Fatal(err)
	}

	memCache := cache.NewMemoryCache(n, time.Minute)
	ids := identity.New(store, memCache)
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		if err := ids.Register(ctx, models.Partner, i, i+1000, "bench"); err != nil {
			b.Fatal(err)
		}
	}

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	orch, err := migration.New(migration.Options{Store: store, Identity: ids, Logger: logger})
	if err != nil {
		b.Fatal(err)
	}

	srv := server.New(config.Default(), orch, store, ids, logger)
	cleanup := func() {
		memCache.Close()
		store.Close()
		os.Remove(tmpFile.Name())
	}
	return srv.Handler(), cleanup
}

type discardWriter struct {
	header http.Header
	status int
}

func (w *discardWriter) Header() http.Header         { return w.header }
func (w *discardWriter) Write(b []byte) (int, error) { return io.Discard.Write(b) }
func (w *discardWriter) WriteHeader(status int)      { w.status = status }

func BenchmarkHealth(b *testing.B) {
	handler, cleanup := setupBenchServer(b, 0)
	defer cleanup()

	req, _ := http.NewRequest("GET", "/health", nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(&discardWriter{header: http.Header{}}, req)
	}
}

func BenchmarkIdentityLookup(b *testing.B) {
	const partners = 1000
	handler, cleanup := setupBenchServer(b, partners)
	defer cleanup()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req, _ := http.NewRequest("GET", fmt.Sprintf("/api/v1/identity/partner/%d", i%partners+1), nil)
		w := &discardWriter{header: http.Header{}}
		handler.ServeHTTP(w, req)
		if w.status != http.StatusOK {
			b.Fatalf("Expected 200, got %d", w.status)
		}
	}
}

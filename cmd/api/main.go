package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatewise.org/internal/audit"
	"gatewise.org/internal/authz"
	"gatewise.org/internal/httpapi"
	"gatewise.org/internal/obs"
	"gatewise.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("GATEWISE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing GATEWISE_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	cache := authz.NewPermissionCache()
	svc, err := authz.NewService(store,
		authz.WithAuditSink(audit.NewRecorder()),
		authz.WithCache(cache),
	)
	if err != nil {
		log.Fatalf("service: %v", err)
	}
	resolver := authz.NewResolver(store, cache)
	memberships := authz.NewStoreMembershipProvider(store)

	api := httpapi.New(httpapi.Config{
		Service:     svc,
		Resolver:    resolver,
		Memberships: memberships,
		Version:     version,
		ReadyProbe: func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.DB().PingContext(ctx) == nil
		},
	})

	addr := os.Getenv("GATEWISE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatewise-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	obs.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kapilratnani/pgfire/internal/rest"
	"github.com/kapilratnani/pgfire/internal/store"
)

var (
	servHost string
	servPort int
)

// serveCmd is the cobra command for the serve subcommand, matching
// spec §6.4's CLI contract: `pgfire serve --host localhost --port 8666`.
func serveCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the pgfire HTTP service",
		Run:   cmdServe,
	}
	c.Flags().StringVar(&servHost, "host", "", "listen host, overrides config")
	c.Flags().IntVar(&servPort, "port", 0, "listen port, overrides config")
	return c
}

func cmdServe(cmd *cobra.Command, args []string) {
	conf := loadConfig()

	host := conf.Host
	if servHost != "" {
		host = servHost
	}
	port := conf.Port
	if servPort != 0 {
		port = servPort
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewPostgresStore(ctx, conf.ConnString(), log)
	if err != nil {
		log.Fatalf("connecting to store: %s", err)
	}
	defer st.Close()

	srv := rest.New(st, log)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: srv.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-gctx.Done():
			return gctx.Err()
		}

		log.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%s", err)
	}
}

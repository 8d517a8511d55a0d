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

	"exproctor/internal/server"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP server",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cCtx)

	d, err := buildDeps(ctx, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	var jwkCache *jwk.Cache
	if d.config.JWKSURL != "" {
		jwkCache, err = jwk.NewCache(ctx, httprc.NewClient())
		if err != nil {
			return fmt.Errorf("failed to initilaize jwk cache: %w", err)
		}

		err = jwkCache.Register(ctx, d.config.JWKSURL)
		if err != nil {
			return fmt.Errorf("failed to register jwks url with cache: %w", err)
		}
	} else {
		logger.Warn("JWKS_URL not set, api is unauthenticated")
	}

	srv := server.New(
		d.config,
		logger,
		d.intake,
		d.retention,
		d.report,
		d.settingsRepo,
		d.local.FileHandler(),
		jwkCache,
		d.config.JWKSURL,
	)

	go func() {
		logger.WithField("port", d.config.ServerPort).Infof("server starting http://localhost:%d", d.config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}

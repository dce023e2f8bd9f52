package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/trezcool/tribunal/apps"
	echoapi "github.com/trezcool/tribunal/apps/api/echo"
	"github.com/trezcool/tribunal/core"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger, flush, err := apps.NewLogger(conf)
	if err != nil {
		return err
	}
	defer flush()

	ctx := context.Background()
	store, err := apps.OpenStore(ctx, conf, logger)
	if err != nil {
		return fmt.Errorf("setting up %s store: %w", conf.Store.Driver, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", err)
		}
	}()

	mailer := apps.NewMailer(conf, logger)
	proposalSvc, translator := apps.NewProposalService(conf, store, logger, mailer)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), map[string]interface{}{
		"env":   conf.Env,
		"store": conf.Store.Driver,
	})
	defer logger.Info("Application stopped")

	if len(conf.Tribunal.Maestros) == 0 {
		logger.Warn("no maestro configured, proposals can only be settled by override")
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Address:      conf.Server.Host,
		Debug:        conf.Debug,
		TestMode:     conf.TestMode,
		AppName:      conf.AppName,
		SecretKey:    conf.SecretKey,
		MaestroLevel: conf.Tribunal.MaestroLevel,
		MaxAssetSize: conf.Asset.MaxSize,
		AssetDir:     conf.Asset.Dir,
		AssetPrefix:  assetPrefix(conf.Asset.BaseURL),
		ProposalSvc:  proposalSvc,
		Uploader:     apps.NewUploader(conf),
		Logger:       logger,
		Translator:   translator,
		SignalShutdown: func() {
			shutdown <- syscall.SIGTERM
		},
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API listening", map[string]interface{}{"address": conf.Server.Host})
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Stop(ctx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}

// assetPrefix is the path assets are served from when their base URL is local, eg: /media.
func assetPrefix(baseURL string) string {
	if !strings.HasPrefix(baseURL, "/") {
		return ""
	}
	return path.Clean(baseURL)
}

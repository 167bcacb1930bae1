package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperengineering/canvass/internal/remote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rohanthewiz/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a shared document server",
	Long: `Serve a document store over HTTP so several devices can sync through it.
Documents live in memory unless --dir is given, in which case each document
is a JSON file under that directory.

Clients point at it with --remote-url (or CANVASS_REMOTE_URL) and the same
--api-key.

Example:
  canvass serve --addr :8080 --dir /var/lib/canvass --api-key s3cret`,
	RunE: runServe,
}

var (
	serveAddr string
	serveDir  string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDir, "dir", "", "Store documents as files under this directory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var store remote.DocumentStore = remote.NewMemoryStore()
	backend := "memory"
	if serveDir != "" {
		fs, err := remote.NewFileStore(serveDir)
		if err != nil {
			return err
		}
		store, backend = fs, serveDir
	}

	apiKey := v.GetString("api_key")
	if apiKey == "" {
		printWarning(cmd.ErrOrStderr(), "No API key set; the server accepts every request")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           remote.NewServer(store, apiKey, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("document server listening", "addr", serveAddr, "backend", backend)
	printInfo(cmd.OutOrStdout(), "Serving documents on %s (%s)", serveAddr, backend)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("document server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

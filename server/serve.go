// serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/envconfig"
	"github.com/7blacky7/imp/logutil"
	"github.com/7blacky7/imp/version"
)

// Serve startet den HTTP-Server auf ln und blockiert bis SIGINT/SIGTERM.
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	s := &Server{addr: ln.Addr()}
	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	// Geraete beim Start loggen, damit Probleme frueh sichtbar sind
	selected, err := device.Selected()
	if err != nil {
		return err
	}
	slog.Info("compute backend", "selected", selected)
	for _, info := range device.GetDevices() {
		slog.Info("compute device", "backend", info.Backend, "id", info.DeviceID, "name", info.DeviceName, "threads", info.Threads)
	}

	ctx, done := context.WithCancel(context.Background())
	defer done()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
		case <-ctx.Done():
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srvr.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown failed", "error", err)
			srvr.Close()
		}
		done()
	}()

	err = srvr.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-ctx.Done()
	return nil
}

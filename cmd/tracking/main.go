// Command tracking serves the telemetry tracking table of the MySQL
// database named by DBHOST, DBUSER, DBPASS and DB.
//
// TRACKING_LISTEN sets the listen address (default :8000).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dataeng/internal/config"
	"dataeng/internal/dbclient"
	"dataeng/internal/logging"
	"dataeng/internal/tracking"
)

func main() {
	logger, cleanup := logging.Setup("tracking")
	defer cleanup()

	listen := os.Getenv("TRACKING_LISTEN")
	if listen == "" {
		listen = ":8000"
	}

	dbCfg := config.MySQLFromEnv("ds3002")
	db, err := dbclient.OpenSQL(&dbCfg.Conn, dbCfg.Password)
	if err != nil {
		logger.Error("open database", "error", err)
		cleanup()
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &http.Server{
		Addr:              listen,
		Handler:           tracking.NewHandler(tracking.NewStore(db, dbCfg.Conn.Driver), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", listen, "db_host", dbCfg.Conn.Host, "db", dbCfg.Conn.Database)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
}

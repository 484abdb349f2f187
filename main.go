package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CrowderSoup/taskcollab/app"
	"github.com/CrowderSoup/taskcollab/config"
	"github.com/CrowderSoup/taskcollab/database"
	"github.com/CrowderSoup/taskcollab/handlers"
	"github.com/CrowderSoup/taskcollab/services"
	"github.com/CrowderSoup/taskcollab/store"
)

// Version is set at build time.
var Version = "dev"

func main() {
	var configPath string
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "taskcollab",
		Short:         "Task collaboration client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.Level()})))
			cfg = c
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	conf := func() *config.Config { return cfg }
	rootCmd.AddCommand(serveCmd(conf))
	rootCmd.AddCommand(loginCmd(conf))
	rootCmd.AddCommand(registerCmd(conf))
	rootCmd.AddCommand(logoutCmd(conf))
	rootCmd.AddCommand(tasksCmd(conf))
	rootCmd.AddCommand(notificationsCmd(conf))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is one fully wired client.
type env struct {
	db      *sql.DB
	sockets *services.SocketManager
	app     *app.App
}

// build wires the client. withPush opens the push channel on start; the
// one-shot commands leave it closed.
func build(cfg *config.Config, withPush bool) (*env, error) {
	db, err := database.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	bus := services.NewBus()
	var session *store.SessionStore
	client, err := services.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, services.TokenFunc(func() string {
		return session.Token()
	}), bus)
	if err != nil {
		db.Close()
		return nil, err
	}
	session = store.NewSessionStore(client, database.NewCredentialStore(db), bus)

	e := &env{db: db}
	deps := app.Deps{
		Bus:           bus,
		Session:       session,
		Tasks:         store.NewTaskStore(client),
		Users:         store.NewUserStore(client),
		Notifications: store.NewNotificationStore(client),
	}
	if withPush {
		e.sockets, err = services.NewSocketManager(cfg.SocketURL)
		if err != nil {
			db.Close()
			return nil, err
		}
		deps.Push = app.SocketConnector(e.sockets)
	}
	e.app = app.New(deps)
	return e, nil
}

func (e *env) Close() {
	e.app.Close()
	e.app.Session.Close()
	if err := e.db.Close(); err != nil {
		slog.Warn("failed to close database", "err", err)
	}
}

func serveCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local bridge for a browser front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			if err := cfg.ValidateBridge(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := build(cfg, true)
			if err != nil {
				return err
			}
			defer e.Close()

			hub := handlers.NewHub()
			go hub.Run()
			defer hub.Stop()
			unbridge := handlers.Bridge(e.app, hub)
			defer unbridge()

			if err := e.app.Guard(func() error { return e.app.Init(ctx) }); err != nil {
				slog.Warn("startup incomplete", "err", err)
			}

			server := &http.Server{
				Addr:         cfg.ListenAddr,
				Handler:      handlers.NewRouter(e.app, hub, cfg.AllowedOrigins),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				slog.Info("bridge listening", "addr", cfg.ListenAddr, "api", cfg.APIBaseURL)
				errc <- server.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

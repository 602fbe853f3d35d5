package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remcal/src-server/caldav"
	"remcal/src-server/metric"
	"remcal/src-server/notify"
	"remcal/src-server/route"
	"remcal/src-server/scheduler"
	"remcal/src-server/store"
	"remcal/src-server/sync"
	"remcal/src-server/utils"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	as := utils.NewAppState()
	db := store.New(as.BunDB)

	// a fresh client per sync pass, so credential changes take effect on the
	// very next pass
	newClient := func(serverURL string, username string, password string) (sync.Client, error) {
		return caldav.New(serverURL, username, password, slog.Default())
	}

	// notification fan-out: the websocket hub always, Discord when configured
	hub := notify.NewHub()
	notifiers := notify.Multi{hub}
	if as.Config.GetDiscordAppToken() != "" {
		discordNotifier, err := notify.NewDiscord(
			as.Config.GetDiscordAppToken(),
			as.Config.GetDiscordChannelID(),
			as.MetricChans.DiscordSendMessage)
		if err != nil {
			slog.Warn("can't connect to Discord, notifications are disabled", "error", err)
		} else {
			defer discordNotifier.Close()
			notifiers = append(notifiers, discordNotifier)
		}
	}

	// cancellation mails; nil when SMTP is not configured
	var mailer *notify.Mailer
	if as.Config.GetSMTPHost() != "" {
		mailer = notify.NewMailer(
			as.Config.GetSMTPHost(),
			as.Config.GetSMTPPort(),
			as.Config.GetSMTPUsername(),
			as.Config.GetSMTPPassword(),
			as.Config.GetSMTPFrom())
	}

	orchestrator := sync.NewOrchestrator(db, newClient, notifiers, as.MetricChans)
	registry := sync.NewRegistry(orchestrator, db, sync.TickerScheduler{}, sync.RegistryConfig{
		DefaultInterval: as.Config.GetSyncIntervalDefault(),
		GlobalInterval:  as.Config.GetGlobalSyncInterval(),
		ActiveUserIDs:   hub.ActiveUserIDs,
	})

	go metric.Init(as, hub.SessionCount)

	// http server
	muxer := http.NewServeMux()
	muxer.Handle("GET /metrics", promhttp.Handler())
	route.Auth(muxer, as, db, registry)
	route.Connection(muxer, as, db, registry)
	route.Sync(muxer, as, db, registry)
	route.Calendar(muxer, as, db)
	route.Event(muxer, as, db, newClient, mailer, notifiers)
	route.Export(muxer, db)
	route.Websocket(muxer, as, db, registry, hub)

	srv := &http.Server{
		Addr:    ":" + as.Config.GetPort(),
		Handler: muxer,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("cannot start HTTP server", "error", err)
			as.AppCloseSignalChan <- syscall.SIGTERM
		}
	}()

	// discovers remote changes for users who never press anything
	registry.StartGlobalTask()

	go scheduler.EventNotify(as, notifiers)

	slog.Info("app is now running, press Ctrl+C to exit", "port", as.Config.GetPort())

	signal.Notify(as.AppCloseSignalChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-as.AppCloseSignalChan

	slog.Info("Gracefully shutting down...")

	// stop taking requests, let in-flight passes finish, then drop the
	// sockets and the metric listeners; the database goes last
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("can't shut down HTTP server cleanly", "error", err)
	}
	registry.Shutdown()
	hub.Shutdown()
	as.GracefulShutdown()
	if err := as.RawDB.Close(); err != nil {
		slog.Warn("can't close database", "error", err)
	}
}

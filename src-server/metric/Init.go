package metric

import (
	"log/slog"
	"time"

	"remcal/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// channelGauge mirrors one measurement channel into a prometheus gauge. The
// gauge falls back to 0 when no new measurement arrived for a full clear
// interval, so a stale value never reads as a live one.
func channelGauge(as *utils.AppState, name string, help string, feed <-chan float64, clearTickerInterval *time.Duration) {
	gauge := promauto.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	})
	good := true
	if err := prometheus.Register(gauge); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register metric", "name", name, "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("metric registered", "name", name)
		gauge.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(gauge) {
				case true:
					slog.Debug("metric unregistered", "name", name)
				case false:
					slog.Warn("metric not registered", "name", name)
				}
				return
			case value := <-feed:
				gauge.Set(value)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				gauge.Set(0)
			}
		}
	}()
}

// polledGauge samples a probe on every tick and publishes the result.
func polledGauge(as *utils.AppState, name string, help string, probe func() (float64, error), tickerInterval *time.Duration) {
	gauge := promauto.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	})
	good := true
	if err := prometheus.Register(gauge); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register metric", "name", name, "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("metric registered", "name", name)
		gauge.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		ticker := time.NewTicker(*tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(gauge) {
				case true:
					slog.Debug("metric unregistered", "name", name)
				case false:
					slog.Warn("metric not registered", "name", name)
				}
				return
			case <-ticker.C:
				value, err := probe()
				if err != nil {
					slog.Error("can't collect metric", "name", name, "error", err)
					continue
				}
				gauge.Set(value)
			}
		}
	}()
}

func Init(as *utils.AppState, sessionCount func() int) {
	tickerInterval := as.Config.GetMetricCollectionInterval()
	clearTickerInterval := as.Config.GetMetricCollectionInterval() * 2

	polledGauge(as, "remcal_database_empty_read_microsec",
		"The latency of an empty database read in microseconds",
		func() (float64, error) {
			latency, err := database(as)
			if err != nil {
				return 0, err
			}
			return float64(latency.Microseconds()), nil
		}, &tickerInterval)
	polledGauge(as, "remcal_websocket_sessions",
		"The number of live websocket sessions",
		func() (float64, error) {
			return float64(sessionCount()), nil
		}, &tickerInterval)

	channelGauge(as, "remcal_database_read_microsec",
		"The latency of a database read in microseconds",
		as.MetricChans.DatabaseRead, &clearTickerInterval)
	channelGauge(as, "remcal_database_auth_read_microsec",
		"The latency of the auth middleware's session read in microseconds",
		as.MetricChans.DatabaseReadForAuthMiddleware, &clearTickerInterval)
	channelGauge(as, "remcal_database_write_microsec",
		"The latency of a database write in microseconds",
		as.MetricChans.DatabaseWrite, &clearTickerInterval)
	channelGauge(as, "remcal_discord_send_message_microsec",
		"The latency of a discord message send in microseconds",
		as.MetricChans.DiscordSendMessage, &clearTickerInterval)
	channelGauge(as, "remcal_sync_pass_duration_microsec",
		"The duration of the last sync pass in microseconds",
		as.MetricChans.SyncPassDuration, &clearTickerInterval)
	channelGauge(as, "remcal_sync_events_pulled",
		"Events pulled from the remote server by the last sync pass",
		as.MetricChans.SyncEventsPulled, &clearTickerInterval)
	channelGauge(as, "remcal_sync_events_pushed",
		"Events pushed to the remote server by the last sync pass",
		as.MetricChans.SyncEventsPushed, &clearTickerInterval)
	channelGauge(as, "remcal_ical_repairs",
		"Objects the parser had to repair during the last sync pass",
		as.MetricChans.IcalRepairs, &clearTickerInterval)
}

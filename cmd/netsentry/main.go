// netsentry - telemetry and detection backbone for the security
// monitoring service.
//
// It ingests normalized network-flow events from the capture agent,
// classifies and geo-enriches them, evaluates detection rules, and fans
// the stream out to live dashboards and the audit trail.
//
// Usage:
//
//	netsentry -addr=:8080 -rules=rules/rules.yaml -redis=redis://localhost:6379
//
// Environment variables (alternative to flags):
//
//	NETSENTRY_ADDR      - HTTP listen address
//	NETSENTRY_RULES     - Path to the YAML rule file
//	NETSENTRY_REDIS     - Redis URL
//	NETSENTRY_DATABASE  - PostgreSQL URL
//	GEOIP_CITY_DB       - Path to GeoLite2-City.mmdb
//	GEOIP_ASN_DB        - Path to GeoLite2-ASN.mmdb
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/intellicloud/netsentry/pkg/api"
	"github.com/intellicloud/netsentry/pkg/audit"
	"github.com/intellicloud/netsentry/pkg/geo"
	"github.com/intellicloud/netsentry/pkg/hub"
	"github.com/intellicloud/netsentry/pkg/metrics"
	"github.com/intellicloud/netsentry/pkg/models"
	"github.com/intellicloud/netsentry/pkg/notify"
	"github.com/intellicloud/netsentry/pkg/rules"
	"github.com/intellicloud/netsentry/pkg/store"
)

const trafficBacklog = 200

var (
	addrFlag     = flag.String("addr", "", "HTTP listen address (e.g. :8080)")
	rulesFlag    = flag.String("rules", "", "Path to the YAML rule file")
	redisFlag    = flag.String("redis", "", "Redis URL (optional, e.g. redis://localhost:6379)")
	databaseFlag = flag.String("database", "", "PostgreSQL URL (optional)")
	cityDBFlag   = flag.String("geo-city", "", "Path to GeoLite2 City database")
	asnDBFlag    = flag.String("geo-asn", "", "Path to GeoLite2 ASN database")
)

// getEnvOrFlag returns the flag value if set, otherwise the environment
// variable, otherwise the default.
func getEnvOrFlag(flagVal *string, envName, defaultVal string) string {
	if *flagVal != "" {
		return *flagVal
	}
	if env := os.Getenv(envName); env != "" {
		return env
	}
	return defaultVal
}

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.Info("netsentry starting...")

	addr := getEnvOrFlag(addrFlag, "NETSENTRY_ADDR", ":8080")
	rulesPath := getEnvOrFlag(rulesFlag, "NETSENTRY_RULES", "rules/rules.yaml")
	redisURL := getEnvOrFlag(redisFlag, "NETSENTRY_REDIS", "")
	databaseURL := getEnvOrFlag(databaseFlag, "NETSENTRY_DATABASE", "")
	cityDB := getEnvOrFlag(cityDBFlag, "GEOIP_CITY_DB", "/data/GeoLite2-City.mmdb")
	asnDB := getEnvOrFlag(asnDBFlag, "GEOIP_ASN_DB", "/data/GeoLite2-ASN.mmdb")

	// Connect to Redis (optional)
	var redisClient *redis.Client
	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			log.WithError(err).Warn("Invalid Redis URL")
		} else {
			redisClient = redis.NewClient(opt)
			if err := redisClient.Ping(context.Background()).Err(); err != nil {
				log.WithError(err).Warn("Redis connection failed")
				redisClient = nil
			} else {
				log.WithField("url", redisURL).Info("Connected to Redis")
			}
		}
	}

	// Connect to PostgreSQL (optional); without it the alert store and
	// blocklist run in-process.
	var alerts store.AlertStore
	var blocklist store.Blocklist
	var archiver *store.Archiver
	var pg *store.PostgresStore
	if databaseURL != "" {
		var err error
		pg, err = store.NewPostgresStore(databaseURL)
		if err != nil {
			log.WithError(err).Warn("Database connection failed, using in-memory store")
		}
	}
	if pg != nil {
		alerts, blocklist = pg, pg
		archiver = store.NewArchiver(pg.DB(), log)
		archiver.Start()
		log.Info("Connected to PostgreSQL")
	} else {
		mem := store.NewMemStore()
		alerts, blocklist = mem, mem
	}

	// GeoIP readers tolerate missing database files.
	geoReaders := geo.Open(cityDB, asnDB, log)
	defer geoReaders.Close()

	var notifier notify.Notifier
	if redisClient != nil {
		notifier = notify.NewRedisNotifier(redisClient, "netsentry:notifications", log)
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	traffic := hub.New[models.FlowEvent](trafficBacklog, 0)
	trail := audit.NewTrail()
	engine := rules.NewEngine(rulesPath, alerts, blocklist, notifier, log)
	m := metrics.New(prometheus.DefaultRegisterer)

	server := api.New(api.Config{Addr: addr, RedisURL: redisURL},
		traffic, trail, geoReaders, engine, archiver, redisClient, m, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Shutting down...")
	case err := <-errCh:
		log.WithError(err).Error("Server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Shutdown incomplete")
	}

	// Stop the archiver last so queued events flush.
	if archiver != nil {
		archiver.Stop()
	}
	if pg != nil {
		pg.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	log.Info("netsentry stopped")
}

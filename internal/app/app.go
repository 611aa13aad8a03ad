package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"shrike/internal/app/server"
	"shrike/internal/config"
	"shrike/internal/database"
	"shrike/internal/dispatch"
	"shrike/internal/domain"
	"shrike/internal/geolite"
	"shrike/internal/jobs/runtime"
	"shrike/internal/metrics"
	"shrike/internal/pool"
	"shrike/internal/prober"
	"shrike/internal/support"
)

const defaultPort = 5000

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)

	portFlag := flag.Int("port", defaultPort, "Port for the API server")
	flag.Parse()

	config.ReadSettings()
	cfg := config.GetConfig()

	port := resolvePort(*portFlag, cfg.Server.Port)

	candidatePool := pool.New(cfg.Pool.MinSample, cfg.Pool.RatioFloor)
	seedPool(candidatePool, cfg)
	enrichPool(candidatePool)

	poolMetrics := metrics.New(candidatePool.SnapshotStats)
	selector := pool.NewSelector(candidatePool)

	engine := dispatch.NewEngine(candidatePool, selector, poolMetrics, dispatch.Options{
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		AttemptTimeout: cfg.AttemptTimeout(),
		BackoffMin:     cfg.BackoffMin(),
		BackoffMax:     cfg.BackoffMax(),
	})

	healthProber := prober.New(candidatePool, poolMetrics, prober.Options{
		ProbeURL:         cfg.Probe.URL,
		FastStartPrefix:  cfg.Pool.FastStartPrefix,
		FastStartTimeout: cfg.FastStartTimeout(),
		SweepTimeout:     cfg.SweepTimeout(),
		SweepDelay:       cfg.SweepDelay(),
		SweepIdle:        cfg.SweepIdle(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthProber.FastStart(ctx)
	go healthProber.Run(ctx)

	if os.Getenv("REDIS_URL") != "" {
		redisClient, err := support.GetRedisClient()
		if err != nil {
			log.Error("redis unavailable, heartbeat disabled", "error", err)
		} else {
			heartbeatCancel := runtime.LaunchInstanceHeartbeat(ctx, redisClient, candidatePool.SnapshotStats)
			defer heartbeatCancel()
			if count, err := runtime.CountActiveInstances(ctx, redisClient); err == nil {
				log.Info("relay fleet heartbeat active", "instances", count)
			}
			defer func() {
				if err := support.CloseRedisClient(); err != nil {
					log.Warn("error closing redis client", "error", err)
				}
			}()
		}
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		if err := database.Connect(dsn); err != nil {
			log.Error("snapshot database unavailable, persistence disabled", "error", err)
		} else {
			go runtime.StartPoolSnapshotRoutine(ctx, candidatePool.SnapshotStats)
			defer func() {
				if err := database.Close(); err != nil {
					log.Warn("error closing snapshot database", "error", err)
				}
			}()
		}
	}

	apiServer := server.New(engine, candidatePool, poolMetrics,
		cfg.Upstream.ReaderURL, cfg.Upstream.SearchURL)
	return apiServer.OpenRoutes(ctx, port)
}

// seedPool loads proxy candidates from the settings list, the PROXY_LIST
// environment variable and an optional PROXY_FILE, in that order.
func seedPool(candidatePool *pool.Pool, cfg config.Config) {
	var endpoints []domain.Endpoint

	endpoints = append(endpoints, domain.ParseEndpointList(strings.Join(cfg.Proxies, "\n"))...)

	if raw := os.Getenv("PROXY_LIST"); raw != "" {
		endpoints = append(endpoints, domain.ParseEndpointList(raw)...)
	}

	if path := os.Getenv("PROXY_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error("failed to read proxy file", "path", path, "error", err)
		} else {
			endpoints = append(endpoints, domain.ParseEndpointList(string(data))...)
		}
	}

	added := candidatePool.AddCandidates(endpoints)
	log.Info("proxy pool seeded", "candidates", added)
}

// enrichPool resolves candidate countries when a GeoLite2 database is
// configured.
func enrichPool(candidatePool *pool.Pool) {
	path := os.Getenv("GEOIP_DB")
	if path == "" {
		return
	}

	resolver, err := geolite.Open(path)
	if err != nil {
		log.Error("failed to open GeoLite database", "path", path, "error", err)
		return
	}
	defer resolver.Close()

	for _, endpoint := range candidatePool.Candidates() {
		if country := resolver.Country(endpoint.Host); country != "" {
			candidatePool.SetCountry(endpoint, country)
		}
	}
}

func resolvePort(flagValue, settingsValue int) int {
	if port := support.GetEnvInt("PORT", 0); port > 0 {
		return port
	}
	if flagValue != defaultPort {
		return flagValue
	}
	if settingsValue > 0 {
		return settingsValue
	}
	return defaultPort
}

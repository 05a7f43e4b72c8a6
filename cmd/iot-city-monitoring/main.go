package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cityops/iot-city-monitoring/internal/pkg/application/alerting"
	"github.com/cityops/iot-city-monitoring/internal/pkg/application/broadcast"
	"github.com/cityops/iot-city-monitoring/internal/pkg/application/events"
	"github.com/cityops/iot-city-monitoring/internal/pkg/application/simulator"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/logging"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database"
	adb "github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/alerting"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/readings"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/sensors"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/router"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/tracing"
	"github.com/cityops/iot-city-monitoring/internal/pkg/presentation/api"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/rs/zerolog"
)

const serviceName string = "iot-city-monitoring"

var policiesFile string
var sensorsFile string
var notificationsFile string
var devMode bool

func main() {
	serviceVersion := version()

	ctx, logger := logging.NewLogger(context.Background(), serviceName, serviceVersion)
	logger.Info().Msg("starting up ...")

	cleanup, err := tracing.Init(ctx, logger, serviceName, serviceVersion)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer cleanup()

	flag.StringVar(&policiesFile, "policies", "/opt/cityops/config/authz.rego", "an authorization policy file")
	flag.StringVar(&sensorsFile, "sensors", "/opt/cityops/config/sensors.csv", "list of known sensors")
	flag.StringVar(&notificationsFile, "notifications", "", "notification subscriber configuration file")
	flag.BoolVar(&devMode, "devmode", false, "run with an in memory database and a reading simulator")
	flag.Parse()

	secret := env(logger, "JWT_SECRET", "")
	if secret == "" {
		logger.Fatal().Msg("JWT_SECRET must be set")
	}

	connect := newConnector(ctx, logger)

	sensorRepo, err := sensors.NewSensorRepository(connect)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to sensor repository")
	}

	readingRepo, err := readings.NewReadingRepository(connect)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to reading repository")
	}

	alertRepo, err := adb.NewAlertRepository(connect)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to alert repository")
	}

	seedSensors(ctx, logger, sensorRepo)

	messenger, err := messaging.Initialize(messaging.LoadConfiguration(serviceName, logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init messenger")
	}

	notifier := events.New(loadNotificationConfig(logger))

	alertSvc := alerting.New(alertRepo, sensorRepo, messenger, notifier)
	alertSvc.Start()

	b := broadcast.New(logger, readingRepo, messenger)

	if devMode || env(logger, "SIMULATOR_ENABLED", "false") == "true" {
		interval, _ := time.ParseDuration(env(logger, "SIMULATOR_INTERVAL", "10s"))
		sim := simulator.New(logger, sensorRepo, readingRepo, interval)
		sim.Start()
		defer sim.Stop()
	}

	policies, err := os.Open(policiesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to open opa policy file")
	}
	defer policies.Close()

	r := router.New(serviceName)

	r, err = api.RegisterHandlers(ctx, r, policies, []byte(secret), sensorRepo, readingRepo, alertSvc, b)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register handlers")
	}

	port := env(logger, "SERVICE_PORT", "8080")
	logger.Info().Str("port", port).Msg("starting to listen for connections")

	err = http.ListenAndServe(":"+port, r)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start request router")
	}
}

func newConnector(ctx context.Context, logger zerolog.Logger) database.ConnectorFunc {
	if devMode || os.Getenv("POSTGRES_HOST") == "" {
		logger.Info().Msg("no database host configured, using in memory database")
		return database.NewSQLiteConnector(ctx)
	}

	return database.NewPostgreSQLConnector(ctx, database.LoadConfigFromEnv(ctx))
}

func seedSensors(ctx context.Context, logger zerolog.Logger, repo sensors.SensorRepository) {
	file, err := os.Open(sensorsFile)
	if err != nil {
		logger.Warn().Err(err).Msg("no sensor seed file found")
		return
	}
	defer file.Close()

	err = sensors.Seed(ctx, repo, file)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed sensors")
	}
}

func loadNotificationConfig(logger zerolog.Logger) *events.Config {
	if notificationsFile == "" {
		return nil
	}

	file, err := os.Open(notificationsFile)
	if err != nil {
		logger.Warn().Err(err).Msg("could not open notification configuration file")
		return nil
	}
	defer file.Close()

	cfg, err := events.LoadConfiguration(file)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not parse notification configuration file")
	}

	return cfg
}

func env(logger zerolog.Logger, key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func version() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	buildSettings := buildInfo.Settings
	infoMap := map[string]string{}
	for _, s := range buildSettings {
		infoMap[s.Key] = s.Value
	}

	sha := infoMap["vcs.revision"]
	if infoMap["vcs.modified"] == "true" {
		sha += "+"
	}

	if sha == "" {
		sha = "unknown"
	}

	return strings.ToLower(sha)
}

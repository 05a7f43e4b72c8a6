package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cityops/iot-city-monitoring/internal/pkg/application/alerting"
	"github.com/cityops/iot-city-monitoring/internal/pkg/application/broadcast"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/logging"
	adb "github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/alerting"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/readings"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/sensors"
	"github.com/cityops/iot-city-monitoring/internal/pkg/presentation/api/auth"
	"github.com/cityops/iot-city-monitoring/pkg/types"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("iot-city-monitoring/api")

func RegisterHandlers(ctx context.Context, router *chi.Mux, policies io.Reader, secret []byte, sensorRepo sensors.SensorRepository, readingRepo readings.ReadingRepository, alertSvc alerting.AlertService, b broadcast.Broadcaster) (*chi.Mux, error) {

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	log := logging.GetLoggerFromContext(ctx)

	authenticator, err := auth.NewAuthenticator(ctx, log, secret, policies)
	if err != nil {
		return nil, fmt.Errorf("failed to create api authenticator: %w", err)
	}

	router.Route("/api/v0", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authenticator)

			r.Route("/sensors", func(r chi.Router) {
				r.Get("/", getSensorsHandler(log, sensorRepo))
				r.Get("/{sensorID}", getSensorDetailsHandler(log, sensorRepo))
			})

			r.Get("/sensortypes", getSensorTypesHandler(log, sensorRepo))
			r.Get("/neighborhoods", getNeighborhoodsHandler(log, sensorRepo))
			r.Get("/readings", queryReadingsHandler(log, readingRepo))

			r.Route("/thresholds", func(r chi.Router) {
				r.Get("/", getThresholdsHandler(log, alertSvc))
				r.Post("/", saveThresholdHandler(log, alertSvc))
				r.Patch("/", saveThresholdHandler(log, alertSvc))
			})

			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/", getSubscriptionsHandler(log, alertSvc))
				r.Put("/", saveSubscriptionHandler(log, alertSvc))
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", getAlertsHandler(log, alertSvc))
				r.Patch("/{alertID}", patchAlertHandler(log, alertSvc))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", getNotificationsHandler(log, alertSvc))
				r.Patch("/{notificationID}", patchNotificationHandler(log, alertSvc))
			})

			r.Get("/events", streamEventsHandler(log, b))
			r.Post("/admin/events", adminEventsHandler(log, sensorRepo, readingRepo, b))
		})
	})

	return router, nil
}

func streamEventsHandler(log zerolog.Logger, b broadcast.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			log.Error().Msg("streaming is not supported by the underlying connection")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		id, channel, err := b.Register(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("unable to register stream channel")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		defer b.Unregister(context.Background(), id)

		logger := log.With().Str("channel_id", id).Logger()
		logger.Debug().Msg("stream channel registered")

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				logger.Debug().Msg("stream client disconnected")
				return
			case event, open := <-channel:
				if !open {
					return
				}

				body, err := json.Marshal(event)
				if err != nil {
					logger.Error().Err(err).Msg("unable to marshal stream event")
					continue
				}

				_, err = fmt.Fprintf(w, "data: %s\n\n", body)
				if err != nil {
					logger.Debug().Err(err).Msg("write failed, removing channel")
					return
				}

				flusher.Flush()
			}
		}
	}
}

func adminEventsHandler(log zerolog.Logger, sensorRepo sensors.SensorRepository, readingRepo readings.ReadingRepository, b broadcast.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "admin-events")
		defer span.End()

		var req adminEventRequest
		err = json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			log.Error().Err(err).Msg("unable to decode admin event request")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch req.Action {
		case ActionStatus:
			writeJson(w, log, http.StatusOK, b.Status())
		case ActionBroadcast:
			b.Broadcast(ctx, broadcast.NewConnectionEvent(req.Message))
			w.WriteHeader(http.StatusAccepted)
		case ActionSensorUpdate:
			_, err := sensorRepo.GetSensorByID(ctx, req.SensorID)
			if errors.Is(err, sensors.ErrSensorNotFound) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if err != nil {
				log.Error().Err(err).Msg("could not fetch sensor")
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			latest, err := readingRepo.QueryReadings(ctx, req.SensorID, time.Time{}, time.Time{}, 0, 1)
			if err != nil {
				log.Error().Err(err).Msg("could not fetch latest reading")
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if len(latest.Data) == 0 {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			b.Broadcast(ctx, broadcast.NewSensorUpdateEvent(mapReading(latest.Data[0]), req.Message))
			w.WriteHeader(http.StatusAccepted)
		default:
			log.Info().Msgf("unknown admin action %s", req.Action)
			w.WriteHeader(http.StatusBadRequest)
		}
	}
}

func getSensorsHandler(log zerolog.Logger, repo sensors.SensorRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-sensors")
		defer span.End()

		neighborhoodID, _ := strconv.Atoi(r.URL.Query().Get("neighborhoodID"))

		var fromDb []sensors.Sensor
		var err error

		if neighborhoodID > 0 {
			fromDb, err = repo.GetSensorsByNeighborhoodID(ctx, uint(neighborhoodID))
		} else {
			fromDb, err = repo.GetSensors(ctx)
		}

		if err != nil {
			log.Error().Err(err).Msg("unable to fetch sensors")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJson(w, log, http.StatusOK, lo.Map(fromDb, func(s sensors.Sensor, _ int) types.Sensor {
			return mapSensor(s)
		}))
	}
}

func getSensorDetailsHandler(log zerolog.Logger, repo sensors.SensorRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-sensor-details")
		defer span.End()

		sensorID, err := strconv.Atoi(chi.URLParam(r, "sensorID"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		sensor, err := repo.GetSensorByID(ctx, uint(sensorID))
		if errors.Is(err, sensors.ErrSensorNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("unable to fetch sensor")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJson(w, log, http.StatusOK, mapSensor(sensor))
	}
}

func getSensorTypesHandler(log zerolog.Logger, repo sensors.SensorRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-sensor-types")
		defer span.End()

		fromDb, err := repo.GetSensorTypes(ctx)
		if err != nil {
			log.Error().Err(err).Msg("unable to fetch sensor types")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJson(w, log, http.StatusOK, lo.Map(fromDb, func(s sensors.SensorType, _ int) types.SensorType {
			return mapSensorType(s)
		}))
	}
}

func getNeighborhoodsHandler(log zerolog.Logger, repo sensors.SensorRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-neighborhoods")
		defer span.End()

		fromDb, err := repo.GetNeighborhoods(ctx)
		if err != nil {
			log.Error().Err(err).Msg("unable to fetch neighborhoods")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJson(w, log, http.StatusOK, lo.Map(fromDb, func(n sensors.Neighborhood, _ int) types.Neighborhood {
			return mapNeighborhood(n)
		}))
	}
}

func queryReadingsHandler(log zerolog.Logger, repo readings.ReadingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "query-readings")
		defer span.End()

		sensorID, _ := strconv.Atoi(r.URL.Query().Get("sensorID"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if offset < 0 {
			offset = 0
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 1000 {
			limit = 1000
		}

		var from, to time.Time
		var err error

		if value := r.URL.Query().Get("from"); value != "" {
			from, err = time.Parse(time.RFC3339, value)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		if value := r.URL.Query().Get("to"); value != "" {
			to, err = time.Parse(time.RFC3339, value)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		fromDb, err := repo.QueryReadings(ctx, uint(sensorID), from, to, offset, limit)
		if err != nil {
			log.Error().Err(err).Msg("unable to fetch readings")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJson(w, log, http.StatusOK, types.Collection[types.Reading]{
			Data: lo.Map(fromDb.Data, func(r readings.Reading, _ int) types.Reading {
				return mapReading(r)
			}),
			Count:      fromDb.Count,
			Offset:     fromDb.Offset,
			Limit:      fromDb.Limit,
			TotalCount: fromDb.TotalCount,
		})
	}
}

func getThresholdsHandler(log zerolog.Logger, svc alerting.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-thresholds")
		defer span.End()

		user := auth.GetUserFromContext(ctx)

		fromDb, err := svc.GetThresholds(ctx, user.ID)
		if err != nil {
			log.Error().Err(err).Msg("unable to fetch thresholds")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJson(w, log, http.StatusOK, lo.Map(fromDb, func(t adb.Threshold, _ int) types.Threshold {
			return mapThreshold(t)
		}))
	}
}

func saveThresholdHandler(log zerolog.Logger, svc alerting.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "save-threshold")
		defer span.End()

		user := auth.GetUserFromContext(ctx)

		var req thresholdRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if req.SensorTypeID == 0 || (req.Min == nil && req.Max == nil) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err = svc.SaveThreshold(ctx, adb.Threshold{
			UserID:       user.ID,
			SensorTypeID: req.SensorTypeID,
			Min:          req.Min,
			Max:          req.Max,
			Active:       req.Active,
		})
		if err != nil {
			log.Error().Err(err).Msg("unable to save threshold")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
	}
}

func getSubscriptionsHandler(log zerolog.Logger, svc alerting.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-subscriptions")
		defer span.End()

		user := auth.GetUserFromContext(ctx)

		fromDb, err := svc.GetSubscriptions(ctx, user.ID)
		if err != nil {
			log.Error().Err(err).Msg("unable to fetch subscriptions")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJson(w, log, http.StatusOK, fromDb)
	}
}

func saveSubscriptionHandler(log zerolog.Logger, svc alerting.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "save-subscription")
		defer span.End()

		user := auth.GetUserFromContext(ctx)

		var req subscriptionRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil || req.NeighborhoodID == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err = svc.SaveSubscription(ctx, adb.Subscription{
			UserID:         user.ID,
			NeighborhoodID: req.NeighborhoodID,
			Active:         req.Active,
			AlertType:      req.AlertType,
		})
		if err != nil {
			log.Error().Err(err).Msg("unable to save subscription")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
	}
}

func getAlertsHandler(log zerolog.Logger, svc alerting.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-alerts")
		defer span.End()

		user := auth.GetUserFromContext(ctx)

		fromDb, err := svc.GetAlerts(ctx, user.ID)
		if err != nil {
			log.Error().Err(err).Msg("unable to fetch alerts")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJson(w, log, http.StatusOK, fromDb)
	}
}

func patchAlertHandler(log zerolog.Logger, svc alerting.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "patch-alert")
		defer span.End()

		alertID, err := strconv.Atoi(chi.URLParam(r, "alertID"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var req statusRequest
		err = json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err = svc.SetAlertStatus(ctx, uint(alertID), req.Status)
		if errors.Is(err, alerting.ErrInvalidStatus) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if errors.Is(err, adb.ErrAlertNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("unable to update alert")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getNotificationsHandler(log zerolog.Logger, svc alerting.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-notifications")
		defer span.End()

		user := auth.GetUserFromContext(ctx)

		fromDb, err := svc.GetNotifications(ctx, user.ID)
		if err != nil {
			log.Error().Err(err).Msg("unable to fetch notifications")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJson(w, log, http.StatusOK, fromDb)
	}
}

func patchNotificationHandler(log zerolog.Logger, svc alerting.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "patch-notification")
		defer span.End()

		user := auth.GetUserFromContext(ctx)

		notificationID, err := strconv.Atoi(chi.URLParam(r, "notificationID"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err = svc.MarkNotificationRead(ctx, uint(notificationID), user.ID)
		if errors.Is(err, adb.ErrNotificationNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("unable to update notification")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJson(w http.ResponseWriter, log zerolog.Logger, statusCode int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).Msg("unable to marshal response body")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(b)
}

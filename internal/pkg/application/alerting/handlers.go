package alerting

import (
	"context"
	"encoding/json"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/logging"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/readings"
	"github.com/cityops/iot-city-monitoring/pkg/types"

	"github.com/diwise/messaging-golang/pkg/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

func NewReadingBatchHandler(svc AlertService) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
		batch := types.ReadingBatch{}

		err := json.Unmarshal(msg.Body, &batch)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		ctx = logging.NewContextWithLogger(ctx, logger)

		for _, r := range batch.Readings {
			err = svc.Evaluate(ctx, readings.Reading{
				ID:        r.ID,
				SensorID:  r.SensorID,
				Value:     r.Value,
				Unit:      r.Unit,
				Timestamp: r.Timestamp,
				Validated: r.Validated,
			})
			if err != nil {
				logger.Error().Err(err).Msgf("failed to evaluate reading %d", r.ID)
			}
		}

		logger.Debug().Msgf("%s handled with %d readings", msg.RoutingKey, len(batch.Readings))
	}
}

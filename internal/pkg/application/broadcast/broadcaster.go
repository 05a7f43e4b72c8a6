package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/readings"
	"github.com/cityops/iot-city-monitoring/pkg/types"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	DefaultPollInterval      = 5 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBatchSize         = 500
	channelBufferSize        = 64
)

//go:generate moq -rm -out broadcaster_mock.go . Broadcaster

type Broadcaster interface {
	// Register adds a subscriber channel and returns its id. The channel
	// starts out with a connection event followed by the latest known
	// reading for every sensor. The background poller is started when the
	// first channel registers.
	Register(ctx context.Context) (string, <-chan Event, error)

	// Unregister removes and closes a subscriber channel. The background
	// poller is stopped when the last channel is removed.
	Unregister(ctx context.Context, id string)

	// Broadcast sends an event to all registered channels. Channels that
	// cannot keep up have the event dropped.
	Broadcast(ctx context.Context, event Event)

	ChannelCount() int
	Status() Status
}

type Status struct {
	Polling        bool `json:"polling"`
	ActiveChannels int  `json:"activeChannels"`
	Cursor         uint `json:"cursor"`
}

type Option func(*broadcaster)

func WithPollInterval(d time.Duration) Option {
	return func(b *broadcaster) {
		b.pollInterval = d
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(b *broadcaster) {
		b.heartbeatInterval = d
	}
}

func WithBatchSize(size int) Option {
	return func(b *broadcaster) {
		b.batchSize = size
	}
}

type broadcaster struct {
	log         zerolog.Logger
	readingRepo readings.ReadingRepository
	messenger   messaging.MsgContext

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	batchSize         int

	mu       sync.Mutex
	channels map[string]chan Event
	cursor   uint
	polling  bool
	done     chan bool
}

func New(log zerolog.Logger, readingRepo readings.ReadingRepository, messenger messaging.MsgContext, opts ...Option) Broadcaster {
	b := &broadcaster{
		log:               log,
		readingRepo:       readingRepo,
		messenger:         messenger,
		pollInterval:      DefaultPollInterval,
		heartbeatInterval: DefaultHeartbeatInterval,
		batchSize:         DefaultBatchSize,
		channels:          make(map[string]chan Event),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *broadcaster) Register(ctx context.Context) (string, <-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// snapshot before the cursor, so a reading inserted between the two
	// queries is picked up by the next poll instead of being sent twice
	latest, err := b.readingRepo.LatestBySensor(ctx)
	if err != nil {
		return "", nil, err
	}

	if len(b.channels) == 0 {
		cursor, err := b.readingRepo.MaxReadingID(ctx)
		if err != nil {
			return "", nil, err
		}

		b.cursor = cursor
		b.done = make(chan bool)
		b.polling = true

		go b.run(b.done)
	}

	id := uuid.NewString()
	channel := make(chan Event, channelBufferSize)

	// the welcome and snapshot are queued before the channel is added to
	// the registry, so no poll tick can get ahead of the connection event
	channel <- NewConnectionEvent("connected to reading stream")
	if len(latest) > 0 {
		channel <- NewSensorDataEvent(lo.Map(latest, func(r readings.Reading, _ int) types.Reading {
			return mapReading(r)
		}))
	}

	b.channels[id] = channel

	return id, channel, nil
}

func (b *broadcaster) Unregister(ctx context.Context, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	channel, exists := b.channels[id]
	if !exists {
		return
	}

	delete(b.channels, id)
	close(channel)

	if len(b.channels) == 0 && b.polling {
		close(b.done)
		b.polling = false
	}
}

// Broadcast sends while holding the lock so that a concurrent Unregister
// can not close a channel mid send. Sends never block, so the lock is only
// held briefly.
func (b *broadcaster) Broadcast(ctx context.Context, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, channel := range b.channels {
		trySend(channel, event)
	}
}

func (b *broadcaster) ChannelCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.channels)
}

func (b *broadcaster) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		Polling:        b.polling,
		ActiveChannels: len(b.channels),
		Cursor:         b.cursor,
	}
}

func (b *broadcaster) run(done <-chan bool) {
	pollTicker := time.NewTicker(b.pollInterval)
	heartbeatTicker := time.NewTicker(b.heartbeatInterval)

	defer pollTicker.Stop()
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-pollTicker.C:
			b.poll(context.Background())
		case <-heartbeatTicker.C:
			b.Broadcast(context.Background(), NewHeartbeatEvent(b.ChannelCount()))
		}
	}
}

func (b *broadcaster) poll(ctx context.Context) {
	b.mu.Lock()
	cursor := b.cursor
	b.mu.Unlock()

	batch, err := b.readingRepo.ReadingsAfter(ctx, cursor, b.batchSize)
	if err != nil {
		b.log.Error().Err(err).Msg("could not poll for new readings")
		return
	}

	if len(batch) == 0 {
		return
	}

	maxID := batch[len(batch)-1].ID

	b.mu.Lock()
	b.cursor = maxID
	b.mu.Unlock()

	mapped := lo.Map(batch, func(r readings.Reading, _ int) types.Reading {
		return mapReading(r)
	})

	b.Broadcast(ctx, NewSensorDataEvent(mapped))

	err = b.messenger.PublishOnTopic(ctx, &types.ReadingBatch{
		Readings:  mapped,
		MaxID:     maxID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		b.log.Error().Err(err).Msg("could not publish reading batch")
	}
}

func trySend(channel chan Event, event Event) {
	select {
	case channel <- event:
	default:
	}
}

func mapReading(r readings.Reading) types.Reading {
	return types.Reading{
		ID:        r.ID,
		SensorID:  r.SensorID,
		Value:     r.Value,
		Unit:      r.Unit,
		Timestamp: r.Timestamp,
		Validated: r.Validated,
	}
}

package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"scened/internal/config"
	"scened/internal/db"
	"scened/internal/entity"
	"scened/internal/eventbus"
	"scened/internal/ledger"
	"scened/internal/loader"
	"scened/internal/manager"
	"scened/internal/platform"
	"scened/internal/store"
	"scened/internal/webhook"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Prefs  *store.PrefsStore
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Device layer
	MQTT    *platform.MQTT
	Manager *manager.Manager

	// HTTP command surface
	Webhook *webhook.Server
}

// NewServices creates all services with proper dependency injection.
// The MQTT connection and device registration happen in Start.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Persistence layers
	s.Prefs = store.NewPrefsStore(database.DB)
	s.Ledger = ledger.New(database.DB)

	// Event bus
	s.Bus = eventbus.New()

	// Shared write limiter across all devices
	limiter := rate.NewLimiter(rate.Limit(cfg.Updates.RateLimitRPS), 1)

	s.Manager = manager.New(
		nil, // platform attached in Start, once the broker is connected
		s.Prefs,
		s.Ledger,
		limiter,
		entity.WallClock,
		cfg.Updates.Delay.Duration(),
	)

	if cfg.Webhook.Enabled {
		s.Webhook = webhook.NewServer(cfg.Webhook.Host, cfg.Webhook.Port, s.Manager)
	}

	return s, nil
}

// Start connects to the broker, registers the devices it reports, and
// launches the background loops.
func (s *Services) Start(ctx context.Context) error {
	mqtt, err := platform.ConnectMQTT(s.cfg.MQTT)
	if err != nil {
		return err
	}
	s.MQTT = mqtt
	s.Manager.SetPlatform(mqtt)

	// Retained state topics arrive shortly after subscribing; give them
	// a moment before snapshotting the device list.
	select {
	case <-time.After(s.cfg.MQTT.Warmup.Duration()):
	case <-ctx.Done():
		return ctx.Err()
	}

	scenes, err := loader.Load(s.cfg.Scenes.Path)
	if err != nil {
		return err
	}

	// Register every device the broker knows about. A bad device is
	// logged and skipped, the rest keep working.
	for _, deviceID := range s.MQTT.DeviceIDs() {
		if err := s.Manager.Register(ctx, deviceID, scenes[deviceID]); err != nil {
			log.Error().Err(err).Str("device", deviceID).Msg("Failed to register device")
		}
	}

	// Route platform notifications and ticks through the bus.
	s.Bus.Subscribe(eventbus.EventTypeStateChange, func(ev eventbus.Event) {
		if change, ok := ev.Data.(platform.StateChange); ok {
			s.Manager.HandleStateChange(change)
		}
	})
	s.Bus.Subscribe(eventbus.EventTypeTick, func(eventbus.Event) {
		s.Manager.RecomputeAll()
	})
	s.MQTT.OnChange(func(change platform.StateChange) {
		s.Bus.Publish(eventbus.Event{Type: eventbus.EventTypeStateChange, Data: change})
	})

	go s.tickLoop(ctx)
	go s.ledgerCleanupLoop(ctx)

	if s.Webhook != nil {
		go func() {
			if err := s.Webhook.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				log.Error().Err(err).Msg("Webhook server failed")
			}
		}()
	}

	// Align every device with the current time right away.
	s.Manager.RecomputeAll()

	return nil
}

// tickLoop publishes the periodic recompute trigger.
func (s *Services) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Tick.Interval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Bus.Publish(eventbus.Event{Type: eventbus.EventTypeTick})
		}
	}
}

// ledgerCleanupLoop prunes old write-audit entries on an interval.
func (s *Services) ledgerCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Ledger.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.Ledger.RetentionDays)
			deleted, err := s.Ledger.DeleteOlderThan(cutoff)
			if err != nil {
				log.Warn().Err(err).Msg("Write-audit cleanup failed")
				continue
			}
			if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("Pruned write-audit entries")
			}
		}
	}
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Manager != nil {
		s.Manager.Close()
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Bus != nil {
		s.Bus.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

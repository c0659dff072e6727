package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"airwatch/internal/display"
	"airwatch/internal/modules/sensors/repository"
	"airwatch/internal/sensor"
)

// Publisher fans events out to display clients.
type Publisher interface {
	Publish(ev sensor.Event) error
	MarkData(t time.Time)
}

// Service ingests device frames: it persists the hourly rows, broadcasts
// each reading and keeps a server-side copy of the display page current.
type Service struct {
	repo    repository.SensorRepository
	pub     Publisher
	updater *display.Updater
	logger  *slog.Logger

	// ingestMu orders writers: the store, the broadcast and the cache see
	// readings in the same sequence.
	ingestMu sync.Mutex

	mu           sync.Mutex
	page         *display.HTMLDocument
	latest       map[sensor.Kind]sensor.Event
	lastReceived time.Time
	flushedHour  time.Time
}

func NewService(repo repository.SensorRepository, pub Publisher, page *display.HTMLDocument, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		pub:     pub,
		updater: display.NewUpdater(logger),
		logger:  logger,
		page:    page,
		latest:  make(map[sensor.Kind]sensor.Event),
	}
}

// Restore loads the newest stored reading of every kind into the page, so a
// restart does not blank the display. Nothing is broadcast.
func (s *Service) Restore(ctx context.Context) error {
	for _, kind := range sensor.Kinds {
		ev, err := s.repo.Latest(ctx, kind)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("restore %s: %w", kind, err)
		}
		s.mu.Lock()
		s.latest[kind] = ev
		s.apply(ev)
		s.mu.Unlock()
	}
	return nil
}

// Ingest handles one device frame received at now. Sections missing a field
// are skipped; a malformed section fails the frame before anything is stored.
func (s *Service) Ingest(ctx context.Context, frame sensor.DeviceFrame, now time.Time) error {
	events, err := frame.Events(now)
	if err != nil {
		return err
	}

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	for _, ev := range events {
		if err := s.repo.Upsert(ctx, ev); err != nil {
			return fmt.Errorf("store %s: %w", ev.Kind, err)
		}
		if err := s.pub.Publish(ev); err != nil {
			return fmt.Errorf("publish %s: %w", ev.Kind, err)
		}
		s.mu.Lock()
		s.latest[ev.Kind] = ev
		s.apply(ev)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.lastReceived = now
	s.mu.Unlock()
	s.pub.MarkData(now)

	s.logger.Debug("device frame ingested", "events", len(events))
	return nil
}

// apply must be called with s.mu held.
func (s *Service) apply(ev sensor.Event) {
	if s.page == nil {
		return
	}
	if err := s.updater.Dispatch(s.page, ev); err != nil {
		s.logger.Warn("page update failed", "sensor_type", string(ev.Kind), "error", err)
	}
}

// Flush writes the latest values into the hour they were received in once
// that hour has ended. Each hour is flushed at most once.
func (s *Service) Flush(ctx context.Context, now time.Time) error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	s.mu.Lock()
	last := s.lastReceived
	hour := last.UTC().Truncate(time.Hour)
	due := !last.IsZero() &&
		!now.UTC().Truncate(time.Hour).Equal(hour) &&
		!s.flushedHour.Equal(hour)
	var pending []sensor.Event
	if due {
		for _, kind := range sensor.Kinds {
			if ev, ok := s.latest[kind]; ok {
				ev.Timestamp = last
				pending = append(pending, ev)
			}
		}
	}
	s.mu.Unlock()

	if !due {
		return nil
	}
	for _, ev := range pending {
		if err := s.repo.Upsert(ctx, ev); err != nil {
			return fmt.Errorf("flush %s: %w", ev.Kind, err)
		}
	}

	s.mu.Lock()
	s.flushedHour = hour
	s.mu.Unlock()
	s.logger.Info("hourly flush", "hour", hour.Format(time.RFC3339), "sensors", len(pending))
	return nil
}

// RunFlusher calls Flush every interval until ctx is done.
func (s *Service) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.Flush(ctx, now); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("hourly flush failed", "error", err)
			}
		}
	}
}

// RenderPage returns the current page with the clock stamped at now.
func (s *Service) RenderPage(now time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, errors.New("no page loaded")
	}
	if err := display.StampClock(s.page, now); err != nil {
		s.logger.Debug("clock stamp skipped", "error", err)
	}
	return s.page.Bytes()
}

func (s *Service) Latest(ctx context.Context, kind sensor.Kind) (sensor.Event, error) {
	return s.repo.Latest(ctx, kind)
}

func (s *Service) Readings(ctx context.Context, kind sensor.Kind, from, to time.Time, limit int) ([]sensor.Event, error) {
	return s.repo.Readings(ctx, kind, from, to, limit)
}

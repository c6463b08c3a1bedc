package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"medtrace/internal/domain"
	"medtrace/internal/ledger"
	"medtrace/internal/platform/kafka"
	"medtrace/internal/platform/metrics"
	"medtrace/internal/platform/redis"
	pkgerrors "medtrace/pkg/errors"
)

// Diff compares the local history's view of a serial against the ledger's.
// InSync is false when the last local owner disagrees with the on-chain
// owner; that is the detection half of dual-write consistency, repaired by
// the custody engine's reconciler.
type Diff struct {
	Serial      string
	LocalOwner  string
	LedgerOwner string
	InSync      bool
}

// Service fronts the custody event store with a read-through cache and a
// change stream. Cache and stream are both optional; a nil redis client or
// nil producer disables them.
type Service struct {
	store    Store
	cache    *redis.Client
	producer *kafka.Producer
	ledger   ledger.Client
	metrics  *metrics.Metrics
	logger   *slog.Logger
	ttl      time.Duration
}

func NewService(store Store, cache *redis.Client, producer *kafka.Producer, lc ledger.Client, m *metrics.Metrics, logger *slog.Logger, ttl time.Duration) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		producer: producer,
		ledger:   lc,
		metrics:  m,
		logger:   logger,
		ttl:      ttl,
	}
}

// Append persists the event, invalidates the serial's cached history and
// publishes the event to the stream. Cache and stream failures do not fail
// the append; the store is the source of truth.
func (s *Service) Append(ctx context.Context, event domain.CustodyEvent) error {
	if err := s.store.Append(ctx, event); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, historyKey(event.Serial)).Err(); err != nil {
			s.logger.WarnContext(ctx, "history cache invalidation failed", "serial", event.Serial, "error", err)
		}
	}

	if s.producer != nil {
		payload, err := json.Marshal(streamEvent(event))
		if err != nil {
			return fmt.Errorf("encode custody event: %w", err)
		}
		s.producer.Produce(ctx, []byte(event.Serial), payload, func(err error) {
			if err != nil {
				s.metrics.EventPublishErrs.Inc()
				s.logger.Warn("custody event publish failed", "serial", event.Serial, "error", err)
				return
			}
			s.metrics.EventsPublished.Inc()
		})
	}
	return nil
}

// History returns the full chain of custody for a serial, oldest first.
func (s *Service) History(ctx context.Context, serial string) ([]domain.CustodyEvent, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, historyKey(serial)).Bytes()
		if err == nil {
			var events []domain.CustodyEvent
			if err := json.Unmarshal(raw, &events); err == nil {
				return events, nil
			}
			// Unreadable cache entry; fall through to the store.
		} else if !errors.Is(err, goredis.Nil) {
			s.logger.WarnContext(ctx, "history cache read failed", "serial", serial, "error", err)
		}
	}

	events, err := s.store.History(ctx, serial)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "load custody history", err)
	}
	if len(events) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no custody history for serial")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(events); err == nil {
			if err := s.cache.Set(ctx, historyKey(serial), raw, s.ttl).Err(); err != nil {
				s.logger.WarnContext(ctx, "history cache write failed", "serial", serial, "error", err)
			}
		}
	}
	return events, nil
}

// CompareWithLedger checks whether the local history agrees with the
// external ledger on who currently holds the serial.
func (s *Service) CompareWithLedger(ctx context.Context, serial string) (Diff, error) {
	events, err := s.History(ctx, serial)
	if err != nil {
		return Diff{}, err
	}
	// A sale to a patient is local-only and never reaches the ledger; the
	// traced owner for comparison is the last custodian before dispensing.
	localOwner := events[len(events)-1].ToOwner
	if localOwner == domain.PatientOwner && len(events) > 1 {
		localOwner = events[len(events)-2].ToOwner
	}

	record, err := s.ledger.Current(ctx, serial)
	if errors.Is(err, ledger.ErrNotFound) {
		// Registered locally but never made it on chain. Flag it.
		return Diff{Serial: serial, LocalOwner: localOwner, InSync: false}, nil
	}
	if err != nil {
		return Diff{}, pkgerrors.Wrap(pkgerrors.CodeLedgerUnavailable, "query ledger record", err)
	}

	diff := Diff{
		Serial:      serial,
		LocalOwner:  localOwner,
		LedgerOwner: record.Owner,
		InSync:      localOwner == record.Owner,
	}
	if !diff.InSync {
		s.logger.WarnContext(ctx, "custody history diverged from ledger",
			"serial", serial, "local_owner", localOwner, "ledger_owner", record.Owner)
	}
	return diff, nil
}

func historyKey(serial string) string {
	return "medtrace:history:" + serial
}

// streamEvent is the wire shape published to the custody event topic.
type streamEvent domain.CustodyEvent

func (e streamEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID           string    `json:"id"`
		Serial       string    `json:"serial"`
		FromOwner    string    `json:"from_owner,omitempty"`
		ToOwner      string    `json:"to_owner"`
		Location     string    `json:"location"`
		MedicineName string    `json:"medicine_name"`
		LedgerTxRef  string    `json:"ledger_tx_ref,omitempty"`
		Timestamp    time.Time `json:"timestamp"`
	}{e.ID, e.Serial, e.FromOwner, e.ToOwner, e.Location, e.MedicineName, e.LedgerTxRef, e.Timestamp})
}

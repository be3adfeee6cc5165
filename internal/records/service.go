// Package records implements the user-scoped data access layer for
// transactions, savings goals and bills.
package records

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"

	"github.com/google/uuid"
)

// Publisher announces record mutations. *amqp.Client implements it.
type Publisher interface {
	PublishRecordEvent(ctx context.Context, ev *amqp.RecordEvent) error
}

// Service is the only way handlers touch records. Every operation takes the
// calling user's id and never reads or writes another user's data.
type Service struct {
	store     storage.RecordStore
	publisher Publisher
	policy    core.Policy
	now       func() time.Time
	newID     func() string
	overviews cache.Cache[core.MonthOverview]
	logger    *log.Logger

	// genMu guards gens, the per-user write counter an overview must not
	// see move while it is being built.
	genMu sync.Mutex
	gens  map[string]uint64
}

type Option func(*Service)

// WithPublisher enables record events. A nil publisher disables them.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithPolicy(p core.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs replaces the UUID generator.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithOverviewCache caches month overviews per user and month.
func WithOverviewCache(c cache.Cache[core.MonthOverview]) Option {
	return func(s *Service) { s.overviews = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store storage.RecordStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.Discard(),
		gens:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentRecords)
	return s
}

// CreateRecord decodes fields into a new record owned by userID and stores it.
func (s *Service) CreateRecord(ctx context.Context, userID string, kind core.Kind, fields core.Fields) (core.Record, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireKind(kind); err != nil {
		return nil, err
	}

	now := s.stamp()
	rec, err := core.Decode(kind, fields, now)
	if err != nil {
		return nil, err
	}

	h := rec.Header()
	h.ID = s.newID()
	h.UserID = userID
	h.Stamp(now)

	if err := rec.Validate(s.policy); err != nil {
		return nil, err
	}

	if err := s.store.InsertRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}

	s.afterWrite(ctx, rec, amqp.ActionCreated)
	return rec, nil
}

// ListRecords returns the records of userID matching f.
func (s *Service) ListRecords(ctx context.Context, userID string, kind core.Kind, f core.Filter) ([]core.Record, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireKind(kind); err != nil {
		return nil, err
	}
	f, err := f.Normalize(kind)
	if err != nil {
		return nil, err
	}

	recs, err := s.store.ListRecords(ctx, userID, kind, f)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return recs, nil
}

// GetRecord returns a single record owned by userID.
func (s *Service) GetRecord(ctx context.Context, userID string, kind core.Kind, id string) (core.Record, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireKind(kind); err != nil {
		return nil, err
	}
	return s.owned(ctx, userID, kind, id)
}

// UpdateRecord applies patch to a record owned by userID. Ownership is checked
// before anything is changed and the stored write is conditioned on the owner
// as well.
func (s *Service) UpdateRecord(ctx context.Context, userID string, kind core.Kind, id string, patch core.Fields) (core.Record, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireKind(kind); err != nil {
		return nil, err
	}

	rec, err := s.owned(ctx, userID, kind, id)
	if err != nil {
		return nil, err
	}

	now := s.stamp()
	if err := core.ApplyPatch(rec, patch, now); err != nil {
		return nil, err
	}
	rec.Header().Touch(now)
	if err := rec.Validate(s.policy); err != nil {
		return nil, err
	}

	if err := s.store.ReplaceRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("update %s: %w", kind, err)
	}

	s.afterWrite(ctx, rec, amqp.ActionUpdated)
	return rec, nil
}

// DeleteRecord removes a record owned by userID.
func (s *Service) DeleteRecord(ctx context.Context, userID string, kind core.Kind, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := requireKind(kind); err != nil {
		return err
	}

	rec, err := s.owned(ctx, userID, kind, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteRecord(ctx, userID, kind, id); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}

	s.afterWrite(ctx, rec, amqp.ActionDeleted)
	return nil
}

// stamp is the service clock at the precision every backend can store.
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Service) owned(ctx context.Context, userID string, kind core.Kind, id string) (core.Record, error) {
	rec, err := s.store.GetRecord(ctx, kind, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	if rec.Header().UserID != userID {
		return nil, &core.AuthorizationError{UserID: userID, Reason: fmt.Sprintf("does not own %s %s", kind, id)}
	}
	return rec, nil
}

// afterWrite runs once a mutation is durable. Nothing here may fail the
// request.
func (s *Service) afterWrite(ctx context.Context, rec core.Record, action amqp.Action) {
	h := rec.Header()
	s.invalidate(h.UserID)

	log.NewStructuredLogger(s.loggerFor(ctx)).
		LogRecordChanged(ctx, actionOps[action], string(rec.Kind()), h.ID, h.UserID)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRecordEvent(ctx, amqp.NewRecordEvent(rec, action)); err != nil {
		log.NewStructuredLogger(s.loggerFor(ctx)).LogError(ctx, "Failed to publish record event", err,
			log.ComponentRecords, actionOps[action],
			log.NewFields().WithRecord(string(rec.Kind()), h.ID, h.UserID))
	}
}

var actionOps = map[amqp.Action]string{
	amqp.ActionCreated: log.OpCreate,
	amqp.ActionUpdated: log.OpUpdate,
	amqp.ActionDeleted: log.OpDelete,
}

// loggerFor prefers the request-scoped logger so request ids are kept.
func (s *Service) loggerFor(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(log.LoggerContextKey).(*log.Logger); ok {
		return l
	}
	return s.logger
}

func requireUser(userID string) error {
	if userID == "" {
		return &core.AuthorizationError{Reason: "no authenticated user"}
	}
	return nil
}

func requireKind(k core.Kind) error {
	if !k.IsValid() {
		return &core.NotFoundError{Kind: "collection", ID: string(k)}
	}
	return nil
}

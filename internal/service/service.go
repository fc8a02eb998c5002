package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Heinvv10/gaztime-sub001/internal/cache"
	"github.com/Heinvv10/gaztime-sub001/internal/cart"
	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/events"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
	"github.com/Heinvv10/gaztime-sub001/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	CatalogCache cache.CatalogCache
	CatalogTTL   time.Duration
	Carts        cart.SessionStore
	Events       events.Broker
	Logger       *slog.Logger
	DefaultPodID string
	CountryCode  string
}

type Service struct {
	repo         store.Repository
	catalogCache cache.CatalogCache
	catalogTTL   time.Duration
	catalogFill  singleflight.Group
	carts        cart.SessionStore
	events       events.Broker
	logger       *slog.Logger
	defaultPodID string
	countryCode  string
	now          func() time.Time
	newCode      func(prefix string, n int) string
}

// codeAttempts bounds regeneration of a reference or referral code that the
// store reports as taken.
const codeAttempts = 5

func New(repo store.Repository, opts Options) *Service {
	if opts.CatalogCache == nil {
		opts.CatalogCache = cache.NoopCatalogCache{}
	}
	if opts.CatalogTTL <= 0 {
		opts.CatalogTTL = time.Minute
	}
	if opts.Carts == nil {
		opts.Carts = cart.NewMemorySessionStore(2 * time.Hour)
	}
	if opts.Events == nil {
		opts.Events = events.NewHub()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultPodID == "" {
		opts.DefaultPodID = "pod-main"
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "27"
	}

	return &Service{
		repo:         repo,
		catalogCache: opts.CatalogCache,
		catalogTTL:   opts.CatalogTTL,
		carts:        opts.Carts,
		events:       opts.Events,
		logger:       opts.Logger.With("component", "service"),
		defaultPodID: opts.DefaultPodID,
		countryCode:  opts.CountryCode,
		now:          func() time.Time { return time.Now().UTC() },
		newCode:      xid.Code,
	}
}

// Events exposes the broker for streaming handlers.
func (s *Service) Events() events.Broker {
	return s.events
}

// requireRole returns the caller, or ErrUnauthorized / ErrForbidden.
func requireRole(ctx context.Context, roles ...domain.Role) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, store.ErrUnauthorized
	}
	if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
		return domain.Actor{}, fmt.Errorf("%w: role %s", store.ErrForbidden, actor.Role)
	}
	return actor, nil
}

// withFreshCode runs create with a generated code, regenerating while the
// store reports it taken.
func withFreshCode[T any](s *Service, prefix string, n int, create func(code string) (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for range codeAttempts {
		code := s.newCode(prefix, n)
		result, err = create(code)
		if !errors.Is(err, store.ErrCodeTaken) {
			return result, err
		}
		s.logger.Warn("generated code collided", "code", code)
	}
	return result, fmt.Errorf("%w: no free code after %d attempts: %v", store.ErrConflict, codeAttempts, err)
}

// dayWindow parses YYYY-MM-DD (empty means today, UTC) into [from, to).
func (s *Service) dayWindow(date string) (time.Time, time.Time, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		day = parsed.UTC()
	}
	return day, day.Add(24 * time.Hour), nil
}

func (s *Service) podOrDefault(podID string) string {
	if strings.TrimSpace(podID) == "" {
		return s.defaultPodID
	}
	return strings.TrimSpace(podID)
}

func (s *Service) publish(ctx context.Context, eventType string, order domain.Order) {
	event := domain.OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		Reference:     order.Reference,
		PodID:         order.LocationID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		At:            s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish order event failed", "type", eventType, "order_id", order.ID, "error", err)
	}
}

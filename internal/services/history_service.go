package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"storico/internal/cache"
	"storico/internal/core"
	applog "storico/internal/log"
	"storico/internal/sales"
)

// ErrInvalidMonths is returned when the requested window is out of range.
var ErrInvalidMonths = errors.New("invalid months")

// HistoryOptions selects the window width and label language of a history.
type HistoryOptions struct {
	// Months is the window width; 0 means the configured default.
	Months int
	// Lang is a BCP 47 tag or an Accept-Language value; empty means English.
	Lang string
}

// HistoryConfig holds configuration for the history service
type HistoryConfig struct {
	DefaultMonths int
	MaxMonths     int
	CacheSize     int
	CacheTTL      time.Duration
	FetchTimeout  time.Duration
	// Location is the zone months are bucketed in. Defaults to time.Local.
	Location *time.Location
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultHistoryConfig returns sensible defaults
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		DefaultMonths: core.DefaultHistoryMonths,
		MaxMonths:     24,
		CacheSize:     200,
		CacheTTL:      5 * time.Minute,
		FetchTimeout:  7 * time.Second,
		Location:      time.Local,
		Now:           time.Now,
	}
}

// HistoryService loads a client's sales and derives the purchase history,
// caching results per client, month, window width and language.
type HistoryService struct {
	source sales.SaleLister
	cache  *cache.LRUCache[core.History]
	group  singleflight.Group
	config HistoryConfig
	logger *slog.Logger
}

// NewHistoryService creates a history service reading from source.
func NewHistoryService(source sales.SaleLister, config HistoryConfig, logger *slog.Logger) *HistoryService {
	def := DefaultHistoryConfig()
	if config.DefaultMonths <= 0 {
		config.DefaultMonths = def.DefaultMonths
	}
	if config.MaxMonths < config.DefaultMonths {
		config.MaxMonths = max(def.MaxMonths, config.DefaultMonths)
	}
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = def.CacheTTL
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = def.FetchTimeout
	}
	if config.Location == nil {
		config.Location = def.Location
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := cache.NewLRUCache[core.History](config.CacheSize, config.CacheTTL).WithClock(config.Now)
	return &HistoryService{
		source: source,
		cache:  c,
		config: config,
		logger: logger.With(applog.FieldComponent, applog.ComponentHistory),
	}
}

// Cache exposes the underlying cache so it can be registered for cleanup.
func (s *HistoryService) Cache() *cache.LRUCache[core.History] {
	return s.cache
}

// MaxMonths is the widest window accepted by History.
func (s *HistoryService) MaxMonths() int {
	return s.config.MaxMonths
}

// History returns the purchase history of clientID. The second return value
// reports whether the result came from the cache.
func (s *HistoryService) History(ctx context.Context, clientID string, opts HistoryOptions) (core.History, bool, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return core.History{}, false, errors.New("empty client id")
	}
	months := opts.Months
	if months == 0 {
		months = s.config.DefaultMonths
	}
	if months < 1 || months > s.config.MaxMonths {
		return core.History{}, false, fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidMonths, months, s.config.MaxMonths)
	}

	now := s.config.Now().In(s.config.Location)
	lang := core.MatchLabelLanguage(opts.Lang).String()
	key := cacheKey(clientID, core.YearMonthOf(now, nil), months, lang)

	if h, ok := s.cache.Get(key); ok {
		return h, true, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.FetchTimeout)
		defer cancel()

		list, err := s.source.ListClientSales(fetchCtx, clientID)
		if err != nil {
			return nil, fmt.Errorf("list sales of client %s: %w", clientID, err)
		}
		h := core.BuildHistory(clientID, list, now, months, core.MonthLabeler(lang))
		s.cache.Set(key, h)
		if h.SkippedItems > 0 {
			s.logger.WarnContext(ctx, "Skipped invalid line items",
				applog.FieldClientID, clientID,
				applog.FieldSkippedItems, h.SkippedItems)
		}
		return h, nil
	})
	if err != nil {
		return core.History{}, false, err
	}
	return v.(core.History), false, nil
}

// Empty returns the zero-spend history History would return for a client with
// no sales. Out-of-range months fall back to the default width.
func (s *HistoryService) Empty(clientID string, opts HistoryOptions) core.History {
	months := opts.Months
	if months < 1 || months > s.config.MaxMonths {
		months = s.config.DefaultMonths
	}
	now := s.config.Now().In(s.config.Location)
	lang := core.MatchLabelLanguage(opts.Lang).String()
	return core.BuildHistory(strings.TrimSpace(clientID), nil, now, months, core.MonthLabeler(lang))
}

// Invalidate drops every cached history of clientID.
func (s *HistoryService) Invalidate(clientID string) int {
	n := s.cache.DeletePrefix(strings.TrimSpace(clientID) + "|")
	if n > 0 {
		s.logger.Debug("History cache invalidated", applog.FieldClientID, clientID, "entries", n)
	}
	return n
}

func cacheKey(clientID string, ym core.YearMonth, months int, lang string) string {
	var b strings.Builder
	b.WriteString(clientID)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(ym.Year))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(int(ym.Month)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(months))
	b.WriteByte('|')
	b.WriteString(lang)
	return b.String()
}

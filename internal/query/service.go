// Package query serves read requests from the current snapshot, falling
// back to upstream sources only for single-token and search lookups.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"token-aggregator/internal/aggregation"
	"token-aggregator/internal/cache"
	"token-aggregator/internal/domain"
	"token-aggregator/internal/logger"
	"token-aggregator/internal/observability"
	"token-aggregator/internal/sources"
	"token-aggregator/internal/storage"
)

// Defaults.
const (
	DefaultQueryTTL        = 30 * time.Second
	DefaultTokenTTL        = 30 * time.Second
	DefaultUpstreamTimeout = 10 * time.Second

	MinQueryLength   = 2
	MaxSearchResults = 50
)

// SnapshotReader provides the snapshot queries run against.
type SnapshotReader interface {
	Cached(ctx context.Context) *domain.Snapshot
}

// Options configures a Service. Cache and Directory are optional.
type Options struct {
	Snapshots SnapshotReader
	Engine    *aggregation.Engine
	Sources   []sources.Source
	Cache     cache.Cache
	Directory storage.TokenDirectory

	QueryTTL        time.Duration
	TokenTTL        time.Duration
	UpstreamTimeout time.Duration

	Logger logrus.FieldLogger
}

// Service answers list, detail and search queries.
type Service struct {
	snapshots SnapshotReader
	engine    *aggregation.Engine
	sources   []sources.Source
	cache     cache.Cache
	directory storage.TokenDirectory

	queryTTL        time.Duration
	tokenTTL        time.Duration
	upstreamTimeout time.Duration

	now func() time.Time
	log logrus.FieldLogger
}

// NewService creates a Service with defaults applied.
func NewService(opts Options) *Service {
	if opts.Engine == nil {
		opts.Engine = aggregation.NewEngine(nil)
	}
	if opts.QueryTTL <= 0 {
		opts.QueryTTL = DefaultQueryTTL
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = DefaultUpstreamTimeout
	}
	return &Service{
		snapshots:       opts.Snapshots,
		engine:          opts.Engine,
		sources:         opts.Sources,
		cache:           opts.Cache,
		directory:       opts.Directory,
		queryTTL:        opts.QueryTTL,
		tokenTTL:        opts.TokenTTL,
		upstreamTimeout: opts.UpstreamTimeout,
		now:             time.Now,
		log:             logger.Component(opts.Logger, "query"),
	}
}

// ListParams are the client-supplied list options. Invalid values fall
// back to defaults.
type ListParams struct {
	Limit        int
	Cursor       string
	SortBy       string
	Period       string
	MinVolume    *float64
	MinLiquidity *float64
}

// Pagination describes the position of a page in the full result.
type Pagination struct {
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
	Total      int     `json:"total"`
}

// ListResult is one page of records.
type ListResult struct {
	Records    []domain.AggregatedRecord `json:"records"`
	Pagination Pagination                `json:"pagination"`
}

// TokenDetail is a single record plus its directory history.
// FirstSeenAt and LastSeenAt are zero when the directory has no entry.
type TokenDetail struct {
	Record      domain.AggregatedRecord `json:"record"`
	FirstSeenAt int64                   `json:"firstSeenAt,omitempty"`
	LastSeenAt  int64                   `json:"lastSeenAt,omitempty"`
}

// List returns one page of the filtered, sorted snapshot.
func (s *Service) List(ctx context.Context, p ListParams) ListResult {
	req := domain.FilterRequest{
		SortBy:       p.SortBy,
		Period:       p.Period,
		MinVolume:    p.MinVolume,
		MinLiquidity: p.MinLiquidity,
	}
	if p.Limit > 0 {
		req.Limit = &p.Limit
	}
	criterion := req.Normalize()

	view := s.view(ctx, criterion)
	offset := decodeCursor(p.Cursor)

	result := ListResult{
		Records:    []domain.AggregatedRecord{},
		Pagination: Pagination{Total: len(view)},
	}
	if offset >= len(view) {
		return result
	}

	end := offset + criterion.Limit
	if end > len(view) {
		end = len(view)
	}
	result.Records = view[offset:end]

	if end < len(view) {
		next := encodeCursor(end, s.now().UnixMilli())
		result.Pagination.NextCursor = &next
		result.Pagination.HasMore = true
	}
	return result
}

// view returns the full filtered, sorted record list for criterion,
// read through the query cache.
func (s *Service) view(ctx context.Context, c domain.FilterCriterion) []domain.AggregatedRecord {
	snap := s.snapshots.Cached(ctx)
	if snap == nil {
		return nil
	}

	// pages share one cached view regardless of limit; views are bound to
	// the snapshot they were computed from
	c.Limit = 0
	key := cache.PrefixQuery + strconv.FormatInt(snap.CreatedAt, 10) + ":" + c.Key()

	if cached, ok := s.cacheGet(ctx, "query", key); ok {
		var records []domain.AggregatedRecord
		if err := json.Unmarshal([]byte(cached), &records); err == nil {
			return records
		}
		s.log.WithField("key", key).Warn("discarding undecodable query cache entry")
	}

	records := aggregation.Select(snap.Records, c)
	s.cacheSet(ctx, key, records, s.queryTTL)
	return records
}

// Get returns the record for address from the snapshot, or merges the
// upstream sources' records when the snapshot does not contain it.
func (s *Service) Get(ctx context.Context, address string) (*TokenDetail, error) {
	address = strings.TrimSpace(address)
	if !ValidAddress(address) {
		return nil, ErrInvalidAddress
	}

	record, ok := s.lookup(ctx, address)
	if !ok {
		return nil, ErrNotFound
	}

	detail := &TokenDetail{Record: record}
	if s.directory != nil {
		meta, err := s.directory.Get(ctx, address)
		switch {
		case err == nil:
			detail.FirstSeenAt = meta.FirstSeenAt
			detail.LastSeenAt = meta.LastSeenAt
		case !errors.Is(err, storage.ErrNotFound):
			s.log.WithError(err).WithField("address", address).Warn("directory lookup failed")
		}
	}
	return detail, nil
}

func (s *Service) lookup(ctx context.Context, address string) (domain.AggregatedRecord, bool) {
	if snap := s.snapshots.Cached(ctx); snap != nil {
		if r, ok := snap.Find(address); ok {
			return r, true
		}
	}

	key := cache.PrefixToken + domain.AddressKey(address)
	if cached, ok := s.cacheGet(ctx, "token", key); ok {
		var r domain.AggregatedRecord
		if err := json.Unmarshal([]byte(cached), &r); err == nil {
			return r, true
		}
	}

	lists := s.fanOut(ctx, "fetch_by_address", func(ctx context.Context, src sources.Source) ([]domain.SourceRecord, error) {
		r, err := src.FetchByAddress(ctx, address)
		if err != nil || r == nil {
			return nil, err
		}
		return []domain.SourceRecord{*r}, nil
	})

	merged := s.engine.Merge(lists...)
	for _, r := range merged {
		if r.Key() == domain.AddressKey(address) {
			s.cacheSet(ctx, key, r, s.tokenTTL)
			return r, true
		}
	}
	return domain.AggregatedRecord{}, false
}

// Search returns snapshot matches first, then upstream and directory
// matches, deduplicated by address.
func (s *Service) Search(ctx context.Context, query string) ([]domain.AggregatedRecord, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil, ErrQueryTooShort
	}
	needle := strings.ToLower(query)

	out := make([]domain.AggregatedRecord, 0, MaxSearchResults)
	seen := make(map[string]struct{})
	add := func(r domain.AggregatedRecord) bool {
		if _, dup := seen[r.Key()]; dup || r.Key() == "" {
			return len(out) < MaxSearchResults
		}
		seen[r.Key()] = struct{}{}
		out = append(out, r)
		return len(out) < MaxSearchResults
	}

	if snap := s.snapshots.Cached(ctx); snap != nil {
		for _, r := range snap.Records {
			if matches(r, needle) && !add(r) {
				return out, nil
			}
		}
	}

	lists := s.fanOut(ctx, "search", func(ctx context.Context, src sources.Source) ([]domain.SourceRecord, error) {
		return src.Search(ctx, query)
	})
	for _, r := range s.engine.Merge(lists...) {
		if !add(r) {
			return out, nil
		}
	}

	if s.directory != nil {
		entries, err := s.directory.Search(ctx, query, MaxSearchResults)
		if err != nil {
			s.log.WithError(err).Warn("directory search failed")
			return out, nil
		}
		for _, m := range entries {
			if !add(fromMetadata(m)) {
				break
			}
		}
	}
	return out, nil
}

func matches(r domain.AggregatedRecord, needle string) bool {
	return strings.Contains(strings.ToLower(r.Name), needle) ||
		strings.Contains(strings.ToLower(r.Symbol), needle) ||
		strings.Contains(r.Key(), needle)
}

// fromMetadata builds an identity-only record for a directory entry.
func fromMetadata(m *domain.TokenMetadata) domain.AggregatedRecord {
	return domain.AggregatedRecord{
		SourceRecord: domain.SourceRecord{
			Address:   m.Address,
			Name:      m.Name,
			Symbol:    m.Symbol,
			Protocol:  m.Protocol,
			Timestamp: m.LastSeenAt,
		},
		Sources:     []domain.Source{},
		LastUpdated: m.LastSeenAt,
	}
}

// fanOut calls every source concurrently. A failing source contributes
// an empty list.
func (s *Service) fanOut(ctx context.Context, op string, call func(context.Context, sources.Source) ([]domain.SourceRecord, error)) [][]domain.SourceRecord {
	lists := make([][]domain.SourceRecord, len(s.sources))

	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
			defer cancel()

			records, err := call(cctx, src)
			if err != nil {
				observability.RecordSourceError(src.Name().String())
				s.log.WithError(err).WithFields(logrus.Fields{
					"source":    src.Name(),
					"operation": op,
				}).Warn("upstream request failed")
				return nil
			}
			lists[i] = records
			return nil
		})
	}
	_ = g.Wait()
	return lists
}

func (s *Service) cacheGet(ctx context.Context, area, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	v, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.RecordCacheError("get")
		s.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return "", false
	}
	observability.RecordCacheLookup(area, ok)
	return v, ok
}

func (s *Service) cacheSet(ctx context.Context, key string, v any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(data), ttl); err != nil {
		observability.RecordCacheError("set")
		s.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

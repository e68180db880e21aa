// Package broadcast fans snapshot changes out to realtime clients.
package broadcast

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"token-aggregator/internal/aggregation"
	"token-aggregator/internal/domain"
	"token-aggregator/internal/logger"
	"token-aggregator/internal/observability"
	"token-aggregator/internal/subscription"
)

// Emitter delivers one event to one connection.
type Emitter interface {
	Send(connID string, ev domain.Event) error
}

// SnapshotSource provides the snapshot used for one-shot group slices.
type SnapshotSource interface {
	Cached(ctx context.Context) *domain.Snapshot
}

// AlertSink receives a copy of every price alert and volume spike.
type AlertSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Options configures a Broadcaster.
type Options struct {
	Registry  *subscription.Registry
	Snapshots SnapshotSource
	// Alerts is optional.
	Alerts AlertSink
	Logger logrus.FieldLogger
}

// Broadcaster routes events to the connections selected by the registry.
// Delivery is best-effort: a failed send to one client never affects others.
type Broadcaster struct {
	registry  *subscription.Registry
	snapshots SnapshotSource
	alerts    AlertSink
	emitter   Emitter
	now       func() int64
	log       logrus.FieldLogger
}

// New creates a Broadcaster. SetEmitter must be called before events flow.
func New(opts Options) *Broadcaster {
	return &Broadcaster{
		registry:  opts.Registry,
		snapshots: opts.Snapshots,
		alerts:    opts.Alerts,
		now:       func() int64 { return time.Now().UnixMilli() },
		log:       logger.Component(opts.Logger, "broadcast"),
	}
}

// SetEmitter attaches the transport that delivers events.
func (b *Broadcaster) SetEmitter(e Emitter) {
	b.emitter = e
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	return b.registry.ConnectionCount()
}

// BroadcastSnapshot sends every client the topN records by the default
// ordering (24h volume) with no thresholds applied.
func (b *Broadcaster) BroadcastSnapshot(snap *domain.Snapshot, topN int) {
	var tokens []domain.AggregatedRecord
	if snap != nil {
		tokens = aggregation.Slice(snap.Records, domain.FilterCriterion{
			SortBy: domain.DefaultSortBy,
			Period: domain.DefaultPeriod,
			Limit:  topN,
		})
	}
	b.sendAll(domain.Event{Name: domain.EventTokensRefresh, Data: domain.TokensRefresh{
		Tokens:    tokens,
		Count:     len(tokens),
		Timestamp: b.now(),
	}})
}

// BroadcastFilterGroups sends each group its own slice of snap.
func (b *Broadcaster) BroadcastFilterGroups(snap *domain.Snapshot) {
	if snap == nil {
		return
	}
	ts := b.now()
	for _, g := range b.registry.Groups() {
		tokens := aggregation.Slice(snap.Records, g.Criterion)
		b.sendTo(g.Members, domain.Event{Name: domain.EventTokensRefresh, Data: domain.TokensRefresh{
			Tokens:    tokens,
			Count:     len(tokens),
			Timestamp: ts,
			Group:     g.Name,
		}})
	}
}

// EmitTokenUpdate sends token:update to every client and again to the
// token's room.
func (b *Broadcaster) EmitTokenUpdate(rec domain.AggregatedRecord) {
	ev := domain.Event{Name: domain.EventTokenUpdate, Data: domain.TokenUpdate{Token: rec, Timestamp: b.now()}}
	b.sendAll(ev)
	b.sendTo(b.registry.TokenMembers(rec.Address), ev)
}

// EmitPriceAlert sends price:alert to every client and the alert sink.
func (b *Broadcaster) EmitPriceAlert(ctx context.Context, m domain.PriceMove) {
	b.emitAlert(ctx, domain.Event{Name: domain.EventPriceAlert, Data: domain.PriceAlert{
		Token:         m.Token,
		ChangePercent: m.ChangePercent,
		Timestamp:     b.now(),
	}})
}

// EmitVolumeSpike sends volume:spike to every client and the alert sink.
func (b *Broadcaster) EmitVolumeSpike(ctx context.Context, m domain.VolumeMove) {
	b.emitAlert(ctx, domain.Event{Name: domain.EventVolumeSpike, Data: domain.VolumeSpike{
		Token:        m.Token,
		SpikePercent: m.SpikePercent,
		Timestamp:    b.now(),
	}})
}

func (b *Broadcaster) emitAlert(ctx context.Context, ev domain.Event) {
	observability.RecordAlert(ev.Name)
	b.sendAll(ev)
	if b.alerts == nil {
		return
	}
	if err := b.alerts.Publish(ctx, ev); err != nil {
		observability.RecordAlertPublishError()
		b.log.WithError(err).WithField("event", ev.Name).Warn("publish alert")
	}
}

// ClientConnected registers a new connection.
func (b *Broadcaster) ClientConnected(id string) {
	b.registry.Connect(id)
	b.updateGauges()
}

// ClientDisconnected removes the connection from every room and group.
func (b *Broadcaster) ClientDisconnected(id string) {
	b.registry.Disconnect(id)
	b.updateGauges()
}

// JoinToken subscribes the connection to token:update for address.
func (b *Broadcaster) JoinToken(id, address, ackID string) {
	ok := b.registry.JoinToken(id, address)
	ack := domain.Ack{ID: ackID, OK: ok}
	if !ok {
		ack.Error = "cannot join token room"
	}
	b.ack(id, ack)
}

// LeaveToken unsubscribes the connection from address.
func (b *Broadcaster) LeaveToken(id, address, ackID string) {
	b.registry.LeaveToken(id, address)
	b.ack(id, domain.Ack{ID: ackID, OK: true})
}

// JoinFilterGroup normalizes req, joins the matching group and sends the
// group's current slice from the cached snapshot before acknowledging.
func (b *Broadcaster) JoinFilterGroup(ctx context.Context, id string, req domain.FilterRequest, ackID string) {
	c := req.Normalize()
	name, created := b.registry.JoinGroup(id, c)
	b.updateGauges()
	b.log.WithFields(logrus.Fields{"conn": id, "group": name, "created": created}).Debug("joined filter group")

	if snap := b.snapshots.Cached(ctx); snap != nil {
		tokens := aggregation.Slice(snap.Records, c)
		b.sendTo([]string{id}, domain.Event{Name: domain.EventTokensRefresh, Data: domain.TokensRefresh{
			Tokens:    tokens,
			Count:     len(tokens),
			Timestamp: b.now(),
			Group:     name,
		}})
	}
	b.ack(id, domain.Ack{ID: ackID, OK: true, Group: name})
}

// LeaveAllFilterGroups removes the connection from every group.
func (b *Broadcaster) LeaveAllFilterGroups(id, ackID string) {
	b.registry.LeaveAllGroups(id)
	b.updateGauges()
	b.ack(id, domain.Ack{ID: ackID, OK: true})
}

func (b *Broadcaster) ack(id string, a domain.Ack) {
	b.sendTo([]string{id}, domain.Event{Name: domain.EventAck, Data: a})
}

func (b *Broadcaster) sendAll(ev domain.Event) {
	b.sendTo(b.registry.Connections(), ev)
}

func (b *Broadcaster) sendTo(ids []string, ev domain.Event) {
	if b.emitter == nil {
		return
	}
	for _, id := range ids {
		if err := b.emitter.Send(id, ev); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{"conn": id, "event": ev.Name}).Debug("send failed")
		}
	}
}

func (b *Broadcaster) updateGauges() {
	observability.UpdateRealtime(b.registry.ConnectionCount(), b.registry.GroupCount())
}

package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// NodeInfo is the registry's view of a capture node.
type NodeInfo struct {
	ID         string            `json:"id"`
	Role       string            `json:"role"`
	WakePhrase string            `json:"wake_phrase"`
	Language   string            `json:"language"`
	Attributes map[string]string `json:"attributes,omitempty"`
	LastSeen   time.Time         `json:"last_seen"`
	Healthy    bool              `json:"healthy"`
}

// Registry tracks capture nodes on the bus. The local node announces itself
// on startup and heartbeats on an interval; remote nodes are learned from
// their announcements and marked unhealthy when heartbeats stop.
type Registry struct {
	cfg       config.NodeConfig
	announce  protocol.NodeAnnouncement
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	nodes     map[string]*NodeInfo
	heartbeat *time.Ticker
	cancel    context.CancelFunc
	subs      []*nats.Subscription
	meter     metric.Meter
	nodeGauge metric.Int64ObservableGauge
}

func NewRegistry(ctx context.Context, cfg config.NodeConfig, announce protocol.NodeAnnouncement, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	announce.NodeID = cfg.ID
	announce.Role = cfg.Role
	r := &Registry{
		cfg:      cfg,
		announce: announce,
		log:      log.With(slog.String("component", "capability-registry")),
		bus:      busClient,
		nodes:    make(map[string]*NodeInfo),
		meter:    otel.Meter("github.com/loqalabs/loqa-listen/runtime"),
		cancel:   cancel,
	}

	if err := r.initMetrics(ctx); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(ctx); err != nil {
		r.cancel()
		return nil, err
	}

	r.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)

	if err := r.publishAnnounce(); err != nil {
		r.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.heartbeat != nil {
		r.heartbeat.Stop()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

func (r *Registry) subscribe(ctx context.Context) error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectNodeAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectNodeHeartbeat+".*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)

	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.heartbeat.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) publishAnnounce() error {
	msg := r.announce
	msg.AnnouncedAt = time.Now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.bus.Conn().Publish(protocol.SubjectNodeAnnounce, payload); err != nil {
		return err
	}
	r.applyAnnounce(msg)
	return nil
}

func (r *Registry) publishHeartbeat() error {
	msg := protocol.NodeHeartbeat{
		NodeID:    r.cfg.ID,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", protocol.SubjectNodeHeartbeat, r.cfg.ID)
	return r.bus.Conn().Publish(subject, payload)
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement protocol.NodeAnnouncement
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.AnnouncedAt.IsZero() {
		announcement.AnnouncedAt = time.Now().UTC()
	}
	r.applyAnnounce(announcement)
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.NodeHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	r.touchNode(hb.NodeID, hb.Timestamp)
}

func (r *Registry) applyAnnounce(msg protocol.NodeAnnouncement) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[msg.NodeID]
	if !ok {
		node = &NodeInfo{ID: msg.NodeID}
		r.nodes[msg.NodeID] = node
	}
	if msg.Role != "" {
		node.Role = msg.Role
	}
	if msg.WakePhrase != "" {
		node.WakePhrase = msg.WakePhrase
	}
	if msg.Language != "" {
		node.Language = msg.Language
	}
	if len(msg.Attributes) > 0 {
		node.Attributes = msg.Attributes
	}
	node.LastSeen = msg.AnnouncedAt
	node.Healthy = true
}

func (r *Registry) touchNode(nodeID string, timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		node = &NodeInfo{ID: nodeID}
		r.nodes[nodeID] = node
	}
	node.LastSeen = timestamp
	node.Healthy = true
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := time.Now()
	for _, node := range r.nodes {
		if now.Sub(node.LastSeen) > timeout {
			node.Healthy = false
		}
	}
}

func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[r.cfg.ID]
	if !ok {
		return false
	}
	return node.Healthy
}

func (r *Registry) Query(filter func(NodeInfo) bool) []NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []NodeInfo
	for _, node := range r.nodes {
		copy := *node
		if filter == nil || filter(copy) {
			results = append(results, copy)
		}
	}
	return results
}

func (r *Registry) initMetrics(ctx context.Context) error {
	if r.meter == nil {
		return nil
	}
	gauge, err := r.meter.Int64ObservableGauge("loqa.listen.nodes", metric.WithDescription("Number of known capture nodes"))
	if err != nil {
		return err
	}
	r.nodeGauge = gauge
	_, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, r.snapshotCount())
		return nil
	}, gauge)
	return err
}

func (r *Registry) snapshotCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.nodes))
}

// WithLanguageFilter selects nodes announcing a given language.
func WithLanguageFilter(language string) func(NodeInfo) bool {
	return func(node NodeInfo) bool {
		return node.Language == language
	}
}

// WithRoleFilter selects nodes announcing a given role.
func WithRoleFilter(role string) func(NodeInfo) bool {
	return func(node NodeInfo) bool {
		return node.Role == role
	}
}

// AttributesAsAttrs converts a node's attribute map to otel attributes.
func (n NodeInfo) AttributesAsAttrs() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for k, v := range n.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

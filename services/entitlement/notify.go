package entitlement

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"carematch/pkg/observable"
	"carematch/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier fans status changes out to the subscribers of one owner.
type Notifier interface {
	Publish(ctx context.Context, ownerID string, status Status)
	Subscribe(ownerID string, initial Status) *observable.Subscription[Status]
	// Watched lists owners that were published to or subscribed to.
	Watched() []string
	Last(ownerID string) (Status, bool)
	Reset()
}

type ChannelNotifier struct {
	mu       sync.Mutex
	subjects map[string]*observable.Subject[Status]
}

func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{subjects: make(map[string]*observable.Subject[Status])}
}

func (n *ChannelNotifier) subject(ownerID string) *observable.Subject[Status] {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.subjects[ownerID]
	if !ok {
		s = observable.NewSubject[Status]()
		n.subjects[ownerID] = s
	}
	return s
}

func (n *ChannelNotifier) Publish(_ context.Context, ownerID string, status Status) {
	n.subject(ownerID).Publish(status)
}

func (n *ChannelNotifier) Subscribe(ownerID string, initial Status) *observable.Subscription[Status] {
	return n.subject(ownerID).SubscribeWith(initial)
}

func (n *ChannelNotifier) Watched() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	owners := make([]string, 0, len(n.subjects))
	for owner := range n.subjects {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

func (n *ChannelNotifier) Last(ownerID string) (Status, bool) {
	n.mu.Lock()
	s, ok := n.subjects[ownerID]
	n.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return s.Value()
}

// Reset closes every subscription and forgets all owners.
func (n *ChannelNotifier) Reset() {
	n.mu.Lock()
	subjects := n.subjects
	n.subjects = make(map[string]*observable.Subject[Status])
	n.mu.Unlock()
	for _, s := range subjects {
		s.Close()
	}
}

// RedisNotifier mirrors every publish onto the redis channel
// entitlement:<kind>:<owner> so other processes can follow status changes.
type RedisNotifier struct {
	Notifier
	rdb  *redis.Client
	kind Kind
}

func NewRedisNotifier(next Notifier, rdb *redis.Client, kind Kind) *RedisNotifier {
	return &RedisNotifier{Notifier: next, rdb: rdb, kind: kind}
}

const redisPublishTimeout = 500 * time.Millisecond

type statusMessage struct {
	Kind    Kind   `json:"kind"`
	OwnerID string `json:"owner_id"`
	Status  Status `json:"status"`
}

func (n *RedisNotifier) Publish(ctx context.Context, ownerID string, status Status) {
	n.Notifier.Publish(ctx, ownerID, status)

	payload, err := json.Marshal(statusMessage{Kind: n.kind, OwnerID: ownerID, Status: status})
	if err != nil {
		zap.L().Error("failed to encode entitlement status", zap.String("owner_id", ownerID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisPublishTimeout)
	defer cancel()

	channel := rediskey.BuildEntitlementChannel(n.kind.String(), ownerID)
	if err := n.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		zap.L().Warn("failed to mirror entitlement status to redis",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

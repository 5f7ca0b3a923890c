package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

// NodeId identifies a page server in the Node Registry.
type NodeId string

// NewNodeId mints a fresh, randomly generated node id.
func NewNodeId() NodeId {
	return NodeId(uuid.NewString())
}

// TenantId identifies the administrative owner of a key range.
type TenantId string

// NewTenantId mints a fresh tenant id.
func NewTenantId() TenantId {
	return TenantId(uuid.NewString())
}

// TimelineId identifies one branch of a tenant's history.
type TimelineId string

// NewTimelineId mints a fresh timeline id.
func NewTimelineId() TimelineId {
	return TimelineId(uuid.NewString())
}

// TenantShardId is the fully-qualified identity of one horizontal partition
// of a tenant's key space. The unsharded case is (tid, 0, 1).
type TenantShardId struct {
	TenantId    TenantId
	ShardNumber uint8
	ShardCount  uint8
}

// UnshardedTenantShardId returns the degenerate single-shard id for a tenant.
func UnshardedTenantShardId(tid TenantId) TenantShardId {
	return TenantShardId{TenantId: tid, ShardNumber: 0, ShardCount: 1}
}

// String renders the canonical encoding "{tenant_id}-{number:02x}{count:02x}".
func (id TenantShardId) String() string {
	return fmt.Sprintf("%s-%02x%02x", id.TenantId, id.ShardNumber, id.ShardCount)
}

// IsUnsharded reports whether this is the legacy single-shard case.
func (id TenantShardId) IsUnsharded() bool {
	return id.ShardCount <= 1
}

// ParseTenantShardId parses the canonical string encoding produced by String.
func ParseTenantShardId(s string) (TenantShardId, error) {
	idx := strings.LastIndex(s, "-")
	if idx < 0 || len(s)-idx-1 != 4 {
		return TenantShardId{}, fmt.Errorf("malformed tenant shard id %q", s)
	}
	suffix := s[idx+1:]
	number, err := strconv.ParseUint(suffix[0:2], 16, 8)
	if err != nil {
		return TenantShardId{}, fmt.Errorf("malformed shard number in %q: %w", s, err)
	}
	count, err := strconv.ParseUint(suffix[2:4], 16, 8)
	if err != nil {
		return TenantShardId{}, fmt.Errorf("malformed shard count in %q: %w", s, err)
	}
	return TenantShardId{
		TenantId:    TenantId(s[:idx]),
		ShardNumber: uint8(number),
		ShardCount:  uint8(count),
	}, nil
}

// Less gives the canonical total order used when a caller must hold more than
// one shard lock at once: always acquire in ascending TenantShardId order.
func (id TenantShardId) Less(other TenantShardId) bool {
	if id.TenantId != other.TenantId {
		return id.TenantId < other.TenantId
	}
	if id.ShardCount != other.ShardCount {
		return id.ShardCount < other.ShardCount
	}
	return id.ShardNumber < other.ShardNumber
}

// ShardLayout reserves room for future hash-scheme changes. All shards of a
// single tenant must share one layout.
type ShardLayout uint8

// LayoutV1 is the only layout this control plane currently issues.
const LayoutV1 ShardLayout = 1

// DefaultStripeSize is the default stripe size in pages (256MiB / 8KiB pages).
const DefaultStripeSize uint32 = 256 * 1024 / 8

// ShardIdentity carries everything needed to map a key to a shard number and
// to describe that mapping to a page server.
type ShardIdentity struct {
	Layout     ShardLayout
	Number     uint8
	Count      uint8
	StripeSize uint32
}

// DefaultShardIdentity returns the legacy single-shard identity.
func DefaultShardIdentity() ShardIdentity {
	return ShardIdentity{Layout: LayoutV1, Number: 0, Count: 1, StripeSize: DefaultStripeSize}
}

// KeyToShardNumber reproduces the control plane's key-to-shard hash: a
// non-cryptographic 32-bit murmur3 hash (seed 0) over the key prefix bytes,
// plus blockNumber/stripeSize, modulo count. count == 0 is the degenerate
// unsharded mapping and always resolves to shard 0.
func KeyToShardNumber(count uint8, stripeSize uint32, keyPrefix []byte, blockNumber uint32) uint8 {
	if count == 0 {
		return 0
	}
	h := murmur3.New32WithSeed(0)
	_, _ = h.Write(keyPrefix)
	hash := h.Sum32()

	stripe := hash + blockNumber/stripeSize
	return uint8(stripe % uint32(count))
}

// GetShardNumber applies KeyToShardNumber using this identity's parameters.
func (s ShardIdentity) GetShardNumber(keyPrefix []byte, blockNumber uint32) uint8 {
	return KeyToShardNumber(s.Count, s.StripeSize, keyPrefix, blockNumber)
}

// Generation is a monotone per-tenant-shard epoch that gates safe deletion of
// objects written under a past attachment. It is a distinct numeric type
// rather than a bare uint32 so a generation can never be substituted for an
// unrelated integer by accident.
type Generation uint32

// InvalidGeneration marks a shard that has never been attached.
const InvalidGeneration Generation = 0

// Next returns the next generation in sequence. Generations only move forward.
func (g Generation) Next() Generation {
	return g + 1
}

// Valid reports whether this generation has ever been issued.
func (g Generation) Valid() bool {
	return g != InvalidGeneration
}

// PlacementMode is the placement strategy tag for PlacementPolicy.
type PlacementMode string

const (
	// PlacementModeSingle keeps exactly one attached copy and no secondaries.
	PlacementModeSingle PlacementMode = "single"
	// PlacementModeDouble keeps one attached copy plus Secondaries warm copies.
	PlacementModeDouble PlacementMode = "double"
)

// PlacementPolicy describes how many copies of a shard the scheduler should
// place, and where.
type PlacementPolicy struct {
	Mode PlacementMode
	// Secondaries is the secondary-copy count k for PlacementModeDouble.
	// Ignored for PlacementModeSingle.
	Secondaries int
}

// SinglePolicy is the common Single() placement policy.
func SinglePolicy() PlacementPolicy {
	return PlacementPolicy{Mode: PlacementModeSingle}
}

// DoublePolicy returns a Double(k) placement policy.
func DoublePolicy(k int) PlacementPolicy {
	return PlacementPolicy{Mode: PlacementModeDouble, Secondaries: k}
}

// WantedSecondaries returns how many secondary locations this policy wants.
func (p PlacementPolicy) WantedSecondaries() int {
	if p.Mode == PlacementModeDouble {
		return p.Secondaries
	}
	return 0
}

// LocationConfigMode is the state a page server should enter for a shard.
type LocationConfigMode string

const (
	LocationDetached       LocationConfigMode = "Detached"
	LocationSecondary      LocationConfigMode = "Secondary"
	LocationAttachedSingle LocationConfigMode = "AttachedSingle"
	LocationAttachedMulti  LocationConfigMode = "AttachedMulti"
	LocationAttachedStale  LocationConfigMode = "AttachedStale"
)

// IsAttached reports whether mode represents any attached variant.
func (m LocationConfigMode) IsAttached() bool {
	switch m {
	case LocationAttachedSingle, LocationAttachedMulti, LocationAttachedStale:
		return true
	default:
		return false
	}
}

// SecondaryConf is the secondary-mode detail carried in a LocationConfig.
type SecondaryConf struct {
	Warm bool `json:"warm"`
}

// TenantConfig holds tenant-level knobs forwarded verbatim to page servers.
// The control plane does not interpret these values.
type TenantConfig map[string]any

// LocationConfig is the full body of a PUT .../location_config call.
type LocationConfig struct {
	Mode            LocationConfigMode `json:"mode"`
	Generation      *Generation        `json:"generation,omitempty"`
	SecondaryConf   *SecondaryConf     `json:"secondary_conf,omitempty"`
	TenantConf      TenantConfig       `json:"tenant_conf,omitempty"`
	ShardNumber     uint8              `json:"shard_number"`
	ShardCount      uint8              `json:"shard_count"`
	ShardStripeSize uint32             `json:"shard_stripe_size"`
}

// Equal reports whether two configs describe the same desired state, which is
// how the reconciler decides whether a PUT is necessary at all.
func (c LocationConfig) Equal(other LocationConfig) bool {
	if c.Mode != other.Mode {
		return false
	}
	if (c.Generation == nil) != (other.Generation == nil) {
		return false
	}
	if c.Generation != nil && *c.Generation != *other.Generation {
		return false
	}
	if (c.SecondaryConf == nil) != (other.SecondaryConf == nil) {
		return false
	}
	if c.SecondaryConf != nil && *c.SecondaryConf != *other.SecondaryConf {
		return false
	}
	return c.ShardNumber == other.ShardNumber &&
		c.ShardCount == other.ShardCount &&
		c.ShardStripeSize == other.ShardStripeSize
}

// AttachedLocationConfig builds the LocationConfig for an AttachedSingle PUT.
func AttachedLocationConfig(gen Generation, shard ShardIdentity, tenantConf TenantConfig) LocationConfig {
	g := gen
	return LocationConfig{
		Mode:            LocationAttachedSingle,
		Generation:      &g,
		TenantConf:      tenantConf,
		ShardNumber:     shard.Number,
		ShardCount:      shard.Count,
		ShardStripeSize: shard.StripeSize,
	}
}

// SecondaryLocationConfig builds the LocationConfig for a warm Secondary PUT.
func SecondaryLocationConfig(shard ShardIdentity, tenantConf TenantConfig) LocationConfig {
	return LocationConfig{
		Mode:            LocationSecondary,
		SecondaryConf:   &SecondaryConf{Warm: true},
		TenantConf:      tenantConf,
		ShardNumber:     shard.Number,
		ShardCount:      shard.Count,
		ShardStripeSize: shard.StripeSize,
	}
}

// AttachedMultiLocationConfig builds the LocationConfig for the destination
// side of a live migration, where two nodes transiently hold an attached
// config for the same shard.
func AttachedMultiLocationConfig(gen Generation, shard ShardIdentity, tenantConf TenantConfig) LocationConfig {
	g := gen
	return LocationConfig{
		Mode:            LocationAttachedMulti,
		Generation:      &g,
		TenantConf:      tenantConf,
		ShardNumber:     shard.Number,
		ShardCount:      shard.Count,
		ShardStripeSize: shard.StripeSize,
	}
}

// AttachedStaleLocationConfig builds the LocationConfig used to freeze a
// live-migration origin: it must stop accepting writes but keeps its
// generation so the controller can still address it.
func AttachedStaleLocationConfig(gen Generation, shard ShardIdentity, tenantConf TenantConfig) LocationConfig {
	g := gen
	return LocationConfig{
		Mode:            LocationAttachedStale,
		Generation:      &g,
		TenantConf:      tenantConf,
		ShardNumber:     shard.Number,
		ShardCount:      shard.Count,
		ShardStripeSize: shard.StripeSize,
	}
}

// DetachedLocationConfig builds the LocationConfig for a Detached PUT.
func DetachedLocationConfig(shard ShardIdentity, tenantConf TenantConfig) LocationConfig {
	return LocationConfig{
		Mode:            LocationDetached,
		TenantConf:      tenantConf,
		ShardNumber:     shard.Number,
		ShardCount:      shard.Count,
		ShardStripeSize: shard.StripeSize,
	}
}

// NodeAvailability reflects whether the control plane currently believes it
// can reach a node.
type NodeAvailability string

const (
	NodeActive  NodeAvailability = "active"
	NodeOffline NodeAvailability = "offline"
)

// NodeSchedulingPolicy controls whether a node is eligible for new placements.
type NodeSchedulingPolicy string

const (
	SchedulingActive   NodeSchedulingPolicy = "active"
	SchedulingFilling  NodeSchedulingPolicy = "filling"
	SchedulingPause    NodeSchedulingPolicy = "pause"
	SchedulingDraining NodeSchedulingPolicy = "draining"
)

// Node is one page server known to the control plane.
type Node struct {
	Id           NodeId
	ListenAddrs  []string
	Availability NodeAvailability
	Scheduling   NodeSchedulingPolicy
}

// BaseURL returns the node's primary HTTP base URL, or "" if it has none.
func (n Node) BaseURL() string {
	if len(n.ListenAddrs) == 0 {
		return ""
	}
	return n.ListenAddrs[0]
}

// Eligible reports whether the scheduler may place new work on this node:
// only Active availability and Active scheduling policy are selectable.
func (n Node) Eligible() bool {
	return n.Availability == NodeActive && n.Scheduling == SchedulingActive
}

// TimelineLSN pairs a timeline with its last-record LSN, as returned by a
// page server's timeline-listing endpoint.
type TimelineLSN struct {
	TimelineId    TimelineId
	LastRecordLSN uint64
}

package ynison

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/semaphore"

	"github.com/lapismyt/nowbot/internal/catalog"
)

var log = logging.Logger("ynison")

// Catalog is the downstream collaborator that turns a playable id into
// playable track metadata and a direct audio URL.
type Catalog interface {
	Track(ctx context.Context, token, trackID string) (catalog.TrackInfo, error)
	DownloadVariants(ctx context.Context, token, trackID string) ([]catalog.Variant, error)
	DirectURL(ctx context.Context, token string, v catalog.Variant) (string, error)
}

// Options bounds each protocol step. Zero values fall back to the defaults
// the remote service is known to tolerate.
type Options struct {
	// ConnectTimeout bounds each websocket handshake.
	ConnectTimeout time.Duration
	// NegotiateTimeout bounds the whole redirector step, dial plus receive.
	NegotiateTimeout time.Duration
	// ReceiveTimeout bounds the single snapshot receive on the sync socket.
	ReceiveTimeout time.Duration
	// MaxConcurrent caps simultaneous resolutions across all callers.
	// Zero means unbounded.
	MaxConcurrent int64
	// PreferredBitrateKbps selects the download variant; lower bitrates are
	// acceptable fallbacks.
	PreferredBitrateKbps int
}

func (o *Options) withDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.NegotiateTimeout <= 0 {
		o.NegotiateTimeout = 15 * time.Second
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = 10 * time.Second
	}
	if o.PreferredBitrateKbps <= 0 {
		o.PreferredBitrateKbps = 320
	}
}

// Resolver discovers the track currently playing on an account by joining
// the account's Ynison session as a shadow device. Each Resolve call is
// self-contained: it opens two sockets in strict sequence, performs one
// send and one receive on each, and closes both before returning. Safe for
// concurrent use.
type Resolver struct {
	catalog Catalog
	opts    Options
	sem     *semaphore.Weighted

	// Overridable for tests.
	redirector string
	syncScheme string
}

// New builds a resolver around the given catalog collaborator.
func New(cat Catalog, opts Options) *Resolver {
	opts.withDefaults()
	r := &Resolver{
		catalog:    cat,
		opts:       opts,
		redirector: redirectorURL,
		syncScheme: "wss",
	}
	if opts.MaxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return r
}

// Resolve performs one best-effort read of the account's live playback state.
// It never retries; a caller wanting resilience re-invokes the whole call,
// because the negotiated ticket is single-use. The returned value is always
// terminal; no error escapes as a panic or bare error.
func (r *Resolver) Resolve(ctx context.Context, token string) OperationResult {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return failf(ErrTimeout, "waiting for resolution slot: %v", err).result()
		}
		defer r.sem.Release(1)
	}

	dev := NewDevice()

	tk, f := r.negotiate(ctx, token, dev)
	if f != nil {
		log.Debugw("negotiation failed", "kind", f.kind.String(), "device", dev.DeviceID)
		return f.result()
	}

	snap, f := r.synchronize(ctx, token, dev, tk)
	if f != nil {
		log.Debugw("synchronization failed", "kind", f.kind.String(), "device", dev.DeviceID)
		return f.result()
	}

	return r.resolveTrack(ctx, token, snap)
}

// resolveTrack extracts the current track reference from the snapshot and
// enriches it through the catalog, assembling the final OperationResult.
func (r *Resolver) resolveTrack(ctx context.Context, token string, snap PlaybackSnapshot) OperationResult {
	idx := snap.CurrentPlayableIndex
	if idx == -1 {
		// Explicit "nothing playing" sentinel, a valid outcome.
		return notPlaying()
	}
	if idx < 0 || idx >= len(snap.PlayableIDs) {
		return failf(ErrProtocolViolation, "playable index %d out of range (%d playables)", idx, len(snap.PlayableIDs)).result()
	}
	playableID := snap.PlayableIDs[idx]

	variants, err := r.catalog.DownloadVariants(ctx, token, playableID)
	if err != nil {
		return failf(ErrUpstream, "download variants for %s: %v", playableID, err).result()
	}
	variant, ok := catalog.PreferredVariant(variants, r.opts.PreferredBitrateKbps)
	if !ok {
		return failf(ErrNoPlayableVariant, "no usable download variant for %s", playableID).result()
	}

	url, err := r.catalog.DirectURL(ctx, token, variant)
	if err != nil {
		return failf(ErrUpstream, "direct url for %s: %v", playableID, err).result()
	}

	meta, err := r.catalog.Track(ctx, token, playableID)
	if err != nil {
		return failf(ErrUpstream, "track metadata for %s: %v", playableID, err).result()
	}

	return OperationResult{
		Status: StatusPlaying,
		Track: &ResolvedTrack{
			ID:          meta.ID,
			Title:       meta.Title,
			Artists:     meta.Artists,
			DurationMs:  meta.DurationMs,
			URL:         url,
			Codec:       variant.Codec,
			BitrateKbps: variant.BitrateKbps,
		},
		Paused:     snap.Paused,
		ProgressMs: snap.ProgressMs,
		DurationMs: snap.DurationMs,
		EntityID:   snap.EntityID,
		EntityType: snap.EntityType,
		RepeatMode: snap.RepeatMode,
	}
}

package ynison

// Wire shapes for the two Ynison sockets. Only the fields this client reads
// are declared on the inbound side; everything else the service sends is
// tolerated and ignored.

// Literal version identifiers sent in the shadow-device announcement. The
// service requires version blocks on queue and status but this client never
// mutates playback state, so it does not participate in real version
// negotiation. Keep these as constants.
const (
	queueVersion  int64 = 9021243204784341000
	statusVersion int64 = 8321822175199937000
)

const activityNoIntercept = "DO_NOT_INTERCEPT_BY_DEFAULT"

// redirectResponse is the single frame the redirector sends back.
type redirectResponse struct {
	RedirectTicket string `json:"redirect_ticket"`
	Host           string `json:"host"`
}

// RedirectTicket binds one negotiated session to the sync host that owns it.
// Single-use; never reuse a ticket across calls.
type RedirectTicket struct {
	Ticket string
	Host   string
}

type versionRef struct {
	DeviceID    string `json:"device_id"`
	Version     int64  `json:"version"`
	TimestampMs int64  `json:"timestamp_ms"`
}

type queueOptions struct {
	RepeatMode string `json:"repeat_mode"`
}

type announceQueue struct {
	CurrentPlayableIndex int          `json:"current_playable_index"`
	EntityID             string       `json:"entity_id"`
	EntityType           string       `json:"entity_type"`
	PlayableList         []struct{}   `json:"playable_list"`
	Options              queueOptions `json:"options"`
	EntityContext        string       `json:"entity_context"`
	Version              versionRef   `json:"version"`
	FromOptional         string       `json:"from_optional"`
}

type announceStatus struct {
	DurationMs    int64      `json:"duration_ms"`
	Paused        bool       `json:"paused"`
	PlaybackSpeed float64    `json:"playback_speed"`
	ProgressMs    int64      `json:"progress_ms"`
	Version       versionRef `json:"version"`
}

type deviceCapabilities struct {
	CanBePlayer           bool `json:"can_be_player"`
	CanBeRemoteController bool `json:"can_be_remote_controller"`
	VolumeGranularity     int  `json:"volume_granularity"`
}

type deviceInfo struct {
	DeviceID string `json:"device_id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	AppName  string `json:"app_name"`
}

type announceDevice struct {
	Capabilities deviceCapabilities `json:"capabilities"`
	Info         deviceInfo         `json:"info"`
	VolumeInfo   struct {
		Volume int `json:"volume"`
	} `json:"volume_info"`
	IsShadow bool `json:"is_shadow"`
}

type announcePlayerState struct {
	PlayerQueue announceQueue  `json:"player_queue"`
	Status      announceStatus `json:"status"`
}

type fullStateUpdate struct {
	PlayerState       announcePlayerState `json:"player_state"`
	Device            announceDevice      `json:"device"`
	IsCurrentlyActive bool                `json:"is_currently_active"`
}

// announceMessage is the one outbound frame on the sync socket: a full-state
// update for a shadow, inactive device with an empty queue. It exists only to
// satisfy the join precondition; it carries no playback intent.
type announceMessage struct {
	UpdateFullState         fullStateUpdate `json:"update_full_state"`
	Rid                     string          `json:"rid"`
	PlayerActionTimestampMs int64           `json:"player_action_timestamp_ms"`
	ActivityInterception    string          `json:"activity_interception_type"`
}

func shadowAnnouncement(dev DeviceDescriptor, rid string) announceMessage {
	return announceMessage{
		UpdateFullState: fullStateUpdate{
			PlayerState: announcePlayerState{
				PlayerQueue: announceQueue{
					CurrentPlayableIndex: -1,
					EntityType:           "VARIOUS",
					PlayableList:         []struct{}{},
					Options:              queueOptions{RepeatMode: "NONE"},
					EntityContext:        "BASED_ON_ENTITY_BY_DEFAULT",
					Version: versionRef{
						DeviceID: dev.DeviceID,
						Version:  queueVersion,
					},
				},
				Status: announceStatus{
					Paused:        true,
					PlaybackSpeed: 1,
					Version: versionRef{
						DeviceID: dev.DeviceID,
						Version:  statusVersion,
					},
				},
			},
			Device: announceDevice{
				Capabilities: deviceCapabilities{
					CanBePlayer:       true,
					VolumeGranularity: 16,
				},
				Info: deviceInfo{
					DeviceID: dev.DeviceID,
					Type:     deviceType,
					Title:    deviceTitle,
					AppName:  appName,
				},
				IsShadow: true,
			},
			IsCurrentlyActive: false,
		},
		Rid:                  rid,
		ActivityInterception: activityNoIntercept,
	}
}

// snapshotMessage mirrors the fields consumed from the sync host's state
// frame. Unknown fields are ignored by encoding/json, which is what the
// protocol's forward-compatibility requires.
type snapshotMessage struct {
	PlayerState struct {
		PlayerQueue struct {
			CurrentPlayableIndex int    `json:"current_playable_index"`
			EntityID             string `json:"entity_id"`
			EntityType           string `json:"entity_type"`
			PlayableList         []struct {
				PlayableID string `json:"playable_id"`
			} `json:"playable_list"`
			Options queueOptions `json:"options"`
		} `json:"player_queue"`
		Status struct {
			Paused     bool  `json:"paused"`
			DurationMs int64 `json:"duration_ms"`
			ProgressMs int64 `json:"progress_ms"`
		} `json:"status"`
	} `json:"player_state"`
}

// PlaybackSnapshot is the authoritative session state received from the sync
// host, reduced to the fields this client consumes. Immutable after receipt.
type PlaybackSnapshot struct {
	CurrentPlayableIndex int
	PlayableIDs          []string
	EntityID             string
	EntityType           string
	RepeatMode           string
	Paused               bool
	DurationMs           int64
	ProgressMs           int64
}

func (m snapshotMessage) snapshot() PlaybackSnapshot {
	q := m.PlayerState.PlayerQueue
	ids := make([]string, len(q.PlayableList))
	for i, p := range q.PlayableList {
		ids[i] = p.PlayableID
	}
	return PlaybackSnapshot{
		CurrentPlayableIndex: q.CurrentPlayableIndex,
		PlayableIDs:          ids,
		EntityID:             q.EntityID,
		EntityType:           q.EntityType,
		RepeatMode:           q.Options.RepeatMode,
		Paused:               m.PlayerState.Status.Paused,
		DurationMs:           m.PlayerState.Status.DurationMs,
		ProgressMs:           m.PlayerState.Status.ProgressMs,
	}
}

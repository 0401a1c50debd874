package ynison

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lapismyt/nowbot/internal/catalog"
)

const testToken = "test-oauth-token"

type fakeCatalog struct {
	track       catalog.TrackInfo
	trackErr    error
	variants    []catalog.Variant
	variantsErr error
	url         string
	urlErr      error
}

func (f *fakeCatalog) Track(ctx context.Context, token, trackID string) (catalog.TrackInfo, error) {
	return f.track, f.trackErr
}

func (f *fakeCatalog) DownloadVariants(ctx context.Context, token, trackID string) ([]catalog.Variant, error) {
	return f.variants, f.variantsErr
}

func (f *fakeCatalog) DirectURL(ctx context.Context, token string, v catalog.Variant) (string, error) {
	return f.url, f.urlErr
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer runs handler for each upgraded connection and closes it after.
func wsServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

// checkHandshake validates the headers both sockets must carry.
func checkHandshake(t *testing.T, r *http.Request, wantTicket string) {
	t.Helper()
	if got := r.Header.Get("Authorization"); got != "OAuth "+testToken {
		t.Errorf("Authorization = %q", got)
	}
	if got := r.Header.Get("Origin"); got != "http://music.yandex.ru" {
		t.Errorf("Origin = %q", got)
	}
	header := r.Header.Get("Sec-WebSocket-Protocol")
	if !strings.HasPrefix(header, "Bearer, v2, ") {
		t.Fatalf("Sec-WebSocket-Protocol = %q", header)
	}
	var proto map[string]string
	if err := json.Unmarshal([]byte(strings.TrimPrefix(header, "Bearer, v2, ")), &proto); err != nil {
		t.Fatalf("sub-protocol payload: %v", err)
	}
	if len(proto["Ynison-Device-Id"]) != deviceIDLen {
		t.Errorf("Ynison-Device-Id = %q", proto["Ynison-Device-Id"])
	}
	if got := proto["Ynison-Redirect-Ticket"]; got != wantTicket {
		t.Errorf("Ynison-Redirect-Ticket = %q, want %q", got, wantTicket)
	}
}

// syncHost mocks the state service: it expects the shadow announcement and
// replies with the given snapshot payload.
func syncHost(t *testing.T, ticket string, snapshot any, dialed *atomic.Int32) *httptest.Server {
	t.Helper()
	return wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		if dialed != nil {
			dialed.Add(1)
		}
		if r.URL.Path != syncPath {
			t.Errorf("sync path = %q, want %q", r.URL.Path, syncPath)
		}
		checkHandshake(t, r, ticket)

		var announce announceMessage
		if err := conn.ReadJSON(&announce); err != nil {
			t.Errorf("read announcement: %v", err)
			return
		}
		full := announce.UpdateFullState
		if !full.Device.IsShadow {
			t.Error("announcement device is not a shadow device")
		}
		if full.IsCurrentlyActive {
			t.Error("announcement claims to be currently active")
		}
		if len(full.PlayerState.PlayerQueue.PlayableList) != 0 {
			t.Error("announcement queue is not empty")
		}
		if !full.PlayerState.Status.Paused {
			t.Error("announcement status is not paused")
		}
		if full.PlayerState.PlayerQueue.Version.Version != queueVersion {
			t.Errorf("queue version = %d", full.PlayerState.PlayerQueue.Version.Version)
		}
		if full.PlayerState.Status.Version.Version != statusVersion {
			t.Errorf("status version = %d", full.PlayerState.Status.Version.Version)
		}
		if announce.Rid == "" {
			t.Error("announcement has no rid")
		}
		if announce.ActivityInterception != activityNoIntercept {
			t.Errorf("activity interception = %q", announce.ActivityInterception)
		}

		if err := conn.WriteJSON(snapshot); err != nil {
			t.Errorf("write snapshot: %v", err)
		}
		// Hold the socket open; the client closes after its single receive.
		conn.ReadMessage()
	})
}

// redirector mocks the negotiation endpoint with a fixed response payload.
func redirector(t *testing.T, payload any) *httptest.Server {
	t.Helper()
	return wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		checkHandshake(t, r, "")
		if err := conn.WriteJSON(payload); err != nil {
			t.Errorf("write redirect: %v", err)
		}
		conn.ReadMessage()
	})
}

func testResolver(t *testing.T, cat Catalog, redirectorURL string) *Resolver {
	t.Helper()
	r := New(cat, Options{
		ConnectTimeout:   2 * time.Second,
		NegotiateTimeout: 2 * time.Second,
		ReceiveTimeout:   2 * time.Second,
	})
	r.redirector = redirectorURL
	r.syncScheme = "ws"
	return r
}

func playingSnapshot(index int, ids ...string) map[string]any {
	playables := make([]map[string]any, len(ids))
	for i, id := range ids {
		playables[i] = map[string]any{"playable_id": id, "title": "ignored"}
	}
	return map[string]any{
		"player_state": map[string]any{
			"player_queue": map[string]any{
				"current_playable_index": index,
				"entity_id":              "playlist-1",
				"entity_type":            "PLAYLIST",
				"playable_list":          playables,
				"options":                map[string]any{"repeat_mode": "NONE"},
			},
			"status": map[string]any{
				"paused":      false,
				"duration_ms": 200000,
				"progress_ms": 15000,
			},
		},
		// Unknown fields must be tolerated.
		"timestamp_ms": 123456,
	}
}

func TestResolveEndToEnd(t *testing.T) {
	cat := &fakeCatalog{
		track: catalog.TrackInfo{
			ID: "trackXYZ", Title: "Song", Artists: []string{"Artist"}, DurationMs: 200000,
		},
		variants: []catalog.Variant{{Codec: "mp3", BitrateKbps: 320, InfoURL: "info"}},
		url:      "https://cdn.example/get-mp3/deadbeef/1/song.mp3",
	}

	var dialed atomic.Int32
	sync := syncHost(t, "abc", playingSnapshot(0, "trackXYZ"), &dialed)
	redir := redirector(t, map[string]string{"redirect_ticket": "abc", "host": hostOf(sync)})

	res := testResolver(t, cat, wsURL(redir)).Resolve(context.Background(), testToken)

	if res.Status != StatusPlaying {
		t.Fatalf("status = %v (err=%v detail=%q)", res.Status, res.Err, res.Detail)
	}
	if res.Track.Title != "Song" || res.Track.Artists[0] != "Artist" {
		t.Errorf("track = %+v", res.Track)
	}
	if res.Track.URL != cat.url {
		t.Errorf("url = %q", res.Track.URL)
	}
	if res.Track.DurationMs != 200000 || res.DurationMs != 200000 {
		t.Errorf("durations = %d / %d", res.Track.DurationMs, res.DurationMs)
	}
	if res.ProgressMs != 15000 {
		t.Errorf("progress = %d", res.ProgressMs)
	}
	if res.Paused {
		t.Error("paused = true")
	}
	if dialed.Load() != 1 {
		t.Errorf("sync host dialed %d times", dialed.Load())
	}
}

func TestResolveNotPlaying(t *testing.T) {
	sync := syncHost(t, "abc", playingSnapshot(-1), nil)
	redir := redirector(t, map[string]string{"redirect_ticket": "abc", "host": hostOf(sync)})

	res := testResolver(t, &fakeCatalog{}, wsURL(redir)).Resolve(context.Background(), testToken)

	if res.Status != StatusNotPlaying {
		t.Fatalf("status = %v (err=%v detail=%q), want NotPlaying", res.Status, res.Err, res.Detail)
	}
}

func TestResolveIndexOutOfRange(t *testing.T) {
	sync := syncHost(t, "abc", playingSnapshot(5, "only-one"), nil)
	redir := redirector(t, map[string]string{"redirect_ticket": "abc", "host": hostOf(sync)})

	res := testResolver(t, &fakeCatalog{}, wsURL(redir)).Resolve(context.Background(), testToken)

	if res.Status != StatusFailed || res.Err != ErrProtocolViolation {
		t.Fatalf("status = %v err = %v, want ProtocolViolation", res.Status, res.Err)
	}
}

func TestResolveIncompleteRedirect(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]string
	}{
		{name: "missing ticket", payload: map[string]string{"host": "sync.example"}},
		{name: "missing host", payload: map[string]string{"redirect_ticket": "abc"}},
		{name: "empty object", payload: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dialed atomic.Int32
			sync := syncHost(t, "abc", playingSnapshot(-1), &dialed)
			payload := tt.payload
			if _, ok := payload["host"]; ok {
				payload["host"] = hostOf(sync)
			}
			redir := redirector(t, payload)

			res := testResolver(t, &fakeCatalog{}, wsURL(redir)).Resolve(context.Background(), testToken)

			if res.Status != StatusFailed || res.Err != ErrProtocolViolation {
				t.Fatalf("status = %v err = %v, want ProtocolViolation", res.Status, res.Err)
			}
			if dialed.Load() != 0 {
				t.Errorf("sync host dialed %d times after failed negotiation", dialed.Load())
			}
		})
	}
}

func TestResolveVariantFallback(t *testing.T) {
	cat := &fakeCatalog{
		track:    catalog.TrackInfo{ID: "t1", Title: "Song", Artists: []string{"Artist"}, DurationMs: 1000},
		variants: []catalog.Variant{{Codec: "mp3", BitrateKbps: 192, InfoURL: "info"}},
		url:      "https://cdn.example/low.mp3",
	}

	sync := syncHost(t, "abc", playingSnapshot(0, "t1"), nil)
	redir := redirector(t, map[string]string{"redirect_ticket": "abc", "host": hostOf(sync)})

	res := testResolver(t, cat, wsURL(redir)).Resolve(context.Background(), testToken)

	if res.Status != StatusPlaying {
		t.Fatalf("status = %v (err=%v detail=%q)", res.Status, res.Err, res.Detail)
	}
	if res.Track.BitrateKbps != 192 {
		t.Errorf("bitrate = %d, want fallback 192", res.Track.BitrateKbps)
	}
}

func TestResolveNoPlayableVariant(t *testing.T) {
	sync := syncHost(t, "abc", playingSnapshot(0, "t1"), nil)
	redir := redirector(t, map[string]string{"redirect_ticket": "abc", "host": hostOf(sync)})

	res := testResolver(t, &fakeCatalog{}, wsURL(redir)).Resolve(context.Background(), testToken)

	if res.Status != StatusFailed || res.Err != ErrNoPlayableVariant {
		t.Fatalf("status = %v err = %v, want NoPlayableVariant", res.Status, res.Err)
	}
}

func TestResolveCatalogErrorIsUpstream(t *testing.T) {
	cat := &fakeCatalog{variantsErr: errors.New("boom")}

	sync := syncHost(t, "abc", playingSnapshot(0, "t1"), nil)
	redir := redirector(t, map[string]string{"redirect_ticket": "abc", "host": hostOf(sync)})

	res := testResolver(t, cat, wsURL(redir)).Resolve(context.Background(), testToken)

	if res.Status != StatusFailed || res.Err != ErrUpstream {
		t.Fatalf("status = %v err = %v, want UpstreamError", res.Status, res.Err)
	}
}

func TestNegotiationTimeout(t *testing.T) {
	released := make(chan struct{})
	// Upgrades but never answers; the client must give up on its own.
	redir := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage() // returns once the client closes its socket
		close(released)
	})

	r := New(&fakeCatalog{}, Options{
		ConnectTimeout:   time.Second,
		NegotiateTimeout: 300 * time.Millisecond,
		ReceiveTimeout:   300 * time.Millisecond,
	})
	r.redirector = wsURL(redir)
	r.syncScheme = "ws"

	start := time.Now()
	res := r.Resolve(context.Background(), testToken)
	elapsed := time.Since(start)

	if res.Status != StatusFailed || res.Err != ErrTimeout {
		t.Fatalf("status = %v err = %v, want Timeout", res.Status, res.Err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("timed out after %v, well past the 300ms bound", elapsed)
	}
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Error("redirector socket was not closed after the timeout")
	}
}

func TestSnapshotTimeout(t *testing.T) {
	// Sync host reads the announcement but never sends the snapshot.
	sync := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage()
		conn.ReadMessage()
	})
	redir := redirector(t, map[string]string{"redirect_ticket": "abc", "host": hostOf(sync)})

	r := New(&fakeCatalog{}, Options{
		ConnectTimeout:   time.Second,
		NegotiateTimeout: 2 * time.Second,
		ReceiveTimeout:   300 * time.Millisecond,
	})
	r.redirector = wsURL(redir)
	r.syncScheme = "ws"

	res := r.Resolve(context.Background(), testToken)

	if res.Status != StatusFailed || res.Err != ErrTimeout {
		t.Fatalf("status = %v err = %v, want Timeout", res.Status, res.Err)
	}
}

func TestResolveMalformedRedirectPayload(t *testing.T) {
	redir := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.ReadMessage()
	})

	res := testResolver(t, &fakeCatalog{}, wsURL(redir)).Resolve(context.Background(), testToken)

	if res.Status != StatusFailed || res.Err != ErrProtocolViolation {
		t.Fatalf("status = %v err = %v, want ProtocolViolation", res.Status, res.Err)
	}
}

func TestConcurrentResolutions(t *testing.T) {
	cat := &fakeCatalog{
		track:    catalog.TrackInfo{ID: "t1", Title: "Song", Artists: []string{"Artist"}, DurationMs: 1000},
		variants: []catalog.Variant{{Codec: "mp3", BitrateKbps: 320, InfoURL: "info"}},
		url:      "https://cdn.example/song.mp3",
	}
	sync := syncHost(t, "abc", playingSnapshot(0, "t1"), nil)
	redir := redirector(t, map[string]string{"redirect_ticket": "abc", "host": hostOf(sync)})

	r := New(cat, Options{
		ConnectTimeout:   2 * time.Second,
		NegotiateTimeout: 2 * time.Second,
		ReceiveTimeout:   2 * time.Second,
		MaxConcurrent:    2,
	})
	r.redirector = wsURL(redir)
	r.syncScheme = "ws"

	const calls = 8
	results := make(chan OperationResult, calls)
	for i := 0; i < calls; i++ {
		go func() { results <- r.Resolve(context.Background(), testToken) }()
	}
	for i := 0; i < calls; i++ {
		select {
		case res := <-results:
			if res.Status != StatusPlaying {
				t.Errorf("call %d: status = %v (err=%v detail=%q)", i, res.Status, res.Err, res.Detail)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("resolutions deadlocked under the concurrency limit")
		}
	}
}

func TestOutcomeKindStrings(t *testing.T) {
	for kind, want := range map[ErrorKind]string{
		ErrTimeout:           "timeout",
		ErrProtocolViolation: "protocol_violation",
		ErrNoPlayableVariant: "no_playable_variant",
		ErrUpstream:          "upstream_error",
	} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
	f := failf(ErrTimeout, "step %s", "x")
	if f.Error() != "timeout: step x" {
		t.Errorf("failure.Error() = %q", f.Error())
	}
}

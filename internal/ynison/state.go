package ynison

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const syncPath = "/ynison_state.YnisonStateService/PutYnisonState"

// synchronize joins the session on the host named in the ticket as a shadow
// device, sends the one mandatory state announcement, and reads back the
// session's authoritative snapshot. This is a one-shot read, not a streaming
// subscription; the socket is closed unconditionally after the receive.
func (r *Resolver) synchronize(ctx context.Context, token string, dev DeviceDescriptor, tk RedirectTicket) (PlaybackSnapshot, *failure) {
	proto, err := dev.protocolHeader(tk.Ticket)
	if err != nil {
		return PlaybackSnapshot{}, failf(ErrProtocolViolation, "encode protocol header: %v", err)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: r.opts.ConnectTimeout}
	conn, resp, err := dialer.DialContext(ctx, r.syncScheme+"://"+tk.Host+syncPath, wsHeaders(token, proto))
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if isTimeout(err) {
			return PlaybackSnapshot{}, failf(ErrTimeout, "sync host dial timed out")
		}
		return PlaybackSnapshot{}, failf(ErrUpstream, "sync host dial: %v", err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(r.opts.ReceiveTimeout))
	if err := conn.WriteJSON(shadowAnnouncement(dev, uuid.NewString())); err != nil {
		if isTimeout(err) {
			return PlaybackSnapshot{}, failf(ErrTimeout, "state announcement timed out")
		}
		return PlaybackSnapshot{}, failf(ErrUpstream, "state announcement: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(r.opts.ReceiveTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		// The contract treats any failure to observe the snapshot within the
		// wait bound as a timeout, socket errors included.
		return PlaybackSnapshot{}, failf(ErrTimeout, "no snapshot within wait bound: %v", err)
	}

	var msg snapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return PlaybackSnapshot{}, failf(ErrProtocolViolation, "snapshot payload: %v", err)
	}
	return msg.snapshot(), nil
}

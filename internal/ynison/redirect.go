package ynison

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	redirectorURL = "wss://ynison.music.yandex.ru/redirector.YnisonRedirectService/GetRedirectToYnison"
	originHeader  = "http://music.yandex.ru"
)

// wsHeaders builds the handshake headers both sockets require. The token is
// a bearer secret and must never end up in logs; it lives only in this header.
func wsHeaders(token, proto string) http.Header {
	h := http.Header{}
	h.Set("Sec-WebSocket-Protocol", proto)
	h.Set("Origin", originHeader)
	h.Set("Authorization", "OAuth "+token)
	return h
}

// isTimeout reports whether err is a deadline-style failure (context or
// net-level) rather than a hard transport error.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// negotiate opens the short-lived redirector socket, announces the device and
// performs exactly one receive. The connection is closed before returning;
// synchronization always opens a fresh socket to the host in the ticket.
func (r *Resolver) negotiate(ctx context.Context, token string, dev DeviceDescriptor) (RedirectTicket, *failure) {
	proto, err := dev.protocolHeader("")
	if err != nil {
		return RedirectTicket{}, failf(ErrProtocolViolation, "encode protocol header: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.NegotiateTimeout)
	defer cancel()

	dialer := &websocket.Dialer{HandshakeTimeout: r.opts.ConnectTimeout}
	conn, resp, err := dialer.DialContext(ctx, r.redirector, wsHeaders(token, proto))
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if isTimeout(err) {
			return RedirectTicket{}, failf(ErrTimeout, "redirector dial timed out")
		}
		return RedirectTicket{}, failf(ErrUpstream, "redirector dial: %v", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(r.opts.ReceiveTimeout))
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			return RedirectTicket{}, failf(ErrTimeout, "redirector receive timed out")
		}
		return RedirectTicket{}, failf(ErrUpstream, "redirector receive: %v", err)
	}

	var rr redirectResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return RedirectTicket{}, failf(ErrProtocolViolation, "redirector payload: %v", err)
	}
	if rr.RedirectTicket == "" || rr.Host == "" {
		return RedirectTicket{}, failf(ErrProtocolViolation, "redirector payload missing redirect_ticket or host")
	}
	return RedirectTicket{Ticket: rr.RedirectTicket, Host: rr.Host}, nil
}

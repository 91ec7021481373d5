// Copyright (c) 2025 Bob Vawter (bob@vawter.org)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// SPDX-License-Identifier: MIT

package proxy

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"vawter.tech/stopper"
)

// dialTimeout bounds each connection attempt toward the upstream
// service.
const dialTimeout = 5 * time.Second

// listener services one gate: it accepts connections on an
// already-bound socket and relays each of them to the upstream address.
// It runs within a nested stopper context owned by the registry entry,
// so stopping the entry aborts the accept loop and any in-flight
// relays.
type listener struct {
	port       int
	remoteAddr string
	tcp        net.Listener

	// closed evicts this listener's registry entry. Invoked exactly
	// once, after the accept loop has exited for any reason.
	closed func(port int)
}

func (l *listener) run(ctx *stopper.Context) error {
	logger := slog.With(
		slog.String("gate", l.tcp.Addr().String()),
		slog.String("upstream", l.remoteAddr))

	// Unblock Accept when the listener's context stops.
	ctx.Go(func(ctx *stopper.Context) error {
		<-ctx.Stopping()
		_ = l.tcp.Close()
		return nil
	})

	for {
		conn, err := l.tcp.Accept()
		if err != nil {
			logger.DebugContext(ctx, "no longer accepting connections")
			break
		}
		connectionsTotal.WithLabelValues(strconv.Itoa(l.port)).Inc()
		l.serve(ctx, logger, conn.(*net.TCPConn))
	}

	l.closed(l.port)
	return nil
}

// serve relays a single accepted connection. An unreachable upstream
// closes the inbound connection and leaves the gate accepting; a relay
// error is logged and contained.
func (l *listener) serve(ctx *stopper.Context, logger *slog.Logger, in *net.TCPConn) {
	ctx.Go(func(ctx *stopper.Context) error {
		defer func() { _ = in.Close() }()

		out, err := net.DialTimeout("tcp", l.remoteAddr, dialTimeout)
		if err != nil {
			upstreamErrors.WithLabelValues(strconv.Itoa(l.port)).Inc()
			logger.DebugContext(ctx, "could not reach upstream", slog.Any("error", err))
			return nil
		}
		defer func() { _ = out.Close() }()

		// Interrupt the relay's copy loops if the listener stops while
		// the connection is live.
		done := make(chan struct{})
		defer close(done)
		ctx.Go(func(ctx *stopper.Context) error {
			select {
			case <-ctx.Stopping():
				_ = in.Close()
				_ = out.Close()
			case <-done:
			}
			return nil
		})

		if err := relay(in, out.(*net.TCPConn)); err != nil {
			logger.DebugContext(ctx, "relay ended with error", slog.Any("error", err))
		}
		return nil
	})
}

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

	"vawter.tech/stopper"
)

// entry is the registry's record of one live gate: the bound socket,
// the upstream address, and the nested context supervising the
// listener and its relays.
type entry struct {
	remoteAddr string
	tcp        net.Listener
	tasks      *stopper.Context
}

// close releases the gate's port and aborts its tasks. The socket is
// closed directly so the port is rebindable as soon as the registry has
// processed the removal, rather than when the tasks get around to it.
func (e *entry) close() {
	_ = e.tcp.Close()
	e.tasks.Stop(stopGrace)
}

// run is the registry actor: a single task that owns the port map and
// processes control requests strictly in arrival order. No other
// component touches the map.
func (m *Manager) run(ctx *stopper.Context) error {
	entries := make(map[int]*entry)

	m.ready.Set(true)
	defer func() {
		m.ready.Set(false)
		close(m.done)
	}()

	for {
		switch t := (<-m.requests).(type) {
		case *statusRequest:
			handleStatus(entries, t)
		case *createRequest:
			m.handleCreate(ctx, entries, false, t)
		case *deleteRequest:
			m.handleDelete(entries, t)
		case *terminateRequest:
			// Drop every gate before advertising shutdown; readiness
			// transitions to false only once the map is empty.
			for port := range entries {
				m.remove(entries, port)
			}
			for {
				select {
				case req := <-m.requests:
					// Already-queued requests drain; late creates are
					// refused.
					switch t := req.(type) {
					case *statusRequest:
						handleStatus(entries, t)
					case *createRequest:
						m.handleCreate(ctx, entries, true, t)
					case *deleteRequest:
						m.handleDelete(entries, t)
					case *terminateRequest:
					}
				default:
					return nil
				}
			}
		}
	}
}

func handleStatus(entries map[int]*entry, req *statusRequest) {
	if _, ok := entries[req.port]; ok {
		reply(req.reply, nil)
	} else {
		reply(req.reply, ErrProxyNotReady)
	}
}

// handleCreate binds the gate socket before inserting the entry, so a
// successful reply means the port is live and a bind error reaches the
// caller unchanged.
func (m *Manager) handleCreate(ctx *stopper.Context, entries map[int]*entry, terminating bool, req *createRequest) {
	if terminating {
		reply(req.reply, ErrTerminating)
		return
	}
	if _, ok := entries[req.port]; ok {
		reply(req.reply, ErrPortInUse)
		return
	}

	tcp, err := net.Listen("tcp", net.JoinHostPort(req.host, strconv.Itoa(req.port)))
	if err != nil {
		reply(req.reply, err)
		return
	}

	tasks := stopper.WithContext(ctx)
	entries[req.port] = &entry{
		remoteAddr: req.remoteAddr,
		tcp:        tcp,
		tasks:      tasks,
	}
	proxiesActive.Inc()

	l := &listener{
		port:       req.port,
		remoteAddr: req.remoteAddr,
		tcp:        tcp,
		closed:     m.selfDelete,
	}
	tasks.Go(l.run)

	slog.DebugContext(ctx, "gate open",
		slog.Any("address", tcp.Addr()),
		slog.String("upstream", req.remoteAddr))
	reply(req.reply, nil)
}

// handleDelete is idempotent: removing an absent port still replies Ok.
func (m *Manager) handleDelete(entries map[int]*entry, req *deleteRequest) {
	m.remove(entries, req.port)
	reply(req.reply, nil)
}

func (m *Manager) remove(entries map[int]*entry, port int) {
	e, ok := entries[port]
	if !ok {
		return
	}
	e.close()
	delete(entries, port)
	proxiesActive.Dec()
}

// selfDelete is invoked by a listener whose accept loop has exited. The
// eviction travels through the same queue as every other mutation; if
// the registry is already gone there is nothing left to clean up.
func (m *Manager) selfDelete(port int) {
	select {
	case m.requests <- &deleteRequest{port: port}:
	case <-m.done:
	}
}

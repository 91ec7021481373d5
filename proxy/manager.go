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

// Package proxy maintains a dynamic set of listening TCP gates, each of
// which relays its connections to a remote service address.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vawter.tech/notify"
	"vawter.tech/stopper"
)

const (
	// queueDepth bounds the control channel; callers experience
	// back-pressure rather than unbounded buffering.
	queueDepth = 8

	// requestTimeout bounds each control request's wait for a reply.
	requestTimeout = 5 * time.Second

	// drainGrace bounds the shutdown handshake in Close.
	drainGrace = 3 * time.Second

	// stopGrace is how long stopped tasks get to unwind.
	stopGrace = time.Second
)

// Manager is the public face of the gate registry. All mutation happens
// inside a single registry task; the Manager's methods only exchange
// messages with it, so a Manager may be shared freely across
// goroutines.
type Manager struct {
	requests chan request
	done     chan struct{} // Closed when the registry task has exited.
	ready    notify.Var[bool]
	tasks    *stopper.Context

	closeOnce sync.Once
}

// NewManager starts the registry task within the given context. The
// returned Manager closes itself when the context stops; callers that
// finish earlier should call Close directly.
func NewManager(ctx *stopper.Context) *Manager {
	m := &Manager{
		requests: make(chan request, queueDepth),
		done:     make(chan struct{}),
	}
	m.tasks = stopper.WithContext(ctx)
	m.tasks.Go(m.run)

	ctx.Go(func(ctx *stopper.Context) error {
		select {
		case <-ctx.Stopping():
			m.Close()
		case <-m.done:
		}
		return nil
	})

	return m
}

// IsReady reports whether the registry loop is currently receiving.
func (m *Manager) IsReady() bool {
	ready, _ := m.ready.Get()
	return ready
}

// WaitUntilReady blocks until readiness has been observed true at least
// once. A later transition back to false does not retract a satisfied
// wait. Callers bound the wait through the context.
func (m *Manager) WaitUntilReady(ctx context.Context) error {
	for {
		ready, changed := m.ready.Get()
		if ready {
			return nil
		}
		select {
		case <-changed:
		case <-m.done:
			return ErrManagerClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ProxyReady reports whether a gate is currently registered on the
// port. Any control-channel failure reads as false.
func (m *Manager) ProxyReady(ctx context.Context, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	ch := make(chan error, 1)
	if err := m.send(ctx, &statusRequest{port: port, reply: ch}); err != nil {
		return false
	}
	return m.await(ctx, ch) == nil
}

// CreateProxy registers a gate on host:port relaying to remoteAddr. A
// nil return means the listening socket is bound and accepting. The
// error is ErrPortInUse for an occupied port, ErrTerminating during
// shutdown, the unwrapped bind error from the operating system,
// ErrTimeout or ErrManagerClosed when the registry does not answer, or
// a range error for a port outside 1–65535.
func (m *Manager) CreateProxy(ctx context.Context, host string, port int, remoteAddr string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d outside the TCP port range", port)
	}

	sendCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	ch := make(chan error, 1)
	err := m.send(sendCtx, &createRequest{
		host:       host,
		port:       port,
		remoteAddr: remoteAddr,
		reply:      ch,
	})
	if err == nil {
		err = m.await(sendCtx, ch)
	}

	if err != nil && !errors.Is(err, ErrPortInUse) {
		// A timed-out create may still have registered the port; evict
		// it rather than leak a listener nobody acknowledged.
		delCtx, cancelDel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancelDel()
		_ = m.DeleteProxy(delCtx, port)
	}
	return err
}

// DeleteProxy removes the gate on the port, releasing the socket and
// aborting its relays. Deleting an unknown port is not an error.
func (m *Manager) DeleteProxy(ctx context.Context, port int) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	ch := make(chan error, 1)
	if err := m.send(ctx, &deleteRequest{port: port, reply: ch}); err != nil {
		return err
	}
	return m.await(ctx, ch)
}

// Close shuts the registry down: a best-effort terminate request, a
// bounded wait for readiness to fall, then an unconditional stop of the
// registry's tasks as a final safety net. All gate sockets are released
// before Close returns in the ordinary case. Close may be called more
// than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		timer := time.NewTimer(drainGrace)
		defer timer.Stop()
		select {
		case m.requests <- &terminateRequest{}:
		case <-m.done:
		case <-timer.C:
		}

		wait := time.After(drainGrace)
	drain:
		for {
			ready, changed := m.ready.Get()
			if !ready {
				break drain
			}
			select {
			case <-changed:
			case <-wait:
				break drain
			}
		}

		m.tasks.Stop(stopGrace)
	})
}

func (m *Manager) send(ctx context.Context, req request) error {
	select {
	case m.requests <- req:
		return nil
	case <-m.done:
		return ErrManagerClosed
	case <-ctx.Done():
		return deadlineErr(ctx)
	}
}

func (m *Manager) await(ctx context.Context, ch chan error) error {
	select {
	case err := <-ch:
		return err
	case <-m.done:
		// The registry may have answered just before exiting.
		select {
		case err := <-ch:
			return err
		default:
			return ErrManagerClosed
		}
	case <-ctx.Done():
		return deadlineErr(ctx)
	}
}

func deadlineErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

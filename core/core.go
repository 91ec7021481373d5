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

// Package core converts remote services into local ones: it keeps the
// durable Service and Gate records in sync with the in-memory proxy
// registry that actually binds the sockets.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vawter.tech/porter/proxy"
	"vawter.tech/porter/store"
)

// startupGrace bounds the wait for the proxy registry at construction.
const startupGrace = 3 * time.Second

// GateStatus is a gate record decorated with the live state of its
// proxy. The registry is in-memory, so Ready reflects this process
// only.
type GateStatus struct {
	*store.Gate
	Ready bool
}

// Porter owns the durable records and the proxy registry. The registry
// does not survive restarts; New rebuilds it from the store.
type Porter struct {
	proxies *proxy.Manager
	store   *store.Store
}

// New waits for the proxy registry to come up, then opens a gate for
// every live record in the store. A gate that cannot be opened (its
// port may be held by another process) is logged and skipped; its
// status surfaces as not ready.
func New(ctx context.Context, st *store.Store, proxies *proxy.Manager) (*Porter, error) {
	waitCtx, cancel := context.WithTimeout(ctx, startupGrace)
	defer cancel()
	if err := proxies.WaitUntilReady(waitCtx); err != nil {
		return nil, fmt.Errorf("proxy registry did not start: %w", err)
	}

	p := &Porter{proxies: proxies, store: st}

	bindings, err := st.Bindings(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		if err := proxies.CreateProxy(ctx, b.Gate.Host, b.Gate.Port, b.RemoteAddr); err != nil {
			slog.ErrorContext(ctx, "could not reopen gate",
				slog.Int64("gate", b.Gate.ID),
				slog.Int("port", b.Gate.Port),
				slog.Any("error", err))
		}
	}
	return p, nil
}

// Ready reports whether the proxy registry is serving.
func (p *Porter) Ready() bool {
	return p.proxies.IsReady()
}

// Services lists all live services.
func (p *Porter) Services(ctx context.Context) ([]*store.Service, error) {
	return p.store.Services(ctx)
}

// Service returns one live service.
func (p *Porter) Service(ctx context.Context, id int64) (*store.Service, error) {
	return p.store.Service(ctx, id)
}

// CreateService records a new remote service.
func (p *Porter) CreateService(ctx context.Context, host string, port int) (*store.Service, error) {
	return p.store.CreateService(ctx, host, port)
}

// UpdateService applies the non-nil fields to a service. Gates keep
// relaying to the address they were opened with until they are updated
// themselves.
func (p *Porter) UpdateService(ctx context.Context, id int64, host *string, port *int) (*store.Service, error) {
	return p.store.UpdateService(ctx, id, host, port)
}

// DeleteService soft-deletes a service. It refuses while live gates
// still reference the service.
func (p *Porter) DeleteService(ctx context.Context, id int64) error {
	gates, err := p.store.GatesForService(ctx, id)
	if err != nil {
		return err
	}
	if len(gates) > 0 {
		return fmt.Errorf("service %d still has %d gates", id, len(gates))
	}
	return p.store.DeleteService(ctx, id)
}

// Gates lists all live gates with their proxy status.
func (p *Porter) Gates(ctx context.Context) ([]*GateStatus, error) {
	gates, err := p.store.Gates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*GateStatus, len(gates))
	for i, g := range gates {
		out[i] = &GateStatus{Gate: g, Ready: p.proxies.ProxyReady(ctx, g.Port)}
	}
	return out, nil
}

// Gate returns one live gate with its proxy status.
func (p *Porter) Gate(ctx context.Context, id int64) (*GateStatus, error) {
	g, err := p.store.Gate(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GateStatus{Gate: g, Ready: p.proxies.ProxyReady(ctx, g.Port)}, nil
}

// CreateGate records a new gate and opens its proxy. If the proxy
// cannot be opened the record is rolled back, so a successful return
// means the local port is bound.
func (p *Porter) CreateGate(ctx context.Context, serviceID int64, host string, port int) (*GateStatus, error) {
	svc, err := p.store.Service(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	g, err := p.store.CreateGate(ctx, serviceID, host, port)
	if err != nil {
		return nil, err
	}
	if err := p.proxies.CreateProxy(ctx, host, port, svc.Addr()); err != nil {
		if delErr := p.store.DeleteGate(ctx, g.ID); delErr != nil {
			slog.ErrorContext(ctx, "could not roll back gate record",
				slog.Int64("gate", g.ID), slog.Any("error", delErr))
		}
		return nil, err
	}
	return &GateStatus{Gate: g, Ready: true}, nil
}

// UpdateGate applies the non-nil fields to a gate, closes the old proxy
// and opens one for the new binding.
func (p *Porter) UpdateGate(ctx context.Context, id int64, serviceID *int64, host *string, port *int) (*GateStatus, error) {
	old, err := p.store.Gate(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := p.store.UpdateGate(ctx, id, serviceID, host, port)
	if err != nil {
		return nil, err
	}
	svc, err := p.store.Service(ctx, g.ServiceID)
	if err != nil {
		return nil, err
	}

	if err := p.proxies.DeleteProxy(ctx, old.Port); err != nil {
		return nil, err
	}
	if err := p.proxies.CreateProxy(ctx, g.Host, g.Port, svc.Addr()); err != nil {
		return nil, err
	}
	return &GateStatus{Gate: g, Ready: true}, nil
}

// DeleteGate closes the gate's proxy and soft-deletes its record. A
// missing record after a successful proxy deletion is reported; a
// missing proxy is not, since deletion is idempotent.
func (p *Porter) DeleteGate(ctx context.Context, id int64) error {
	g, err := p.store.Gate(ctx, id)
	if err != nil {
		return err
	}
	if err := p.proxies.DeleteProxy(ctx, g.Port); err != nil &&
		!errors.Is(err, proxy.ErrManagerClosed) {
		return err
	}
	return p.store.DeleteGate(ctx, id)
}

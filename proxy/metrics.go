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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// proxiesActive tracks the number of registered proxy listeners.
	proxiesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "porter_proxies_active",
		Help: "Number of registered proxy listeners",
	})

	// connectionsTotal counts connections accepted per gate port.
	connectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "porter_connections_total",
		Help: "Total connections accepted by gate listeners",
	}, []string{"port"})

	// upstreamErrors counts failed dials toward the upstream service.
	upstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "porter_upstream_errors_total",
		Help: "Total failed connection attempts to upstream services",
	}, []string{"port"})

	// relayBytes counts bytes copied through relays, per direction.
	relayBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "porter_relay_bytes_total",
		Help: "Total bytes relayed between clients and upstream services",
	}, []string{"direction"})
)

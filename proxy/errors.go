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

import "errors"

var (
	// ErrManagerClosed indicates that the registry task has exited and
	// no further requests can be serviced. Callers holding a Manager
	// that reports this error should construct a new one.
	ErrManagerClosed = errors.New("proxy manager is no longer running")

	// ErrPortInUse indicates that a proxy is already registered on the
	// requested port.
	ErrPortInUse = errors.New("proxy already started on this port")

	// ErrProxyNotReady indicates that no proxy is registered for the
	// requested port.
	ErrProxyNotReady = errors.New("proxy not ready")

	// ErrTerminating indicates that the manager is shutting down and
	// will not register new proxies.
	ErrTerminating = errors.New("proxy manager is terminating")

	// ErrTimeout indicates that no reply arrived within the request
	// deadline. The request may still be processed; callers should
	// reconcile through ProxyReady.
	ErrTimeout = errors.New("no reply from proxy manager within deadline")
)

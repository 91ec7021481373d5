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

// request is the union of messages carried on the registry's control
// channel. Requests that expect an answer carry a single-use, buffered
// reply channel; the registry never blocks on it.
type request interface {
	isRequest()
}

// statusRequest asks whether a proxy is registered for a port. The
// reply is nil when the port is present and ErrProxyNotReady otherwise.
type statusRequest struct {
	port  int
	reply chan error
}

// createRequest registers a new proxy. The registry binds the listening
// socket before answering, so a nil reply means the port is live.
type createRequest struct {
	host       string
	port       int
	remoteAddr string
	reply      chan error
}

// deleteRequest removes a proxy. A nil reply channel marks a
// self-deletion posted by an exiting listener.
type deleteRequest struct {
	port  int
	reply chan error
}

// terminateRequest begins shutdown. It has no reply; callers observe
// completion through the readiness variable.
type terminateRequest struct{}

func (*statusRequest) isRequest()    {}
func (*createRequest) isRequest()    {}
func (*deleteRequest) isRequest()    {}
func (*terminateRequest) isRequest() {}

// reply delivers an answer without ever blocking the registry loop. The
// channel is buffered by the requester; a requester that has already
// timed out simply never collects the value.
func reply(ch chan<- error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

//go:build !linux

package transport

import "context"

func (t *SocketTransport) Listen(ctx context.Context) (Listener, error) {
	return nil, ErrUnsupported
}

func (t *ProfileTransport) Listen(ctx context.Context) (Listener, error) {
	return nil, ErrUnsupported
}

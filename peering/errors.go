package peering

import "errors"

var (
	ErrPeerNotFound      = errors.New("peering: peer not found")
	ErrStreamNotFound    = errors.New("peering: stream not found")
	ErrStreamClosed      = errors.New("peering: stream is closed")
	ErrStreamFull        = errors.New("peering: stream channel full")
	ErrEmptyTargetPeer   = errors.New("peering: target peer id is required")
)

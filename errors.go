package daqdio

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotImplemented    = errors.New("not implemented")
	ErrNotConfigured     = errors.New("dio controller not configured")
	ErrAlreadyConfigured = errors.New("dio controller already configured")
)

// ConfigurationError is fatal to startup, no channel is exposed after it.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration of %s: %s", e.Field, e.Reason)
}

type DuplicateChannelError struct {
	Name string
}

func (e *DuplicateChannelError) Error() string {
	return fmt.Sprintf("channel %s already registered", e.Name)
}

type UnknownChannelError struct {
	Name string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("channel %s not found", e.Name)
}

type DirectionError struct {
	Name   string
	Access Access
	Op     string
}

func (e *DirectionError) Error() string {
	return fmt.Sprintf("cannot %s channel %s (access: %s)", e.Op, e.Name, e.Access)
}

// PortError carries a driver failure together with the port (and channel, if
// any) it happened on.
type PortError struct {
	Port    PortName
	Channel string
	Op      string
	Err     error
}

func (e *PortError) Error() string {
	if len(e.Channel) > 0 {
		return fmt.Sprintf("%s port %s (channel %s): %v", e.Op, e.Port, e.Channel, e.Err)
	}
	return fmt.Sprintf("%s port %s: %v", e.Op, e.Port, e.Err)
}

func (e *PortError) Cause() error {
	return e.Err
}

func (e *PortError) Unwrap() error {
	return e.Err
}

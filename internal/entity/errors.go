package entity

import "errors"

// Sentinel errors returned by command entry points. Lookup errors are
// reported per device and never abort a batch.
var (
	ErrUnknownScene  = errors.New("unknown scene")
	ErrReservedScene = errors.New("reserved scene name")
	ErrInvalidated   = errors.New("device invalidated")
	ErrNoLiveState   = errors.New("no live state observed")
)

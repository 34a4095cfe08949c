package transform

import (
	"errors"
)

var (
	// ErrTimeout means the run did not reach a terminal state in time.
	ErrTimeout = errors.New("transform timed out")
	// ErrRejected means the backend ended the run as failed, cancelled or expired.
	ErrRejected = errors.New("transform rejected")
	// ErrParse means the completed reply did not match the expected shape.
	ErrParse = errors.New("transform reply malformed")
)

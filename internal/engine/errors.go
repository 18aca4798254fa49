package engine

import "errors"

var errAlreadyRunning = errors.New("engine is already running")

package vacuum

import "errors"

var errAlreadyRunning = errors.New("vacuum: a pass is already running")

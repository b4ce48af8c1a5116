package memorybank

import "time"

// timeNow is a package-level variable for testability.
// Tests replace it to get stable timestamps in entries and backup names.
var timeNow = time.Now

package build

import "github.com/raulk/clock"

// Clock stamps receipts and journal entries. Tests swap in clock.NewMock().
var Clock = clock.New()

package core

import glog "github.com/goliatone/go-logger/glog"

// Compile-time checks that the glog aliases stay interchangeable with the
// upstream contracts.
var (
	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)

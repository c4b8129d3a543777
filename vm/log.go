package vm

import "github.com/tliron/commonlog"

// Per-concern loggers. The host picks a backend and verbosity with
// commonlog.Configure; without one the messages are discarded.
var (
	loaderLog = commonlog.GetLogger("classvm.loader")
	gcLog     = commonlog.GetLogger("classvm.gc")
	interpLog = commonlog.GetLogger("classvm.interp")
	nativeLog = commonlog.GetLogger("classvm.native")
)

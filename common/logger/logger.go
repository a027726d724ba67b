// Package logger exposes the process-wide structured logger. Request-scoped
// logging goes through gin-middlewares (gmw.GetLogger); this logger serves
// startup, shutdown, and background workers.
package logger

import (
	glog "github.com/Laisky/go-utils/v6/log"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
)

// Logger is the shared structured logger.
var Logger glog.Logger

func init() {
	level := glog.LevelInfo
	if config.DebugEnabled {
		level = glog.LevelDebug
	}

	lg, err := glog.NewConsoleWithName("shinway", level)
	if err != nil {
		panic(err)
	}
	Logger = lg
}

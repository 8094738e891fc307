package mnet

import (
	"os"

	"github.com/zbh255/bilog"
)

var (
	logger bilog.Logger = bilog.NewLogger(os.Stdout, bilog.PANIC, bilog.WithTimes(), bilog.WithCaller())
)

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the package logger.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return nopLogger
}

// SetLogger configures the package logger. A nil logger restores the
// no-op default.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

var nopLogger = zap.NewNop()

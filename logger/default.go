package logger

import "sync/atomic"

var defLogger atomic.Pointer[Logger]

func init() {
	SetDefault(NewSlog(InfoLevel, false))
}

// SetDefault replaces the package default logger returned by GetLogger.
// Loggers already handed out by GetLogger or With are not affected.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&l)
}

func def() Logger {
	return *defLogger.Load()
}

func Debug(msg string, keysAndValues ...any) {
	def().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	def().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	def().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	def().Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	def().Fatal(msg, keysAndValues...)
}

func SetLevel(level Level) {
	def().SetLevel(level)
}

func GetLogger() Logger {
	return def()
}

func With(keyValues ...any) Logger {
	return def().With(keyValues...)
}

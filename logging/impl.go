package logging

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level AtomicLevel

	inUTC     bool
	appenders []Appender
}

func (imp *impl) NewLogEntry() zapcore.Entry {
	ret := zapcore.Entry{
		LoggerName: imp.name,
		Time:       time.Now(),
	}
	if imp.inUTC {
		ret.Time = ret.Time.UTC()
	}
	return ret
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}

	// The sublogger starts at its parent's current level and writes to its parent's appenders.
	// Later level changes on either logger do not reach the other.
	return &impl{
		name:      newName,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

// AsZap builds a zap core per appender. Appenders that are already zap cores are used as-is.
func (imp *impl) AsZap() *zap.SugaredLogger {
	var cores []zapcore.Core
	for _, appender := range imp.appenders {
		if core, ok := appender.(zapcore.Core); ok {
			cores = append(cores, core)
			continue
		}
		cores = append(cores, &appenderCore{imp.level, appender})
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar().Named(imp.name)
}

func (imp *impl) Sync() error {
	var errs error
	for _, appender := range imp.appenders {
		errs = multierr.Combine(errs, appender.Sync())
	}
	return errs
}

func (imp *impl) shouldLog(logLevel Level) bool {
	return logLevel >= imp.level.Get()
}

func (imp *impl) log(entry *zapcore.Entry, fields ...zapcore.Field) {
	for _, appender := range imp.appenders {
		//nolint:errcheck
		appender.Write(*entry, fields)
	}
}

// Constructs the log message by forwarding to `fmt.Sprint`.
func (imp *impl) format(logLevel Level, args ...interface{}) *zapcore.Entry {
	logEntry := imp.NewLogEntry()
	logEntry.Level = logLevel.AsZap()
	logEntry.Message = fmt.Sprint(args...)
	logEntry.Caller = getCaller()
	return &logEntry
}

// Constructs the log message by forwarding to `fmt.Sprintf`.
func (imp *impl) formatf(logLevel Level, template string, args ...interface{}) *zapcore.Entry {
	logEntry := imp.NewLogEntry()
	logEntry.Level = logLevel.AsZap()
	logEntry.Message = fmt.Sprintf(template, args...)
	logEntry.Caller = getCaller()
	return &logEntry
}

// Returns the entry along with the key/value pairs turned into zap fields.
func (imp *impl) formatw(logLevel Level, msg string, keysAndValues ...interface{}) (*zapcore.Entry, []zapcore.Field) {
	logEntry := imp.NewLogEntry()
	logEntry.Level = logLevel.AsZap()
	logEntry.Message = msg
	logEntry.Caller = getCaller()

	fields := make([]zapcore.Field, 0, len(keysAndValues)/2)
	for keyIdx := 0; keyIdx < len(keysAndValues); keyIdx += 2 {
		keyObj := keysAndValues[keyIdx]
		keyStr, isString := keyObj.(string)
		if !isString {
			keyStr = fmt.Sprintf("%v", keyObj)
		}

		if keyIdx+1 == len(keysAndValues) {
			// Dangling key with no value.
			fields = append(fields, zap.Any(keyStr, nil))
			break
		}
		fields = append(fields, zap.Any(keyStr, keysAndValues[keyIdx+1]))
	}

	return &logEntry, fields
}

func getCaller() zapcore.EntryCaller {
	// Skip getCaller, the format helper and the public logging method.
	const skip = 3
	pc, file, line, ok := runtime.Caller(skip)
	ret := zapcore.EntryCaller{PC: pc, File: file, Line: line, Defined: ok}
	if fn := runtime.FuncForPC(pc); ok && fn != nil {
		ret.Function = fn.Name()
		if idx := strings.LastIndexByte(ret.Function, '/'); idx >= 0 {
			ret.Function = ret.Function[idx+1:]
		}
	}
	return ret
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.log(imp.format(DEBUG, args...))
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.log(imp.formatf(DEBUG, template, args...))
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(DEBUG) {
		entry, fields := imp.formatw(DEBUG, msg, keysAndValues...)
		imp.log(entry, fields...)
	}
}

func (imp *impl) Info(args ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.log(imp.format(INFO, args...))
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.log(imp.formatf(INFO, template, args...))
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(INFO) {
		entry, fields := imp.formatw(INFO, msg, keysAndValues...)
		imp.log(entry, fields...)
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.log(imp.format(WARN, args...))
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.log(imp.formatf(WARN, template, args...))
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(WARN) {
		entry, fields := imp.formatw(WARN, msg, keysAndValues...)
		imp.log(entry, fields...)
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.log(imp.format(ERROR, args...))
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.log(imp.formatf(ERROR, template, args...))
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(ERROR) {
		entry, fields := imp.formatw(ERROR, msg, keysAndValues...)
		imp.log(entry, fields...)
	}
}

// These Fatal* methods log as errors then exit the process.
func (imp *impl) Fatal(args ...interface{}) {
	imp.log(imp.format(ERROR, args...))
	//nolint:errcheck
	imp.Sync()
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.log(imp.formatf(ERROR, template, args...))
	//nolint:errcheck
	imp.Sync()
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	entry, fields := imp.formatw(ERROR, msg, keysAndValues...)
	imp.log(entry, fields...)
	//nolint:errcheck
	imp.Sync()
	os.Exit(1)
}

// appenderCore adapts an Appender to zapcore.Core for AsZap.
type appenderCore struct {
	level    AtomicLevel
	appender Appender
}

func (c *appenderCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.level.Get().AsZap()
}

func (c *appenderCore) With(fields []zapcore.Field) zapcore.Core {
	return &fieldsCore{c, fields}
}

func (c *appenderCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *appenderCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.appender.Write(entry, fields)
}

func (c *appenderCore) Sync() error {
	return c.appender.Sync()
}

type fieldsCore struct {
	*appenderCore
	fields []zapcore.Field
}

func (c *fieldsCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &fieldsCore{c.appenderCore, merged}
}

func (c *fieldsCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *fieldsCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return c.appenderCore.Write(entry, merged)
}

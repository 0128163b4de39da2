package logger

import (
	"io"
	"os"
	"time"

	"github.com/ttacon/chalk"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	levelToColor = map[zapcore.Level]chalk.Color{
		zapcore.DebugLevel: chalk.Magenta,
		zapcore.InfoLevel:  chalk.Blue,
		zapcore.WarnLevel:  chalk.Yellow,
		zapcore.ErrorLevel: chalk.Red,
		zapcore.PanicLevel: chalk.Red,
		zapcore.FatalLevel: chalk.Red,
	}

	levelToColorString = make(map[zapcore.Level]string, len(levelToColor))

	DefaultLogLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	for level, color := range levelToColor {
		levelToColorString[level] = color.Color(level.CapitalString())
	}
}

type LoggerOptions struct {
	logLevel zapcore.Level
	writer   io.Writer
	color    bool
}

type LoggerOption func(*LoggerOptions)

func (o *LoggerOptions) apply(opts ...LoggerOption) {
	for _, op := range opts {
		op(o)
	}
}

func WithLogLevel(l zapcore.Level) LoggerOption {
	return func(o *LoggerOptions) {
		o.logLevel = l
	}
}

func WithWriter(w io.Writer) LoggerOption {
	return func(o *LoggerOptions) {
		o.writer = w
	}
}

func WithColor(color bool) LoggerOption {
	return func(o *LoggerOptions) {
		o.color = color
	}
}

// New returns a sugared logger configured with the project's default
// encoder. All named loggers in the process should descend from one of
// these via Named/With.
func New(opts ...LoggerOption) *zap.SugaredLogger {
	options := LoggerOptions{
		logLevel: DefaultLogLevel.Level(),
		writer:   os.Stderr,
		color:    true,
	}
	options.apply(opts...)

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "name",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel(options.color),
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.Stamp),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     encodeName(options.color),
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(options.writer),
		zap.NewAtomicLevelAt(options.logLevel),
	)
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).Sugar()
}

// NewNop returns a logger that discards everything. Used as the default
// in components that accept an optional logger.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func encodeLevel(color bool) zapcore.LevelEncoder {
	if !color {
		return zapcore.CapitalLevelEncoder
	}
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if s, ok := levelToColorString[l]; ok {
			enc.AppendString(s)
		} else {
			enc.AppendString(l.CapitalString())
		}
	}
}

func encodeName(color bool) zapcore.NameEncoder {
	return func(name string, enc zapcore.PrimitiveArrayEncoder) {
		if color {
			name = chalk.Dim.TextStyle(name)
		}
		enc.AppendString(name)
	}
}

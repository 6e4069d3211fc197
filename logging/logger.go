// Package logging 提供基于 zerolog 的 client.Logger 实现
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger zerolog 适配器，满足 client.Logger 接口
type Logger struct {
	zl zerolog.Logger
}

// New 创建写入 w 的日志器
//
// level 支持 debug / info / warn / error，无法识别时使用 info。
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewConsole 创建面向终端的人类可读日志器
func NewConsole(w io.Writer, debug bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if debug {
		lvl = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	return &Logger{zl: zerolog.New(out).Level(lvl).With().Timestamp().Logger()}
}

// Nop 返回丢弃所有输出的日志器
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With 返回附带固定字段的子日志器
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{zl: l.zl.With().Fields(pairs(args)).Logger()}
}

// Zerolog 返回底层 zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.zl.Debug().Fields(pairs(args)).Msg(msg)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.zl.Info().Fields(pairs(args)).Msg(msg)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.zl.Warn().Fields(pairs(args)).Msg(msg)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.zl.Error().Fields(pairs(args)).Msg(msg)
}

// pairs 将 key/value 交替参数转换为字段表；落单的值记在 "extra" 下
func pairs(args []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["extra"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, isErr := args[i+1].(error); isErr {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

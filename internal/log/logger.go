package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init 初始化全局 zerolog：dev 环境输出彩色控制台，其余环境输出 JSON。
// file 非空时额外写入按大小滚动的日志文件。
func Init(env, file string) {
	zerolog.TimeFieldFormat = time.RFC3339
	var out io.Writer = os.Stdout
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if file != "" {
		out = zerolog.MultiLevelWriter(out, RotatingFile(file))
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// RotatingFile 返回一个滚动写入 path 的 writer。
func RotatingFile(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
}

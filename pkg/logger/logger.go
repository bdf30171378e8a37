package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger = logrus.StandardLogger()

	currentLogFile string
	fileWriter     *lumberjack.Logger
	logMu          sync.Mutex
)

const timestampFormat = "06-01-02 15:04:05" // yy-mm-dd HH:MM:ss

// Config 日志配置
type Config struct {
	Level      string    // debug, info, warn, error
	OutputFile string    // 可选，为空则只输出到控制台
	MaxSize    int       // 单个日志文件最大大小（MB）
	MaxBackups int       // 保留的旧日志文件数量
	MaxAge     int       // 保留旧日志文件的天数
	Compress   bool      // 是否压缩旧日志文件
	Console    io.Writer // 控制台输出，默认 os.Stdout
}

// Init 初始化全局 logrus：控制台 + 可选的滚动日志文件
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	console := config.Console
	if console == nil {
		console = os.Stdout
	}
	writers := []io.Writer{console}

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
		currentLogFile = ""
	}

	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return err
		}
		fileWriter = &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		writers = append(writers, fileWriter)
		currentLogFile = config.OutputFile
	}

	// 包级 logrus.WithField 创建的 entry 都走全局 logger
	Logger.SetOutput(io.MultiWriter(writers...))
	Logger.SetLevel(level)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		// 写文件时关闭颜色，避免 ANSI 转义码落盘
		ForceColors:   config.OutputFile == "",
		DisableColors: config.OutputFile != "",
	})
	return nil
}

// Close 关闭日志文件
func Close() error {
	logMu.Lock()
	defer logMu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	currentLogFile = ""
	return err
}

// CurrentLogFile 当前日志文件路径（未配置时为空）
func CurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}

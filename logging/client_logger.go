package logging

import "go.uber.org/zap"

// ClientLogger 将 zap 适配为传输层的键值对日志接口
type ClientLogger struct {
	sugar *zap.SugaredLogger
}

// NewClientLogger 创建适配器
func NewClientLogger(l *Logger) *ClientLogger {
	return &ClientLogger{sugar: OrGlobal(l).Sugar()}
}

// Debug 调试日志
func (c *ClientLogger) Debug(msg string, args ...interface{}) {
	c.sugar.Debugw(msg, args...)
}

// Info 信息日志
func (c *ClientLogger) Info(msg string, args ...interface{}) {
	c.sugar.Infow(msg, args...)
}

// Warn 警告日志
func (c *ClientLogger) Warn(msg string, args ...interface{}) {
	c.sugar.Warnw(msg, args...)
}

// Error 错误日志
func (c *ClientLogger) Error(msg string, args ...interface{}) {
	c.sugar.Errorw(msg, args...)
}

package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// phiKeys 评估内容相关字段，任何组件误写入日志时统一打码
var phiKeys = map[string]struct{}{
	"symptoms":           {},
	"trigger_event":      {},
	"location":           {},
	"latitude":           {},
	"longitude":          {},
	"emergency_contacts": {},
	"notes":              {},
	"request_body":       {},
}

// redactCore 包装 zapcore.Core，写入前替换 phiKeys 中的字段
type redactCore struct {
	zapcore.Core
}

// WithRedaction 供 zap.WrapCore 使用
func WithRedaction(core zapcore.Core) zapcore.Core {
	return redactCore{Core: core}
}

func (c redactCore) With(fields []zapcore.Field) zapcore.Core {
	return redactCore{Core: c.Core.With(redactFields(fields))}
}

func (c redactCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c redactCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if _, ok := phiKeys[f.Key]; !ok {
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fields...)
		}
		out[i] = zap.String(f.Key, redacted)
	}
	if out == nil {
		return fields
	}
	return out
}

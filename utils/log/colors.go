package log

import (
	"bytes"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// colorEncoder wraps the stock console encoder so that ANSI escapes embedded
// in field values survive the encoder's escaping.
type colorEncoder struct {
	*zapcore.EncoderConfig
	zapcore.Encoder
}

func newColorEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return colorEncoder{
		EncoderConfig: &cfg,
		Encoder:       zapcore.NewConsoleEncoder(cfg),
	}
}

func (c colorEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buff, err := c.Encoder.EncodeEntry(ent, fields)
	if err != nil {
		return nil, err
	}
	// Undo the JSON escaping of the ESC byte so terminal colors render.
	out := bytes.ReplaceAll(buff.Bytes(), []byte("\\u001b"), []byte("\u001b"))
	buff.Reset()
	buff.AppendString(string(out))
	return buff, nil
}

func (c colorEncoder) Clone() zapcore.Encoder {
	return colorEncoder{
		EncoderConfig: c.EncoderConfig,
		Encoder:       c.Encoder.Clone(),
	}
}

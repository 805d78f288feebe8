package syscall

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Log adds a "Program log:" message. Messages past the log limit are dropped.
func (ctx *ExecutionContext) Log(format string, args ...any) {
	ctx.addLog("Program log: " + fmt.Sprintf(format, args...))
}

// LogData adds a "Program data:" message with each field base64 encoded.
func (ctx *ExecutionContext) LogData(fields ...[]byte) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = base64.StdEncoding.EncodeToString(f)
	}
	ctx.addLog("Program data: " + strings.Join(parts, " "))
}

// ParseLogData decodes the fields of a "Program data:" log line. ok is false
// for any other line.
func ParseLogData(line string) (fields [][]byte, ok bool) {
	rest, found := strings.CutPrefix(line, "Program data: ")
	if !found {
		return nil, false
	}
	for _, part := range strings.Fields(rest) {
		b, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return nil, false
		}
		fields = append(fields, b)
	}
	return fields, true
}

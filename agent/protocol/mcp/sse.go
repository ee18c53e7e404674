package mcp

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// sseEvent 一个 Server-Sent Event
type sseEvent struct {
	Event string
	Data  string
	ID    string
}

// sseReader 按 text/event-stream 格式逐个读取事件
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &sseReader{scanner: scanner}
}

// Next 返回下一个事件；流结束返回 io.EOF
func (r *sseReader) Next() (sseEvent, error) {
	var (
		ev      sseEvent
		data    []string
		pending bool
	)
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if line == "" {
			if pending {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Event = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		case "id":
			ev.ID = value
		}
	}
	if err := r.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	if pending {
		ev.Data = strings.Join(data, "\n")
		return ev, nil
	}
	return sseEvent{}, io.EOF
}

// isSSEBody 判断响应体是否为 SSE 帧格式
func isSSEBody(contentType string, body []byte) bool {
	if strings.Contains(contentType, "text/event-stream") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(trimmed, []byte("event:")) || bytes.HasPrefix(trimmed, []byte("data:"))
}

// sseData 拼接 SSE 帧中所有 data 行
func sseData(body []byte) []byte {
	var parts []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			parts = append(parts, strings.TrimPrefix(value, " "))
		}
	}
	return []byte(strings.Join(parts, "\n"))
}

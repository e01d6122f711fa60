package llm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// decodeFunc turns one payload line into a delta.
// done reports that the provider signalled the end of the completion.
type decodeFunc func(payload []byte) (delta string, done bool, err error)

// lineStream reads a line-oriented streaming body: server-sent events (payload after "data:")
// or newline-delimited JSON.
type lineStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	sse    bool
	decode decodeFunc
	done   bool
	eof    bool
}

func newSSEStream(body io.ReadCloser, decode decodeFunc) *lineStream {
	return &lineStream{body: body, reader: bufio.NewReader(body), sse: true, decode: decode}
}

func newNDJSONStream(body io.ReadCloser, decode decodeFunc) *lineStream {
	return &lineStream{body: body, reader: bufio.NewReader(body), decode: decode}
}

func (s *lineStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		// The body ended before the provider's end marker: the completion is truncated.
		if s.eof {
			return "", fmt.Errorf("read stream: body ended without end marker: %w", io.ErrUnexpectedEOF)
		}
		line, readErr := s.reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return "", fmt.Errorf("read stream: %w", readErr)
		}
		if errors.Is(readErr, io.EOF) {
			s.eof = true
		}

		payload, ok := s.payload(line)
		if !ok {
			continue
		}
		delta, done, err := s.decode(payload)
		if err != nil {
			return "", err
		}
		if done {
			s.done = true
		}
		if delta != "" {
			return delta, nil
		}
	}
}

// payload extracts the JSON payload of a line, reporting false for lines to skip.
func (s *lineStream) payload(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}
	if !s.sse {
		return line, true
	}
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if len(data) == 0 {
		return nil, false
	}
	if bytes.Equal(data, []byte("[DONE]")) {
		s.done = true
		return nil, false
	}
	return data, true
}

func (s *lineStream) Close() error {
	return s.body.Close()
}

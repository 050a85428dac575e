// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chat

import (
	"fmt"
	"io"
)

// ContentType is the media type of WriteSSE output.
const ContentType = "text/event-stream"

type flusher interface {
	Flush()
}

type errFlusher interface {
	Flush() error
}

// FormatEvent renders one event as "event: <type>\ndata: <payload>\n\n".
// Token payloads are written raw.
func FormatEvent(ev Event) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, ev.Data)
}

// WriteSSE writes every event to w in server-sent event framing, flushing after
// each one when w can flush. It returns the stream's error, or the first write
// error. Events are drained to the end either way.
func WriteSSE(w io.Writer, events <-chan Event, errc <-chan error) error {
	var writeErr error
	for ev := range events {
		if writeErr != nil {
			continue
		}
		if _, err := io.WriteString(w, FormatEvent(ev)); err != nil {
			writeErr = fmt.Errorf("write %s event: %w", ev.Type, err)
			continue
		}
		switch f := w.(type) {
		case flusher:
			f.Flush()
		case errFlusher:
			if err := f.Flush(); err != nil {
				writeErr = fmt.Errorf("flush %s event: %w", ev.Type, err)
			}
		}
	}

	if errc == nil {
		return writeErr
	}
	if err := <-errc; err != nil {
		return err
	}
	return writeErr
}

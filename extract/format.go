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

package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a supported document format.
type Format uint8

const (
	FormatText Format = iota + 1
	FormatMarkdown
	FormatPDF
	FormatDOCX
	FormatHTML
)

var formatNames = map[Format]string{
	FormatText:     "text",
	FormatMarkdown: "markdown",
	FormatPDF:      "pdf",
	FormatDOCX:     "docx",
	FormatHTML:     "html",
}

var extensions = map[string]Format{
	".txt":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".html":     FormatHTML,
	".htm":      FormatHTML,
}

// String returns the lower-case name of the format.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Valid reports whether f is one of the declared formats.
func (f Format) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// FormatFromFilename maps a filename to its Format by extension, ignoring case.
func FormatFromFilename(filename string) (Format, error) {
	suffix := strings.ToLower(filepath.Ext(filename))
	if f, ok := extensions[suffix]; ok {
		return f, nil
	}
	if suffix == "" {
		return 0, fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, filename)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, suffix)
}

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
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// Metadata keys set by the PDF extractor.
const (
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
)

// Segment is a contiguous piece of extracted text, typically a page.
type Segment struct {
	Text     string
	Metadata map[string]string
}

// Func is the signature of Extract, so callers can substitute it in tests.
type Func func(ctx context.Context, format Format, content []byte) ([]Segment, error)

var _ Func = Extract

// Extract converts content in the given format into text segments.
// Segments whose text is blank are dropped; if none remain ErrNoText is returned.
func Extract(ctx context.Context, format Format, content []byte) ([]Segment, error) {
	var (
		segments []Segment
		err      error
	)
	switch format {
	case FormatText:
		segments, err = extractText(ctx, content)
	case FormatMarkdown:
		segments, err = extractMarkdown(content)
	case FormatPDF:
		segments, err = extractPDF(ctx, content)
	case FormatDOCX:
		segments, err = extractDOCX(content)
	case FormatHTML:
		segments, err = extractHTML(ctx, content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	kept := segments[:0]
	for _, s := range segments {
		if strings.TrimSpace(s.Text) != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%s: %w", format, ErrNoText)
	}
	return kept, nil
}

// Validate reports content that can never be extracted in format, without
// parsing it. Text formats must be valid UTF-8; container formats are only
// checked by Extract.
func Validate(format Format, content []byte) error {
	switch format {
	case FormatText, FormatMarkdown, FormatHTML:
		return checkUTF8(content)
	case FormatPDF, FormatDOCX:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

func checkUTF8(content []byte) error {
	if !utf8.Valid(content) {
		return ErrInvalidEncoding
	}
	return nil
}

func extractText(ctx context.Context, content []byte) ([]Segment, error) {
	if err := checkUTF8(content); err != nil {
		return nil, err
	}
	docs, err := documentloaders.NewText(bytes.NewReader(content)).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load text: %w", err)
	}
	return fromDocuments(docs), nil
}

func extractHTML(ctx context.Context, content []byte) ([]Segment, error) {
	if err := checkUTF8(content); err != nil {
		return nil, err
	}
	docs, err := documentloaders.NewHTML(bytes.NewReader(content)).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: html: %w", ErrMalformedDocument, err)
	}
	return fromDocuments(docs), nil
}

func extractPDF(ctx context.Context, content []byte) ([]Segment, error) {
	docs, err := documentloaders.NewPDF(bytes.NewReader(content), int64(len(content))).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: %w", ErrMalformedDocument, err)
	}
	return fromDocuments(docs), nil
}

// fromDocuments keeps loader metadata as strings; PDF pages carry page and total_pages.
func fromDocuments(docs []schema.Document) []Segment {
	segments := make([]Segment, 0, len(docs))
	for _, doc := range docs {
		var metadata map[string]string
		if len(doc.Metadata) > 0 {
			metadata = make(map[string]string, len(doc.Metadata))
			for k, v := range doc.Metadata {
				metadata[k] = fmt.Sprint(v)
			}
		}
		segments = append(segments, Segment{Text: doc.PageContent, Metadata: metadata})
	}
	return segments
}

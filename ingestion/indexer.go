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

package ingestion

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/extract"
	"github.com/poiesic/docent/index"
)

// split chunks every segment and numbers the chunks across the whole file.
// Segment metadata (such as the PDF page) is copied to each of its chunks;
// the ownership keys always win over it.
func (p *Pipeline) split(record *core.FileRecord, segments []extract.Segment) ([]string, []map[string]string) {
	var (
		texts     []string
		metadatas []map[string]string
	)
	for _, segment := range segments {
		for _, window := range p.chunker.Split(segment.Text) {
			metadata := maps.Clone(segment.Metadata)
			if metadata == nil {
				metadata = make(map[string]string, 4)
			}
			metadata[core.MetaOwnerID] = record.OwnerId
			metadata[core.MetaFileID] = record.Id
			metadata[core.MetaSource] = record.Filename
			metadata[core.MetaChunkIndex] = strconv.Itoa(len(texts))

			texts = append(texts, window)
			metadatas = append(metadatas, metadata)
		}
	}
	return texts, metadatas
}

// indexSegments writes the chunks of a file to the index in one batch, then
// records one ChunkRecord per returned id in a single ledger transaction.
func (p *Pipeline) indexSegments(ctx context.Context, record *core.FileRecord, segments []extract.Segment) (int, error) {
	texts, metadatas := p.split(record, segments)
	if len(texts) == 0 {
		return 0, ErrNoChunks
	}

	p.logger.Debug("indexing chunks", "file", record.Id, "chunks", len(texts))
	ids, err := p.index.Add(ctx, texts, metadatas)
	if err != nil {
		return 0, fmt.Errorf("index chunks: %w", err)
	}
	if len(ids) != len(texts) {
		return 0, fmt.Errorf("index returned %d ids for %d chunks", len(ids), len(texts))
	}

	chunks := make([]*core.ChunkRecord, len(ids))
	for i, id := range ids {
		chunks[i] = &core.ChunkRecord{
			FileId:           record.Id,
			ChunkIndex:       i,
			ExternalVectorId: id,
		}
	}
	if _, err := p.ledger.AddChunks(ctx, chunks...); err != nil {
		return 0, fmt.Errorf("record chunks: %w", err)
	}
	return len(chunks), nil
}

// discardPrevious removes what an earlier failed attempt left behind.
func (p *Pipeline) discardPrevious(ctx context.Context, record *core.FileRecord) error {
	if err := p.ledger.DeleteChunksByFile(ctx, record.Id); err != nil {
		return fmt.Errorf("discard stale chunk records: %w", err)
	}
	deleter, ok := p.index.(index.Deleter)
	if !ok {
		return nil
	}
	err := deleter.Delete(ctx, index.Filter{
		core.MetaOwnerID: record.OwnerId,
		core.MetaFileID:  record.Id,
	})
	if err != nil {
		return fmt.Errorf("discard stale index entries: %w", err)
	}
	return nil
}

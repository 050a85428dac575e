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

package core

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Binary serializers for the records kept in the embedded store.
// Fields are written in declaration order; times are stored as UTC microseconds.

var (
	FileRecordMUS   mus.Serializer[FileRecord]   = fileRecordMUS{}
	ChunkRecordMUS  mus.Serializer[ChunkRecord]  = chunkRecordMUS{}
	ConversationMUS mus.Serializer[Conversation] = conversationMUS{}
	MessageMUS      mus.Serializer[Message]      = messageMUS{}
	AuditEntryMUS   mus.Serializer[AuditEntry]   = auditEntryMUS{}
	VectorEntryMUS  mus.Serializer[VectorEntry]  = vectorEntryMUS{}
)

var errCorruptLength = errors.New("corrupt length prefix")

// fieldCodec is one step of a struct codec: it reports its size, writes itself
// and reads itself back, advancing the shared offset.
type fieldCodec struct {
	size      func() int
	marshal   func(bs []byte) int
	unmarshal func(bs []byte) (int, error)
}

func sizeFields(fields ...fieldCodec) (size int) {
	for _, f := range fields {
		size += f.size()
	}
	return
}

func marshalFields(bs []byte, fields ...fieldCodec) (n int) {
	for _, f := range fields {
		n += f.marshal(bs[n:])
	}
	return
}

func unmarshalFields(bs []byte, fields ...fieldCodec) (n int, err error) {
	for _, f := range fields {
		var n1 int
		n1, err = f.unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func stringField(v *string) fieldCodec {
	return fieldCodec{
		size:    func() int { return ord.String.Size(*v) },
		marshal: func(bs []byte) int { return ord.String.Marshal(*v, bs) },
		unmarshal: func(bs []byte) (n int, err error) {
			*v, n, err = ord.String.Unmarshal(bs)
			return
		},
	}
}

func intField(v *int) fieldCodec {
	return fieldCodec{
		size:    func() int { return varint.Int.Size(*v) },
		marshal: func(bs []byte) int { return varint.Int.Marshal(*v, bs) },
		unmarshal: func(bs []byte) (n int, err error) {
			*v, n, err = varint.Int.Unmarshal(bs)
			return
		},
	}
}

func timeField(v *time.Time) fieldCodec {
	return fieldCodec{
		size:    func() int { return varint.Int64.Size(v.UnixMicro()) },
		marshal: func(bs []byte) int { return varint.Int64.Marshal(v.UnixMicro(), bs) },
		unmarshal: func(bs []byte) (n int, err error) {
			var micros int64
			micros, n, err = varint.Int64.Unmarshal(bs)
			if err == nil {
				*v = time.UnixMicro(micros).UTC()
			}
			return
		},
	}
}

func statusField(v *FileStatus) fieldCodec {
	s := (*string)(v)
	return stringField(s)
}

func roleField(v *Role) fieldCodec {
	s := (*string)(v)
	return stringField(s)
}

// stringMapField writes a length prefix followed by key/value pairs in key order.
func stringMapField(v *map[string]string) fieldCodec {
	return fieldCodec{
		size: func() int {
			size := varint.Int.Size(len(*v))
			for k, val := range *v {
				size += ord.String.Size(k) + ord.String.Size(val)
			}
			return size
		},
		marshal: func(bs []byte) int {
			m := *v
			n := varint.Int.Marshal(len(m), bs)
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				n += ord.String.Marshal(k, bs[n:])
				n += ord.String.Marshal(m[k], bs[n:])
			}
			return n
		},
		unmarshal: func(bs []byte) (n int, err error) {
			var length int
			length, n, err = varint.Int.Unmarshal(bs)
			if err != nil {
				return
			}
			if length < 0 || length > len(bs)-n {
				return n, errCorruptLength
			}
			if length == 0 {
				*v = nil
				return
			}
			m := make(map[string]string, length)
			for i := 0; i < length; i++ {
				var key, val string
				var n1 int
				key, n1, err = ord.String.Unmarshal(bs[n:])
				n += n1
				if err != nil {
					return
				}
				val, n1, err = ord.String.Unmarshal(bs[n:])
				n += n1
				if err != nil {
					return
				}
				m[key] = val
			}
			*v = m
			return
		},
	}
}

// float32SliceField writes a length prefix followed by fixed-width little endian values.
func float32SliceField(v *[]float32) fieldCodec {
	return fieldCodec{
		size: func() int { return varint.Int.Size(len(*v)) + 4*len(*v) },
		marshal: func(bs []byte) int {
			n := varint.Int.Marshal(len(*v), bs)
			for _, f := range *v {
				binary.LittleEndian.PutUint32(bs[n:], math.Float32bits(f))
				n += 4
			}
			return n
		},
		unmarshal: func(bs []byte) (n int, err error) {
			var length int
			length, n, err = varint.Int.Unmarshal(bs)
			if err != nil {
				return
			}
			if length < 0 || 4*length > len(bs)-n {
				return n, errCorruptLength
			}
			if length == 0 {
				*v = nil
				return
			}
			vec := make([]float32, length)
			for i := range vec {
				vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(bs[n:]))
				n += 4
			}
			*v = vec
			return
		},
	}
}

func (r *FileRecord) fields() []fieldCodec {
	return []fieldCodec{
		stringField(&r.Id),
		stringField(&r.OwnerId),
		stringField(&r.Filename),
		stringField(&r.ContentHash),
		statusField(&r.Status),
		stringField(&r.Error),
		timeField(&r.CreatedAt),
		timeField(&r.UpdatedAt),
	}
}

func (r *ChunkRecord) fields() []fieldCodec {
	return []fieldCodec{
		stringField(&r.Id),
		stringField(&r.FileId),
		intField(&r.ChunkIndex),
		stringField(&r.ExternalVectorId),
		timeField(&r.CreatedAt),
	}
}

func (c *Conversation) fields() []fieldCodec {
	return []fieldCodec{
		stringField(&c.Id),
		stringField(&c.OwnerId),
		timeField(&c.CreatedAt),
	}
}

func (m *Message) fields() []fieldCodec {
	return []fieldCodec{
		stringField(&m.Id),
		stringField(&m.ConversationId),
		roleField(&m.Role),
		stringField(&m.Content),
		timeField(&m.CreatedAt),
	}
}

func (a *AuditEntry) fields() []fieldCodec {
	return []fieldCodec{
		stringField(&a.Id),
		stringField(&a.Action),
		stringMapField(&a.Metadata),
		stringField(&a.OwnerId),
		timeField(&a.CreatedAt),
	}
}

func (e *VectorEntry) fields() []fieldCodec {
	return []fieldCodec{
		stringField(&e.Id),
		stringField(&e.Text),
		stringMapField(&e.Metadata),
		float32SliceField(&e.Vector),
		timeField(&e.InsertedAt),
	}
}

type fileRecordMUS struct{}

func (fileRecordMUS) Marshal(v FileRecord, bs []byte) int { return marshalFields(bs, v.fields()...) }
func (fileRecordMUS) Size(v FileRecord) int               { return sizeFields(v.fields()...) }
func (fileRecordMUS) Unmarshal(bs []byte) (v FileRecord, n int, err error) {
	n, err = unmarshalFields(bs, v.fields()...)
	return
}
func (s fileRecordMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type chunkRecordMUS struct{}

func (chunkRecordMUS) Marshal(v ChunkRecord, bs []byte) int { return marshalFields(bs, v.fields()...) }
func (chunkRecordMUS) Size(v ChunkRecord) int               { return sizeFields(v.fields()...) }
func (chunkRecordMUS) Unmarshal(bs []byte) (v ChunkRecord, n int, err error) {
	n, err = unmarshalFields(bs, v.fields()...)
	return
}
func (s chunkRecordMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type conversationMUS struct{}

func (conversationMUS) Marshal(v Conversation, bs []byte) int {
	return marshalFields(bs, v.fields()...)
}
func (conversationMUS) Size(v Conversation) int { return sizeFields(v.fields()...) }
func (conversationMUS) Unmarshal(bs []byte) (v Conversation, n int, err error) {
	n, err = unmarshalFields(bs, v.fields()...)
	return
}
func (s conversationMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type messageMUS struct{}

func (messageMUS) Marshal(v Message, bs []byte) int { return marshalFields(bs, v.fields()...) }
func (messageMUS) Size(v Message) int               { return sizeFields(v.fields()...) }
func (messageMUS) Unmarshal(bs []byte) (v Message, n int, err error) {
	n, err = unmarshalFields(bs, v.fields()...)
	return
}
func (s messageMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type auditEntryMUS struct{}

func (auditEntryMUS) Marshal(v AuditEntry, bs []byte) int { return marshalFields(bs, v.fields()...) }
func (auditEntryMUS) Size(v AuditEntry) int               { return sizeFields(v.fields()...) }
func (auditEntryMUS) Unmarshal(bs []byte) (v AuditEntry, n int, err error) {
	n, err = unmarshalFields(bs, v.fields()...)
	return
}
func (s auditEntryMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type vectorEntryMUS struct{}

func (vectorEntryMUS) Marshal(v VectorEntry, bs []byte) int { return marshalFields(bs, v.fields()...) }
func (vectorEntryMUS) Size(v VectorEntry) int               { return sizeFields(v.fields()...) }
func (vectorEntryMUS) Unmarshal(bs []byte) (v VectorEntry, n int, err error) {
	n, err = unmarshalFields(bs, v.fields()...)
	return
}
func (s vectorEntryMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

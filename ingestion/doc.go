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

// Package ingestion turns uploaded files into indexed, retrievable chunks.
//
// The Pipeline gates every upload on the file ledger: identical content from
// the same owner is reported as a duplicate without being parsed again, and a
// previously failed upload reuses its record. Accepted files are extracted,
// chunked, written to the embedding index in one batch and recorded chunk by
// chunk in the ledger. Any failure after the ledger row exists marks the file
// failed, records an audit entry and surfaces a generic *Error.
package ingestion

// Package store implements the Chunk Store (spec §4.5): the durable
// home for sources and chunks, plus the lexical and vector indexes that
// back retrieval.
//
// Grounded on pkg/agent/task_service_sql.go for the database/sql +
// sqlite3 schema/DI shape (JSON-encoded columns for nested fields,
// idempotent CREATE TABLE IF NOT EXISTS schema setup), a standalone
// bleve-backed lexical index for the bm25-scored match query shape
// (batch indexing, match queries scored by BM25), and this module's own
// pkg/vectorindex for the per-embedding-kind ANN index.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/vectorindex"
)

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS sources (
	source_id TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	byte_size INTEGER NOT NULL,
	filename TEXT NOT NULL,
	format TEXT NOT NULL,
	detected_type TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	scale TEXT NOT NULL,
	content TEXT NOT NULL,
	heading TEXT,
	section_path TEXT,
	page_number INTEGER,
	token_count INTEGER,
	word_count INTEGER,
	character_count INTEGER,
	content_type TEXT,
	content_type_confidence REAL,
	quality_score REAL,
	instructional_value REAL,
	language TEXT,
	parent_chunk_id TEXT,
	child_chunk_ids TEXT,
	sibling_chunk_ids TEXT,
	hierarchy_path TEXT,
	embeddings TEXT
);

CREATE INDEX IF NOT EXISTS idx_chunks_source_id ON chunks(source_id);
CREATE INDEX IF NOT EXISTS idx_chunks_parent_id ON chunks(parent_chunk_id);
`

// Config configures a Store.
type Config struct {
	// SQLitePath is the sqlite database file. ":memory:" for an
	// ephemeral store (tests, single-shot CLI runs).
	SQLitePath string
	// BlevePath, if set, persists the lexical index to disk; empty
	// keeps it in memory.
	BlevePath string
	// VectorIndex configures the per-kind ANN backend (§6(d)).
	VectorIndex vectorindex.Config
	// Kinds lists which embedding kinds get their own vector index.
	Kinds []ragforge.EmbeddingKind
}

func (c *Config) SetDefaults() {
	if c.SQLitePath == "" {
		c.SQLitePath = "ragforge.db"
	}
	if len(c.Kinds) == 0 {
		c.Kinds = []ragforge.EmbeddingKind{ragforge.EmbeddingContent}
	}
}

// Store is the Chunk Store (§4.5): sqlite for durable source/chunk
// records, bleve for lexical (BM25) search, and one vectorindex.Index
// per embedding kind for ANN vector search.
type Store struct {
	db      *sql.DB
	lexical bleve.Index
	vectors map[ragforge.EmbeddingKind]vectorindex.Index

	mu sync.RWMutex
}

// Open constructs a Store, creating the sqlite schema and lexical index
// if they do not already exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.SetDefaults()

	db, err := sql.Open("sqlite3", cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", cfg.SQLitePath, err)
	}
	if _, err := db.ExecContext(ctx, createSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	lexical, err := openBleve(cfg.BlevePath)
	if err != nil {
		db.Close()
		return nil, err
	}

	vectors := make(map[ragforge.EmbeddingKind]vectorindex.Index, len(cfg.Kinds))
	for _, kind := range cfg.Kinds {
		idx, err := vectorindex.Open(ctx, cfg.VectorIndex, string(kind), 0)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("store: open vector index for kind %s: %w", kind, err)
		}
		vectors[kind] = idx
	}

	return &Store{db: db, lexical: lexical, vectors: vectors}, nil
}

func openBleve(path string) (bleve.Index, error) {
	mapping := bleve.NewIndexMapping()
	if path == "" {
		idx, err := bleve.NewMemOnly(mapping)
		if err != nil {
			return nil, fmt.Errorf("store: create in-memory bleve index: %w", err)
		}
		return idx, nil
	}
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("store: open bleve index %s: %w", path, err)
	}
	return idx, nil
}

// Close releases the sqlite handle and the lexical index.
func (s *Store) Close() error {
	if err := s.lexical.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// lexicalDoc is the document body bleve indexes per chunk (§4.5).
type lexicalDoc struct {
	Content string `json:"content"`
	Heading string `json:"heading"`
}

// PutSource upserts a source record (§4.5 putSource).
func (s *Store) PutSource(ctx context.Context, src *ragforge.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (source_id, version, content_hash, byte_size, filename, format, detected_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			version=excluded.version, content_hash=excluded.content_hash, byte_size=excluded.byte_size,
			filename=excluded.filename, format=excluded.format, detected_type=excluded.detected_type,
			status=excluded.status, updated_at=excluded.updated_at
	`, src.SourceID, src.Version, src.ContentHash, src.ByteSize, src.Filename, string(src.Format),
		string(src.DetectedType), string(src.Status), src.CreatedAt, src.UpdatedAt)
	if err != nil {
		return ragforge.NewStoreError("putSource", src.SourceID, "failed to upsert source", err)
	}
	return nil
}

// ReplaceChunks atomically swaps every chunk belonging to sourceID for
// a new set (§4.5 replaceChunks: "the previous version's chunks are
// replaced atomically"), and reindexes them into the lexical and vector
// indexes.
func (s *Store) ReplaceChunks(ctx context.Context, sourceID string, chunks []*ragforge.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ragforge.NewStoreError("replaceChunks", sourceID, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	oldIDs, err := s.chunkIDsForSourceLocked(ctx, tx, sourceID)
	if err != nil {
		return ragforge.NewStoreError("replaceChunks", sourceID, "failed to list existing chunks", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID); err != nil {
		return ragforge.NewStoreError("replaceChunks", sourceID, "failed to delete old chunks", err)
	}

	for _, c := range chunks {
		if err := insertChunkLocked(ctx, tx, c); err != nil {
			return ragforge.NewStoreError("replaceChunks", sourceID, fmt.Sprintf("failed to insert chunk %s", c.ChunkID), err)
		}
	}

	// The sqlite commit below must not happen until the lexical and
	// vector reindex has fully succeeded: a (sourceId, version) is only
	// visible to queries once sqlite, bleve, and every vector index
	// agree, never with sqlite alone already committed ahead of a
	// reindex that then fails partway through.
	batch := s.lexical.NewBatch()
	for _, id := range oldIDs {
		batch.Delete(id)
	}
	for _, c := range chunks {
		if err := batch.Index(c.ChunkID, lexicalDoc{Content: c.Content, Heading: c.Heading}); err != nil {
			return ragforge.NewStoreError("replaceChunks", sourceID, "failed to stage lexical index", err)
		}
	}

	added := make([]vectorAdd, 0, len(chunks))
	for _, c := range chunks {
		for kind, vec := range c.Embeddings {
			idx, ok := s.vectors[kind]
			if !ok {
				continue
			}
			if err := idx.Add(ctx, c.ChunkID, vec); err != nil {
				rollbackVectorAdds(ctx, s.vectors, added)
				return ragforge.NewStoreError("replaceChunks", sourceID, fmt.Sprintf("failed to index vector for chunk %s", c.ChunkID), err)
			}
			added = append(added, vectorAdd{kind: kind, id: c.ChunkID})
		}
	}

	if err := s.lexical.Batch(batch); err != nil {
		rollbackVectorAdds(ctx, s.vectors, added)
		return ragforge.NewStoreError("replaceChunks", sourceID, "failed to update lexical index", err)
	}

	if err := tx.Commit(); err != nil {
		rollbackVectorAdds(ctx, s.vectors, added)
		return ragforge.NewStoreError("replaceChunks", sourceID, "failed to commit transaction", err)
	}

	newIDs := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		newIDs[c.ChunkID] = struct{}{}
	}
	for _, id := range oldIDs {
		if _, kept := newIDs[id]; kept {
			continue // re-added above under the same ID
		}
		for _, idx := range s.vectors {
			_ = idx.Remove(ctx, id)
		}
	}

	return nil
}

// vectorAdd records one successful idx.Add call so it can be undone if a
// later chunk in the same ReplaceChunks call fails to index.
type vectorAdd struct {
	kind ragforge.EmbeddingKind
	id   string
}

func rollbackVectorAdds(ctx context.Context, vectors map[ragforge.EmbeddingKind]vectorindex.Index, added []vectorAdd) {
	for _, a := range added {
		if idx, ok := vectors[a.kind]; ok {
			_ = idx.Remove(ctx, a.id)
		}
	}
}

func (s *Store) chunkIDsForSourceLocked(ctx context.Context, tx *sql.Tx, sourceID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertChunkLocked(ctx context.Context, tx *sql.Tx, c *ragforge.Chunk) error {
	sectionPath, err := json.Marshal(c.SectionPath)
	if err != nil {
		return err
	}
	children, err := json.Marshal(c.ChildChunkIDs)
	if err != nil {
		return err
	}
	siblings, err := json.Marshal(c.SiblingChunkIDs)
	if err != nil {
		return err
	}
	hierarchyPath, err := json.Marshal(c.HierarchyPath)
	if err != nil {
		return err
	}
	embeddings, err := json.Marshal(c.Embeddings)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (
			chunk_id, source_id, version, scale, content, heading, section_path, page_number,
			token_count, word_count, character_count, content_type, content_type_confidence,
			quality_score, instructional_value, language, parent_chunk_id, child_chunk_ids,
			sibling_chunk_ids, hierarchy_path, embeddings
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ChunkID, c.SourceID, c.Version, string(c.Scale), c.Content, c.Heading, string(sectionPath),
		c.PageNumber, c.TokenCount, c.WordCount, c.CharacterCount, string(c.ContentType),
		c.ContentTypeConfidence, c.QualityScore, c.InstructionalValue, c.Language, c.ParentChunkID,
		string(children), string(siblings), string(hierarchyPath), string(embeddings))
	return err
}

// GetChunk returns a single chunk by ID (§4.5 getChunk).
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*ragforge.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT * FROM chunks WHERE chunk_id = ?`, chunkID)
	c, err := scanChunk(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ragforge.NewStoreError("getChunk", chunkID, "chunk not found", err)
		}
		return nil, ragforge.NewStoreError("getChunk", chunkID, "failed to scan chunk", err)
	}
	return c, nil
}

// GetChildren returns every chunk whose ParentChunkID is chunkID (§4.5
// getChildren).
func (s *Store) GetChildren(ctx context.Context, chunkID string) ([]*ragforge.Chunk, error) {
	return s.queryChunks(ctx, `SELECT * FROM chunks WHERE parent_chunk_id = ?`, chunkID)
}

// GetParent returns chunkID's parent, or nil if it is a root (document
// scale) chunk (§4.5 getParent).
func (s *Store) GetParent(ctx context.Context, chunkID string) (*ragforge.Chunk, error) {
	child, err := s.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if child.ParentChunkID == "" {
		return nil, nil
	}
	return s.GetChunk(ctx, child.ParentChunkID)
}

// GetSiblings returns chunkID's recorded siblings (§4.5 getSiblings).
func (s *Store) GetSiblings(ctx context.Context, chunkID string) ([]*ragforge.Chunk, error) {
	c, err := s.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	siblings := make([]*ragforge.Chunk, 0, len(c.SiblingChunkIDs))
	for _, id := range c.SiblingChunkIDs {
		sib, err := s.GetChunk(ctx, id)
		if err != nil {
			continue
		}
		siblings = append(siblings, sib)
	}
	return siblings, nil
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]*ragforge.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ragforge.NewStoreError("query", "", "failed to query chunks", err)
	}
	defer rows.Close()

	var out []*ragforge.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, ragforge.NewStoreError("query", "", "failed to scan chunk", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// rowScanner abstracts over *sql.Row and *sql.Rows for scanChunk.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*ragforge.Chunk, error) {
	var (
		c                                                    ragforge.Chunk
		scale, contentType                                   string
		sectionPath, children, siblings, hierarchyPath, embs string
	)
	err := row.Scan(
		&c.ChunkID, &c.SourceID, &c.Version, &scale, &c.Content, &c.Heading, &sectionPath,
		&c.PageNumber, &c.TokenCount, &c.WordCount, &c.CharacterCount, &contentType,
		&c.ContentTypeConfidence, &c.QualityScore, &c.InstructionalValue, &c.Language,
		&c.ParentChunkID, &children, &siblings, &hierarchyPath, &embs,
	)
	if err != nil {
		return nil, err
	}

	c.Scale = ragforge.Scale(scale)
	c.ContentType = ragforge.ContentType(contentType)
	if err := json.Unmarshal([]byte(sectionPath), &c.SectionPath); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(children), &c.ChildChunkIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(siblings), &c.SiblingChunkIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(hierarchyPath), &c.HierarchyPath); err != nil {
		return nil, err
	}
	if embs != "" {
		if err := json.Unmarshal([]byte(embs), &c.Embeddings); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// SearchByVector runs ANN search against the index for the given
// embedding kind (§4.5 searchByVector, §6(d)).
func (s *Store) SearchByVector(ctx context.Context, kind ragforge.EmbeddingKind, vector []float32, k int) ([]ragforge.VectorMatch, error) {
	s.mu.RLock()
	idx, ok := s.vectors[kind]
	s.mu.RUnlock()
	if !ok {
		return nil, ragforge.NewStoreError("searchByVector", "", fmt.Sprintf("no vector index configured for kind %s", kind), nil)
	}

	matches, err := idx.Search(ctx, vector, k)
	if err != nil {
		return nil, ragforge.NewStoreError("searchByVector", "", "vector search failed", err)
	}
	out := make([]ragforge.VectorMatch, len(matches))
	for i, m := range matches {
		out[i] = ragforge.VectorMatch{ChunkID: m.ID, Score: m.Score}
	}
	return out, nil
}

// SearchByText runs BM25 lexical search over chunk content (§4.5
// searchByText).
func (s *Store) SearchByText(ctx context.Context, query string, k int) ([]ragforge.LexicalMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	match := bleve.NewMatchQuery(query)
	match.SetField("content")
	req := bleve.NewSearchRequest(match)
	req.Size = k

	result, err := s.lexical.SearchInContext(ctx, req)
	if err != nil {
		return nil, ragforge.NewStoreError("searchByText", "", "lexical search failed", err)
	}

	out := make([]ragforge.LexicalMatch, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, ragforge.LexicalMatch{ChunkID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// ListSources returns every known source (§4.5 listSources).
func (s *Store) ListSources(ctx context.Context) ([]*ragforge.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT source_id, version, content_hash, byte_size, filename, format, detected_type, status, created_at, updated_at FROM sources`)
	if err != nil {
		return nil, ragforge.NewStoreError("listSources", "", "failed to query sources", err)
	}
	defer rows.Close()

	var out []*ragforge.Source
	for rows.Next() {
		var src ragforge.Source
		var format, detectedType, status string
		if err := rows.Scan(&src.SourceID, &src.Version, &src.ContentHash, &src.ByteSize, &src.Filename,
			&format, &detectedType, &status, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, ragforge.NewStoreError("listSources", "", "failed to scan source", err)
		}
		src.Format = ragforge.Format(format)
		src.DetectedType = ragforge.DocumentType(detectedType)
		src.Status = ragforge.SourceStatus(status)
		out = append(out, &src)
	}
	return out, rows.Err()
}

// DeleteSource removes a source and every chunk, lexical document, and
// vector entry belonging to it (§4.5 deleteSource).
func (s *Store) DeleteSource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ragforge.NewStoreError("deleteSource", sourceID, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	ids, err := s.chunkIDsForSourceLocked(ctx, tx, sourceID)
	if err != nil {
		return ragforge.NewStoreError("deleteSource", sourceID, "failed to list chunks", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID); err != nil {
		return ragforge.NewStoreError("deleteSource", sourceID, "failed to delete chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE source_id = ?`, sourceID); err != nil {
		return ragforge.NewStoreError("deleteSource", sourceID, "failed to delete source", err)
	}
	if err := tx.Commit(); err != nil {
		return ragforge.NewStoreError("deleteSource", sourceID, "failed to commit transaction", err)
	}

	batch := s.lexical.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := s.lexical.Batch(batch); err != nil {
		return ragforge.NewStoreError("deleteSource", sourceID, "failed to update lexical index", err)
	}

	for _, id := range ids {
		for _, idx := range s.vectors {
			_ = idx.Remove(ctx, id)
		}
	}
	return nil
}

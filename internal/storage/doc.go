// Package storage provides SQLite-based persistence for tool indexes.
//
// The storage layer manages:
//   - One index per scope (project, user) with its BM25 statistics
//   - Indexed tools in build order
//   - Tool embeddings as little-endian float32 blobs
//   - A log of search queries
//
// # Database Schema
//
// Tables:
//   - indexes: Scope metadata, embedding provider and corpus totals
//   - tools: Tool definitions, searchable text and tokens
//   - tool_embeddings: One vector per tool
//   - document_frequencies: BM25 document frequency per scope and term
//   - search_queries: Query log
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.toolsearch/toolsearch.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.SaveIndex(ctx, "project", index); err != nil {
//	    log.Fatal(err)
//	}
//	index, err = db.LoadIndex(ctx, "project")
//
// # Transactions
//
// SaveIndex is atomic on its own. Use BeginTx to group several operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.SaveIndex(ctx, "user", userIndex); err != nil {
//	    return err
//	}
//	if err := tx.DeleteIndex(ctx, "project"); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and needs no C compiler. Build
// with -tags sqlite_vec to use github.com/mattn/go-sqlite3 instead.
//
// # Migrations
//
// Schema versions are semantic versions recorded in schema_version.
// NewSQLiteStorage applies pending migrations on open.
package storage

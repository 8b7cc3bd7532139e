package store

// Schema is the DDL for the two tables the core assumes.
// id is the opaque string generated by package idgen; label and
// properties are JSON text columns (type is a plain string) that the
// translator reads through json_extract/json_each and that inserts and
// updates write as whole JSON text.
const Schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	label      TEXT NOT NULL DEFAULT '[]',
	properties TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS edges (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL DEFAULT '',
	source_id  TEXT NOT NULL REFERENCES nodes(id),
	target_id  TEXT NOT NULL REFERENCES nodes(id),
	properties TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
`

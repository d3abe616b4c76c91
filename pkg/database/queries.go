package database

type queries struct {
	schema       []string
	upsert       string
	findByKey    string
	findAll      string
	originalName string
}

const selectColumns = `id, document_key, original_name, json_data, extraction_timestamp, vector_data`

var postgresQueries = queries{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS extracted_data (
			id UUID PRIMARY KEY,
			document_key TEXT NOT NULL UNIQUE,
			original_name TEXT NOT NULL,
			json_data JSONB NOT NULL,
			extraction_timestamp TIMESTAMPTZ NOT NULL,
			vector_data TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extracted_data_timestamp ON extracted_data (extraction_timestamp DESC)`,
	},
	upsert: `
		INSERT INTO extracted_data (id, document_key, original_name, json_data, extraction_timestamp, vector_data)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		ON CONFLICT (document_key) DO UPDATE
		SET original_name = EXCLUDED.original_name,
		    json_data = EXCLUDED.json_data,
		    extraction_timestamp = EXCLUDED.extraction_timestamp,
		    vector_data = EXCLUDED.vector_data
		RETURNING id
	`,
	findByKey:    `SELECT ` + selectColumns + ` FROM extracted_data WHERE document_key = $1`,
	findAll:      `SELECT ` + selectColumns + ` FROM extracted_data ORDER BY extraction_timestamp DESC`,
	originalName: `SELECT original_name FROM extracted_data WHERE document_key = $1`,
}

var sqliteQueries = queries{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS extracted_data (
			id TEXT PRIMARY KEY,
			document_key TEXT NOT NULL UNIQUE,
			original_name TEXT NOT NULL,
			json_data TEXT NOT NULL,
			extraction_timestamp TIMESTAMP NOT NULL,
			vector_data TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extracted_data_timestamp ON extracted_data (extraction_timestamp DESC)`,
	},
	upsert: `
		INSERT INTO extracted_data (id, document_key, original_name, json_data, extraction_timestamp, vector_data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_key) DO UPDATE
		SET original_name = excluded.original_name,
		    json_data = excluded.json_data,
		    extraction_timestamp = excluded.extraction_timestamp,
		    vector_data = excluded.vector_data
		RETURNING id
	`,
	findByKey:    `SELECT ` + selectColumns + ` FROM extracted_data WHERE document_key = ?`,
	findAll:      `SELECT ` + selectColumns + ` FROM extracted_data ORDER BY extraction_timestamp DESC`,
	originalName: `SELECT original_name FROM extracted_data WHERE document_key = ?`,
}

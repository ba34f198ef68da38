// Package all registers every storage backend.
package all

import (
	_ "geoingest/internal/storage/elasticsearch"
	_ "geoingest/internal/storage/mssql"
	_ "geoingest/internal/storage/postgres"
	_ "geoingest/internal/storage/sqlite"
)

package database

import (
	"fmt"

	"github.com/trdSystemDev/Medko-Prescricao/config"
)

// NewStore picks the Store for backend. conn may be nil for the memory store.
func NewStore(backend string, conn *config.Connection, table string, maxOpen int) (Store, error) {
	if backend != config.BackendMemory && conn == nil {
		return nil, fmt.Errorf("%w: backend %s needs a connection string", config.ErrConfiguration, backend)
	}

	switch backend {
	case config.BackendMySQL:
		return NewMySQLClientFromConnection(conn, table, maxOpen), nil
	case config.BackendPostgres:
		return NewPostgreSQLClientFromConnection(conn, table, maxOpen), nil
	case config.BackendMongoDB:
		return NewMongoDBClientFromConnection(conn, table), nil
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported backend %q", config.ErrConfiguration, backend)
	}
}

package hostservices

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/flowlattice/engine/runtime"
)

// storageGetRequest/storageSetRequest are the typed param shapes for
// the "storage" service's get/set methods.
type storageGetRequest struct {
	Key string `mapstructure:"key"`
}

type storageSetRequest struct {
	Key   string `mapstructure:"key"`
	Value any    `mapstructure:"value"`
}

// StorageHandler is a key/value host service. Two backends are
// provided: an in-memory map for tests and local runs, and a
// Postgres-backed one for persistent deployments.
type StorageHandler struct {
	mu     sync.RWMutex
	memory map[string]runtime.VariableValue
	db     *sql.DB
	table  string
}

// NewInMemoryStorageHandler constructs a StorageHandler backed by a
// plain map, useful for tests and SINGLE_STEP development loops.
func NewInMemoryStorageHandler() *StorageHandler {
	return &StorageHandler{memory: make(map[string]runtime.VariableValue)}
}

// NewPostgresStorageHandler constructs a StorageHandler backed by a
// Postgres table (key TEXT PRIMARY KEY, value JSONB), via lib/pq.
// table must already exist; this handler does not run migrations.
func NewPostgresStorageHandler(dsn, table string) (*StorageHandler, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("hostservices/storage: failed to open postgres connection: %w", err)
	}
	return &StorageHandler{db: db, table: table}, nil
}

// Get handles the "storage"."get" host service call.
func (s *StorageHandler) Get(ctx context.Context, params map[string]runtime.VariableValue) (runtime.VariableValue, error) {
	var req storageGetRequest
	if err := runtime.ValueMapToStruct(params, &req); err != nil {
		return runtime.Null, fmt.Errorf("hostservices/storage: invalid get params: %w", err)
	}

	if s.db != nil {
		return s.getFromPostgres(ctx, req.Key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.memory[req.Key]
	if !ok {
		return runtime.Null, runtime.NewHostServiceError("NOT_FOUND", fmt.Sprintf("key %q not found", req.Key))
	}
	return v, nil
}

// Set handles the "storage"."set" host service call.
func (s *StorageHandler) Set(ctx context.Context, params map[string]runtime.VariableValue) (runtime.VariableValue, error) {
	var req storageSetRequest
	if err := runtime.ValueMapToStruct(params, &req); err != nil {
		return runtime.Null, fmt.Errorf("hostservices/storage: invalid set params: %w", err)
	}
	value := runtime.FromNative(req.Value)

	if s.db != nil {
		return runtime.Null, s.setInPostgres(ctx, req.Key, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory[req.Key] = value
	return runtime.Null, nil
}

func (s *StorageHandler) getFromPostgres(ctx context.Context, key string) (runtime.VariableValue, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", s.table)
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return runtime.Null, runtime.NewHostServiceError("NOT_FOUND", fmt.Sprintf("key %q not found", key))
	}
	if err != nil {
		return runtime.Null, fmt.Errorf("hostservices/storage: query failed: %w", err)
	}
	return decodeJSONValue(raw)
}

func (s *StorageHandler) setInPostgres(ctx context.Context, key string, value runtime.VariableValue) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, s.table)
	encoded, err := encodeJSONValue(value)
	if err != nil {
		return fmt.Errorf("hostservices/storage: failed to encode value: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, key, encoded); err != nil {
		return fmt.Errorf("hostservices/storage: exec failed: %w", err)
	}
	return nil
}

// Register binds this handler's methods into registry under the
// "storage" service.
func (s *StorageHandler) Register(registry *runtime.HostServiceRegistry) {
	registry.Register("storage", "get", s.Get)
	registry.Register("storage", "set", s.Set)
}

func decodeJSONValue(raw []byte) (runtime.VariableValue, error) {
	var native any
	if err := json.Unmarshal(raw, &native); err != nil {
		return runtime.Null, fmt.Errorf("hostservices/storage: failed to decode stored value: %w", err)
	}
	return runtime.FromNative(native), nil
}

func encodeJSONValue(value runtime.VariableValue) ([]byte, error) {
	return json.Marshal(value.ToNative())
}

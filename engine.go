// Package cyql is the query entry point: it wires the cypher lexer/parser,
// the translate/exec pipeline, and a store.Storage backend into a
// single Execute call.
package cyql

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rlch/cyql/cyerr"
	"github.com/rlch/cyql/cypher"
	"github.com/rlch/cyql/exec"
	"github.com/rlch/cyql/store"
)

// Engine executes Cypher statements against a store.Storage backend
// inside one transaction per query.
type Engine struct {
	db     store.Storage
	log    *zap.Logger
	config *EngineConfig
}

// New constructs an Engine. log may be nil, in which case a no-op
// logger is used.
func New(db store.Storage, config *EngineConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if config == nil {
		config = &EngineConfig{DefaultMaxHops: DefaultMaxHops}
	}
	return &Engine{db: db, log: log, config: config}
}

// Execute parses, translates, and runs a single Cypher statement,
// producing a QueryResponse. The whole query runs inside one
// transaction; any error rolls it back before the response is produced,
// so the engine never emits partial success.
func (e *Engine) Execute(ctx context.Context, source string, params map[string]any) QueryResponse {
	start := time.Now()

	q, err := cypher.Parse(source)
	if err != nil {
		return e.errorResponse(err)
	}

	var cols []string
	var rows []map[string]any
	err = e.db.Transaction(ctx, func(ctx context.Context, tx store.Storage) error {
		var txErr error
		cols, rows, txErr = exec.Run(ctx, tx, q, params)
		return txErr
	})
	if err != nil {
		e.log.Warn("query rolled back", zap.String("cypher", source), zap.Error(err))
		return e.errorResponse(err)
	}

	_ = cols
	e.log.Debug("query executed", zap.String("cypher", source), zap.Int("rows", len(rows)))
	return QueryResponse{
		Success: true,
		Data:    rows,
		Meta: &Meta{
			Count:  len(rows),
			TimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	}
}

// Close releases the underlying storage connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// errorResponse builds a QueryResponse from any error Execute can raise,
// attaching position information only for LexError/ParseError.
func (e *Engine) errorResponse(err error) QueryResponse {
	info := &ErrorInfo{Message: err.Error()}

	switch v := err.(type) {
	case *cypher.LexError:
		info = &ErrorInfo{Message: v.Msg, Line: intPtr(v.Line), Column: intPtr(v.Column), Position: intPtr(v.Offset)}
	case *cypher.ParseError:
		info = &ErrorInfo{Message: v.Msg, Line: intPtr(v.Line), Column: intPtr(v.Column), Position: intPtr(v.Offset)}
	case *cyerr.NameError, *cyerr.TypeError, *cyerr.UnsupportedFeatureError,
		*cyerr.ConstraintViolationError, *cyerr.StorageError:
		// message-only, no position.
	}

	return QueryResponse{Success: false, Error: info}
}

func intPtr(i int) *int { return &i }

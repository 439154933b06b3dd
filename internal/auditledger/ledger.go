// Package auditledger implements the append-only Action/ToolTrace audit
// spine. Every state-changing operation in the system — a pipeline stage
// run, a tool invocation, a manual edit — is recorded as an Action before
// (in the same transaction as) its business-data write, and every outbound
// tool call additionally gets a ToolTrace row keyed to that Action.
package auditledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// execer is the subset of pgxpool.Pool / pgx.Tx used for INSERT execution.
// Both satisfy this interface, so callers can pair an Action write with a
// business-data write in the same transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Ledger writes Action and ToolTrace rows to Postgres and mirrors every
// Action to a date-partitioned JSONL sink for offline/air-gapped review.
type Ledger struct {
	pool execer
	jsonl *jsonlSink
	logger *slog.Logger
}

// New constructs a Ledger backed by the given pool and an optional JSONL
// mirror directory. jsonlDir == "" disables the JSONL mirror.
func New(pool execer, jsonlDir string, logger *slog.Logger) (*Ledger, error) {
	var sink *jsonlSink
	if jsonlDir != "" {
		var err error
		sink, err = newJSONLSink(jsonlDir)
		if err != nil {
			return nil, fmt.Errorf("auditledger: init jsonl sink: %w", err)
		}
	}
	return &Ledger{pool: pool, jsonl: sink, logger: logger}, nil
}

// RecordAction persists an Action using the pool. Prefer RecordActionTx when
// the Action must be atomic with a business-data mutation — the audit write
// must never succeed without its paired write, and vice versa.
func (l *Ledger) RecordAction(ctx context.Context, a model.Action) error {
	return l.recordAction(ctx, l.pool, a)
}

// RecordActionTx persists an Action within an existing transaction. The
// JSONL mirror is intentionally skipped on this path: the transaction may
// still roll back, and the mirror must only ever contain committed Actions.
func RecordActionTx(ctx context.Context, tx pgx.Tx, a model.Action) error {
	return recordActionExec(ctx, tx, a)
}

func (l *Ledger) recordAction(ctx context.Context, exec execer, a model.Action) error {
	if err := recordActionExec(ctx, exec, a); err != nil {
		return err
	}
	if l.jsonl != nil {
		if err := l.jsonl.Append(a); err != nil {
			l.logger.Warn("auditledger: jsonl mirror failed", "action_uid", a.UID, "error", err)
		}
	}
	return nil
}

func recordActionExec(ctx context.Context, exec execer, a model.Action) error {
	inputsJSON, err := json.Marshal(a.Inputs)
	if err != nil {
		return fmt.Errorf("auditledger: marshal action inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(a.Outputs)
	if err != nil {
		return fmt.Errorf("auditledger: marshal action outputs: %w", err)
	}
	_, err = exec.Exec(ctx,
		`INSERT INTO actions (
			uid, case_uid, action_type, actor_id, rationale,
			inputs, outputs, trace_id, span_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10)`,
		a.UID, a.CaseUID, a.ActionType, a.ActorID, a.Rationale,
		inputsJSON, outputsJSON, a.TraceID, a.SpanID, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("auditledger: insert action: %w", err)
	}
	return nil
}

// RecordToolTrace persists a ToolTrace row, keyed to the Action that caused
// the outbound call. Tool traces are always written outside the Action's
// own transaction since the tool call itself already completed by the time
// the trace is available.
func (l *Ledger) RecordToolTrace(ctx context.Context, t model.ToolTrace) error {
	reqJSON, err := json.Marshal(t.Request)
	if err != nil {
		return fmt.Errorf("auditledger: marshal tool trace request: %w", err)
	}
	respJSON, err := json.Marshal(t.Response)
	if err != nil {
		return fmt.Errorf("auditledger: marshal tool trace response: %w", err)
	}
	policyJSON, err := json.Marshal(t.Policy)
	if err != nil {
		return fmt.Errorf("auditledger: marshal tool trace policy: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO tool_traces (
			uid, action_uid, tool_name, request, response, status,
			duration_ms, error, policy, created_at
		) VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9::jsonb, $10)`,
		t.UID, t.ActionUID, t.ToolName, reqJSON, respJSON, t.Status,
		t.DurationMS, t.Error, policyJSON, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("auditledger: insert tool trace: %w", err)
	}
	if l.jsonl != nil {
		if err := l.jsonl.Append(t); err != nil {
			l.logger.Warn("auditledger: jsonl mirror failed", "tool_trace_uid", t.UID, "error", err)
		}
	}
	return nil
}

// jsonlSink appends newline-delimited JSON audit records to a file that
// rotates daily, named audit-YYYY-MM-DD.jsonl under dir.
type jsonlSink struct {
	dir string
	mu  sync.Mutex
	day string
	f   *os.File
}

func newJSONLSink(dir string) (*jsonlSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit jsonl dir: %w", err)
	}
	return &jsonlSink{dir: dir}, nil
}

func (s *jsonlSink) Append(record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := time.Now().UTC().Format("2006-01-02")
	if day != s.day || s.f == nil {
		if s.f != nil {
			_ = s.f.Close()
		}
		path := filepath.Join(s.dir, fmt.Sprintf("audit-%s.jsonl", day))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open audit jsonl segment: %w", err)
		}
		s.f = f
		s.day = day
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit jsonl record: %w", err)
	}
	line = append(line, '\n')
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("write audit jsonl record: %w", err)
	}
	return nil
}

func (s *jsonlSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}

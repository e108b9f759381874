package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
)

const executionColumns = `
	id, workflow_id, workspace_id, agent_id, status, version,
	input, steps, outputs, context,
	paused_step_id, forked_from, error, created_at, updated_at`

// CreateExecution persists a new execution record at its initial version.
func (s *Store) CreateExecution(ctx context.Context, exec *execution.Execution) error {
	input, steps, outputs, execCtx, err := marshalState(exec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conductor_executions (
			id, workflow_id, workspace_id, agent_id, status, version,
			input, steps, outputs, context,
			paused_step_id, forked_from, error, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`,
		exec.ID, exec.WorkflowID, exec.WorkspaceID, exec.AgentID,
		string(exec.Status), exec.Version,
		input, steps, outputs, execCtx,
		exec.PausedStepID, exec.ForkedFrom, exec.Error,
		exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("create execution %s: %w", exec.ID, conductor.ErrExecutionExists)
		}
		return fmt.Errorf("conductor/postgres: create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, execID id.ExecutionID) (*execution.Execution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM conductor_executions WHERE id = $1`,
		execID,
	)
	exec, err := scanExecution(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("get execution %s: %w", execID, conductor.ErrExecutionNotFound)
		}
		return nil, fmt.Errorf("conductor/postgres: get execution: %w", err)
	}
	return exec, nil
}

// UpdateExecutionIfVersion persists the record only when the stored
// version still equals expected, bumping to expected+1 on success.
func (s *Store) UpdateExecutionIfVersion(ctx context.Context, exec *execution.Execution, expected int64) error {
	input, steps, outputs, execCtx, err := marshalState(exec)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE conductor_executions SET
			status = $3, version = $2 + 1,
			input = $4, steps = $5, outputs = $6, context = $7,
			paused_step_id = $8, error = $9, updated_at = $10
		WHERE id = $1 AND version = $2`,
		exec.ID, expected, string(exec.Status),
		input, steps, outputs, execCtx,
		exec.PausedStepID, exec.Error, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("conductor/postgres: update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing record.
		var stored int64
		err := s.pool.QueryRow(ctx,
			`SELECT version FROM conductor_executions WHERE id = $1`, exec.ID,
		).Scan(&stored)
		if isNoRows(err) {
			return fmt.Errorf("update execution %s: %w", exec.ID, conductor.ErrExecutionNotFound)
		}
		if err != nil {
			return fmt.Errorf("conductor/postgres: update execution: %w", err)
		}
		return fmt.Errorf("update execution %s at version %d, stored %d: %w",
			exec.ID, expected, stored, conductor.ErrVersionConflict)
	}

	exec.Version = expected + 1
	return nil
}

// ListExecutions returns executions matching the given options, ordered
// by creation time.
func (s *Store) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !opts.WorkflowID.IsNil() {
		args = append(args, opts.WorkflowID)
		where = append(where, fmt.Sprintf("workflow_id = $%d", len(args)))
	}

	query := `SELECT ` + executionColumns + ` FROM conductor_executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []*execution.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("conductor/postgres: list executions: %w", err)
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conductor/postgres: list executions: %w", err)
	}
	return out, nil
}

func marshalState(exec *execution.Execution) (input, steps, outputs, execCtx []byte, err error) {
	if input, err = json.Marshal(exec.Input); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("conductor/postgres: marshal input: %w", err)
	}
	if steps, err = json.Marshal(exec.Steps); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("conductor/postgres: marshal steps: %w", err)
	}
	if outputs, err = json.Marshal(exec.Outputs); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("conductor/postgres: marshal outputs: %w", err)
	}
	if execCtx, err = json.Marshal(exec.Context); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("conductor/postgres: marshal context: %w", err)
	}
	return input, steps, outputs, execCtx, nil
}

func scanExecution(row pgx.Row) (*execution.Execution, error) {
	var (
		exec    execution.Execution
		status  string
		input   []byte
		steps   []byte
		outputs []byte
		execCtx []byte
	)
	err := row.Scan(
		&exec.ID, &exec.WorkflowID, &exec.WorkspaceID, &exec.AgentID,
		&status, &exec.Version,
		&input, &steps, &outputs, &execCtx,
		&exec.PausedStepID, &exec.ForkedFrom, &exec.Error,
		&exec.CreatedAt, &exec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	exec.Status = execution.Status(status)

	if err := json.Unmarshal(input, &exec.Input); err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	if err := json.Unmarshal(steps, &exec.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(outputs, &exec.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshal outputs: %w", err)
	}
	if err := json.Unmarshal(execCtx, &exec.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	if exec.Steps == nil {
		exec.Steps = make(map[string]*execution.StepState)
	}
	if exec.Outputs == nil {
		exec.Outputs = make(map[string]any)
	}
	if exec.Context == nil {
		exec.Context = make(map[string]any)
	}
	return &exec, nil
}

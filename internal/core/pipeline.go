package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/grc/internal/logging"
	"github.com/JonMunkholm/grc/internal/metrics"
)

// Pipeline imports and exports spreadsheet files against a Store.
type Pipeline struct {
	store       Store
	notifier    Notifier
	auth        Authorizer
	limiter     *ImportLimiter
	maxFileSize int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier sets the collaborator told about committed records.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithAuthorizer enables per-block permission checks.
func WithAuthorizer(a Authorizer) Option {
	return func(p *Pipeline) { p.auth = a }
}

// WithLimiter bounds concurrent imports.
func WithLimiter(l *ImportLimiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// WithMaxFileSize rejects files larger than n bytes.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) { p.maxFileSize = n }
}

// NewPipeline returns a pipeline over store.
func NewPipeline(store Store, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Import reads a CSV or XLSX file and imports it. Files that are neither
// are reported in ImportResult.Errors rather than as an error.
func (p *Pipeline) Import(ctx context.Context, fileName string, r io.Reader, opts Options) (*ImportResult, error) {
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer p.limiter.Release()
	}

	rows, err := ReadRows(fileName, r, p.maxFileSize)
	if errors.Is(err, ErrUnsupportedFile) {
		return &ImportResult{
			FileName: fileName,
			DryRun:   opts.DryRun,
			Errors:   []Diagnostic{Errorf(CodeWrongFileType, 0, "", fileName)},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return p.ImportRows(ctx, fileName, rows, opts)
}

// ImportRows imports already parsed rows. Blocks are processed in file order
// and each is committed before the next starts, so later blocks can refer to
// records created by earlier ones.
//
// A returned error is technical (for example the store is unreachable). The
// result then holds the blocks processed before the failure.
func (p *Pipeline) ImportRows(ctx context.Context, fileName string, rows [][]string, opts Options) (*ImportResult, error) {
	start := time.Now()
	logger := logging.WithFields(ctx, "file", fileName, "dry_run", opts.DryRun)

	result := &ImportResult{FileName: fileName, DryRun: opts.DryRun}
	raw, warnings := splitBlocks(rows)
	result.Warnings = warnings
	if len(raw) == 0 && len(warnings) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, fileName)
	}

	sess := newSession(p.store)
	for _, rb := range raw {
		br, err := p.importBlock(ctx, sess, rb, opts)
		if br != nil {
			result.Blocks = append(result.Blocks, *br)
		}
		if err != nil {
			logger.Error("import aborted", "block", rb.name, "line", rb.line, "error", err)
			return result, fmt.Errorf("import %s: block %q at line %d: %w", fileName, rb.name, rb.line, err)
		}
	}

	metrics.ObserveImport(opts.DryRun, time.Since(start))
	created, updated, ignored, failed := result.Totals()
	logger.Info("import finished",
		"blocks", len(result.Blocks),
		"created", created,
		"updated", updated,
		"ignored", ignored,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (p *Pipeline) importBlock(ctx context.Context, sess *session, rb *rawBlock, opts Options) (*BlockResult, error) {
	br := &BlockResult{ObjectType: rb.name, Line: rb.line}

	def, ok := Get(rb.name)
	if !ok {
		br.BlockErrors = append(br.BlockErrors, Errorf(CodeWrongObjectType, rb.line, "", rb.name))
		rejectRows(br, rb)
		metrics.ObserveBlock("unknown", "rejected")
		return br, nil
	}
	br.ObjectType = def.Name

	if def.ExportOnly {
		br.BlockErrors = append(br.BlockErrors, Errorf(CodeNotImportable, rb.line, "", def.Name))
		rejectRows(br, rb)
		metrics.ObserveBlock(def.TypeName, "rejected")
		return br, nil
	}

	if p.auth != nil {
		allowed, err := p.auth.Allowed(opts.Subject, def.TypeName, PermImport)
		if err != nil {
			return br, fmt.Errorf("authorize: %w", err)
		}
		if !allowed {
			br.BlockErrors = append(br.BlockErrors, Errorf(CodePermissionDenied, rb.line, "", def.Name))
			rejectRows(br, rb)
			metrics.ObserveBlock(def.TypeName, "rejected")
			return br, nil
		}
	}

	blk, err := newBlock(def, rb)
	if err != nil {
		return br, err
	}
	br.BlockWarnings = blk.warnings
	if len(blk.errors) > 0 {
		br.BlockErrors = append(br.BlockErrors, blk.errors...)
		rejectRows(br, rb)
		metrics.ObserveBlock(def.TypeName, "rejected")
		return br, nil
	}

	converters := make([]*RowConverter, 0, len(rb.rows))
	var accepted []*RowConverter
	for _, row := range rb.rows {
		if err := ctx.Err(); err != nil {
			revertAll(sess, accepted)
			return br, err
		}
		rc := newRowConverter(sess, blk, row.line, blk.cells(row))
		if err := rc.convert(ctx); err != nil {
			revertAll(sess, accepted)
			return br, err
		}
		if !rc.ignored {
			sess.stage(rc)
			accepted = append(accepted, rc)
		}
		converters = append(converters, rc)
	}

	outcome := "committed"
	switch {
	case opts.AllOrNothing && len(accepted) < len(converters):
		var lines []int
		for _, rc := range converters {
			if rc.ignored {
				lines = append(lines, rc.line)
			}
		}
		revertAll(sess, accepted)
		for _, rc := range accepted {
			rc.ignored = true
		}
		accepted = nil
		br.BlockErrors = append(br.BlockErrors, Errorf(CodeBlockIgnored, rb.line, "", joinLines(lines)))
		outcome = "rejected"
	case opts.DryRun:
		outcome = "dry_run"
	case len(accepted) > 0:
		if err := p.commit(ctx, sess, br, accepted); err != nil {
			return br, err
		}
		if br.Failed > 0 {
			outcome = "failed"
		}
	}

	var committed []CommittedObject
	for _, rc := range converters {
		r := rc.result()
		switch r.Action {
		case ActionCreated:
			br.Created++
		case ActionUpdated:
			br.Updated++
		default:
			br.Ignored++
		}
		if !rc.ignored && !opts.DryRun {
			committed = append(committed, CommittedObject{Object: rc.obj, Action: r.Action})
		}
		metrics.ObserveRow(def.TypeName, string(r.Action))
		br.Rows = append(br.Rows, r)
	}
	metrics.ObserveBlock(def.TypeName, outcome)

	if len(committed) > 0 && p.notifier != nil {
		if err := p.notifier.NotifyImported(ctx, committed); err != nil {
			logging.FromContext(ctx).Warn("post-import notification failed",
				"object_type", def.TypeName, "error", err)
		}
	}
	return br, nil
}

// commit writes the accepted rows of a block. Rows the store rejects are
// marked failed and ignored; a failed transaction fails every row.
func (p *Pipeline) commit(ctx context.Context, sess *session, br *BlockResult, accepted []*RowConverter) error {
	staged := make([]StagedRow, len(accepted))
	for i, rc := range accepted {
		staged[i] = rc.stagedRow()
	}

	rowErrs, err := p.store.CommitBlock(ctx, staged)
	if err == nil && len(rowErrs) != len(staged) {
		err = fmt.Errorf("commit returned %d results for %d rows", len(rowErrs), len(staged))
	}

	var (
		firstErr error
		failed   []*RowConverter
	)
	for i := len(accepted) - 1; i >= 0; i-- {
		rowErr := err
		if rowErr == nil {
			rowErr = rowErrs[i]
		}
		if rowErr == nil {
			continue
		}
		rc := accepted[i]
		sess.revert(rc)
		failed = append(failed, rc)
		rc.ignored = true
		rc.Add(Errorf(CodeCommitFailed, rc.line, "", FormatUserError(rowErr)))
		br.Failed++
		br.FailedLines = append([]int{rc.line}, br.FailedLines...)
		firstErr = rowErr
	}
	for _, rc := range failed {
		sess.forget(rc)
	}

	if firstErr != nil {
		br.BlockErrors = append(br.BlockErrors,
			Errorf(CodeBlockFailed, br.Line, "", joinLines(br.FailedLines), FormatUserError(firstErr)))
		logging.FromContext(ctx).Error("block commit failed",
			"object_type", br.ObjectType,
			"failed_lines", br.FailedLines,
			"error", firstErr,
		)
	}
	if err != nil && errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func revertAll(sess *session, rcs []*RowConverter) {
	for i := len(rcs) - 1; i >= 0; i-- {
		sess.revert(rcs[i])
	}
}

// rejectRows marks every data row of a rejected block as ignored.
func rejectRows(br *BlockResult, rb *rawBlock) {
	for _, row := range rb.rows {
		br.Rows = append(br.Rows, RowResult{Line: row.line, Action: ActionIgnored})
		br.Ignored++
	}
}

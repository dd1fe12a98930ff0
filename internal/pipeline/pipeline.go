// Package pipeline runs the repair passes over one document in a fixed order
// and decides whether the result is written back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"sketch-repair/internal/editor"
	"sketch-repair/internal/fixer"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

// Pass names, in execution order.
const (
	PassEncoding     = "encoding"
	PassMarkup       = "markup"
	PassStyle        = "style-inference"
	PassCSS          = "css"
	PassDelimiters   = "delimiters"
	PassCDN          = "cdn"
	PassShader       = "shader"
	PassUndefined    = "undefined-variables"
	PassNotAFunction = "not-a-function"
)

const lockRetryInterval = 100 * time.Millisecond

// Options configures a Pipeline. Nil oracles disable the passes' oracle path.
type Options struct {
	Suggester    oracle.Suggester
	Page         oracle.PageRunner
	BackupSuffix string
	Lock         bool
	Logger       logger.Logger
}

// Pipeline repairs sketch documents. It holds no per-document state and may
// be reused for several documents, one at a time.
type Pipeline struct {
	suggest  oracle.Suggester
	page     oracle.PageRunner
	backups  *editor.BackupManager
	encoding *editor.EncodingHandler
	lock     bool
	log      logger.Logger
}

// New creates a Pipeline from opts.
func New(opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	suggest := opts.Suggester
	if suggest == nil {
		suggest = oracle.Disabled
	}
	page := opts.Page
	if page == nil {
		page = oracle.NoPage
	}
	return &Pipeline{
		suggest:  suggest,
		page:     page,
		backups:  editor.NewBackupManager(opts.BackupSuffix, log),
		encoding: editor.NewEncodingHandler(log),
		lock:     opts.Lock,
		log:      log,
	}
}

// BackupPath returns where Repair writes the backup of path.
func (p *Pipeline) BackupPath(path string) string {
	return p.backups.BackupPath(path)
}

// Restore copies the backup of path over path.
func (p *Pipeline) Restore(path string) error {
	if !p.backups.HasBackup(path) {
		return types.NewAppErrorWithDetails(types.ErrFileNotFound, "no backup to restore", p.backups.BackupPath(path), nil)
	}
	return p.backups.Restore(path)
}

// Repair loads path, writes its backup, runs every pass and overwrites path
// when at least one fix was applied. A missing file, a held lock or a failed
// backup or write is returned as an error; pass failures are not.
func (p *Pipeline) Repair(ctx context.Context, path string) (*types.RepairResult, error) {
	if p.lock {
		unlock, err := p.acquire(ctx, path)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	data, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	backupPath, err := p.backups.WriteBackup(path, data)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to write backup", err)
	}

	result := p.run(ctx, path, data)
	result.BackupPath = backupPath

	if result.Tally == 0 {
		p.log.Info("no fixes applied, document left untouched", logger.String("path", path))
		return result, nil
	}
	if err := writeDocument(path, result.Repaired); err != nil {
		return result, err
	}
	result.Written = true
	p.log.Info("document repaired",
		logger.String("path", path),
		logger.Int("tally", result.Tally))
	return result, nil
}

// Check runs every pass over path without a backup, a lock or a write.
func (p *Pipeline) Check(ctx context.Context, path string) (*types.RepairResult, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, path, data), nil
}

// RepairText runs every pass over text in memory. dir is where the page
// oracle writes its temporary copy, so relative resources resolve; empty
// means the system temp dir.
func (p *Pipeline) RepairText(ctx context.Context, text, dir string) *types.RepairResult {
	return p.runPasses(ctx, &types.RepairResult{Original: text}, text, dir)
}

func (p *Pipeline) run(ctx context.Context, path string, data []byte) *types.RepairResult {
	result := &types.RepairResult{Path: path, Original: string(data)}

	text, enc, changed, err := p.encoding.Normalize(data)
	pr := types.PassResult{Name: PassEncoding}
	switch {
	case err != nil:
		pr.Err = err.Error()
	case changed:
		pr.Fixes = 1
		pr.Records = []types.FixRecord{{Pass: PassEncoding, Kind: PassEncoding, Detail: "converted from " + enc}}
	}
	result.Passes = append(result.Passes, pr)
	result.Tally += pr.Fixes

	return p.runPasses(ctx, result, text, filepath.Dir(path))
}

func (p *Pipeline) runPasses(ctx context.Context, result *types.RepairResult, doc, dir string) *types.RepairResult {
	runID := uuid.NewString()
	log := p.log
	log.Info("repair started",
		logger.String("run", runID),
		logger.String("path", result.Path),
		logger.String("suggester", oracle.Describe(p.suggest)))

	events := newEventCache(p.page, dir, log)
	passes := []struct {
		name string
		fn   func(string) fixer.Result
	}{
		{PassMarkup, func(d string) fixer.Result { return fixer.NormalizeMarkup(d, log) }},
		{PassStyle, func(d string) fixer.Result { return fixer.InferStyleBlocks(d, log) }},
		{PassCSS, func(d string) fixer.Result { return fixer.NewCSSFixer(p.suggest, log).Fix(ctx, d) }},
		{PassDelimiters, func(d string) fixer.Result { return fixer.NewDelimiterFixer(p.suggest, log).Fix(ctx, d) }},
		{PassCDN, func(d string) fixer.Result {
			c := events.classify(ctx, d)
			return fixer.NewCDNFixer(log).Fix(d, c.FailedRequests, c.Undefined)
		}},
		{PassShader, func(d string) fixer.Result {
			c := events.classify(ctx, d)
			if len(c.ShaderErrors) == 0 {
				return fixer.Result{Text: d}
			}
			return fixer.NewShaderFixer(p.suggest, log).Fix(ctx, d, c.ShaderErrors)
		}},
		{PassUndefined, func(d string) fixer.Result {
			return fixer.NewUndefinedFixer(p.suggest, log).Fix(ctx, d, events.classify(ctx, d).Undefined)
		}},
		{PassNotAFunction, func(d string) fixer.Result {
			return fixer.NewNotAFunctionFixer(p.suggest, log).Fix(ctx, d, events.classify(ctx, d).NotFunctions)
		}},
	}

	preempted := false
	for _, pass := range passes {
		if preempted {
			result.Passes = append(result.Passes, types.PassResult{Name: pass.name, Skipped: true})
			continue
		}
		var pr types.PassResult
		doc, pr = p.runPass(pass.name, doc, pass.fn)
		result.Passes = append(result.Passes, pr)
		result.Tally += pr.Fixes

		if pass.name == PassShader && pr.Fixes > 0 {
			log.Info("shader repaired, skipping remaining passes", logger.String("run", runID))
			preempted = true
		}
	}

	result.Repaired = doc
	log.Info("repair finished",
		logger.String("run", runID),
		logger.Int("tally", result.Tally),
		logger.Int("pageRuns", events.runs))
	return result
}

// runPass runs one pass over doc. A panic, or output that is no longer valid
// UTF-8, leaves doc unchanged and counts zero fixes.
func (p *Pipeline) runPass(name, doc string, fn func(string) fixer.Result) (out string, pr types.PassResult) {
	pr.Name = name
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pass failed", fmt.Errorf("panic: %v", r), logger.String("pass", name))
			out = doc
			pr = types.PassResult{Name: name, Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	res := fn(doc)
	if utf8.ValidString(doc) && !utf8.ValidString(res.Text) {
		p.log.Warn("pass produced invalid UTF-8, discarded", logger.String("pass", name))
		return doc, types.PassResult{Name: name, Err: "pass produced invalid UTF-8"}
	}
	pr.Fixes = res.Fixes()
	pr.Records = res.Records
	p.log.Debug("pass finished", logger.String("pass", name), logger.Int("fixes", pr.Fixes))
	return res.Text, pr
}

// acquire takes an exclusive lock file next to path and returns its release.
func (p *Pipeline) acquire(ctx context.Context, path string) (func(), error) {
	lockPath := path + ".lock"
	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, types.NewAppError(types.ErrLock, "failed to lock document", err)
	}
	if !locked {
		return nil, types.NewAppErrorWithDetails(types.ErrLock, "document is locked by another run", lockPath, nil)
	}
	return func() {
		if err := fileLock.Unlock(); err != nil {
			p.log.Warn("failed to release lock", logger.Err(err))
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			p.log.Debug("failed to remove lock file", logger.Err(err))
		}
	}, nil
}

func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "document not found", path, err)
		}
		return nil, types.NewAppError(types.ErrInvalidInput, "failed to read document", err)
	}
	return data, nil
}

func writeDocument(path, text string) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(text), mode); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write repaired document", err)
	}
	return nil
}

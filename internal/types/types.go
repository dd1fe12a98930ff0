// Package types defines core data types and enums for the sketch repair pipeline.
package types

import "fmt"

// Config 应用配置
type Config struct {
	Suggest SuggestConfig `toml:"suggest"`
	Browser BrowserConfig `toml:"browser"`
	Log     LogConfig     `toml:"log"`
	Repair  RepairConfig  `toml:"repair"`
}

// SuggestConfig configures the suggestion oracle (an OpenAI compatible chat model).
type SuggestConfig struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// BrowserConfig configures the page-execution oracle (headless Chromium).
type BrowserConfig struct {
	Enabled        bool   `toml:"enabled"`
	Bin            string `toml:"bin"`
	MaxWaitSeconds int    `toml:"max_wait_seconds"`
	SettleMillis   int    `toml:"settle_ms"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"` // rotate the file past this size, 0 never rotates
	MaxBackups int    `toml:"max_backups"`
}

// RepairConfig configures persistence of the repaired document.
type RepairConfig struct {
	BackupSuffix string `toml:"backup_suffix"`
	Lock         bool   `toml:"lock"`
}

// BlockKind 内嵌块类型
type BlockKind string

const (
	BlockScript BlockKind = "script"
	BlockStyle  BlockKind = "style"
)

// EmbeddedBlock is a contiguous span of the document delimited by an opening and
// closing tag. Offsets index into the document text the block was extracted from;
// blocks are recomputed after every mutation and never cached.
type EmbeddedBlock struct {
	Kind         BlockKind `json:"kind"`
	Attrs        string    `json:"attrs"`
	Start        int       `json:"start"`         // offset of the opening tag
	ContentStart int       `json:"content_start"` // offset of the first content byte
	ContentEnd   int       `json:"content_end"`   // offset of the closing tag
	End          int       `json:"end"`           // offset just past the closing tag
	StartLine    int       `json:"start_line"`    // 1-based document line of ContentStart
	Content      string    `json:"content"`
}

// IssueKind 问题类型
type IssueKind string

const (
	IssueMissingClose   IssueKind = "missing-close"
	IssueExtraClose     IssueKind = "extra-close"
	IssueUndefinedVar   IssueKind = "undefined-variable"
	IssueNotAFunction   IssueKind = "not-a-function"
	IssueMalformedCSS   IssueKind = "malformed-css"
	IssueEncodedMarkup  IssueKind = "encoded-markup"
	IssueShaderCompile  IssueKind = "shader-compile"
	IssueBrokenCDN      IssueKind = "broken-cdn"
	IssueUnwrappedStyle IssueKind = "unwrapped-style"
)

// Issue is one detected defect. Index is the character offset within the span it
// was detected in; Line and Column are 1-based and zero when unknown.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Index  int       `json:"index"`
	Line   int       `json:"line,omitempty"`
	Column int       `json:"column,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// String returns a compact description used in prompts and logs
func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("%s at line %d, column %d", i.Kind, i.Line, i.Column)
	}
	if i.Detail != "" {
		return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s at offset %d", i.Kind, i.Index)
}

// Patch is a proposed replacement returned by the suggestion oracle. Either
// LineNumber or the StartLine/EndLine range is set (1-based).
type Patch struct {
	LineNumber      int    `json:"lineNumber"`
	StartLine       int    `json:"startLine,omitempty"`
	EndLine         int    `json:"endLine,omitempty"`
	OriginalText    string `json:"originalText"`
	ReplacementText string `json:"replacementText"`
	Explanation     string `json:"explanation,omitempty"`
}

// IsRange reports whether the patch targets a line range instead of a single line
func (p Patch) IsRange() bool {
	return p.StartLine > 0 && p.EndLine >= p.StartLine
}

// EventType 页面执行事件类型
type EventType string

const (
	EventPageError     EventType = "pageerror"
	EventConsoleError  EventType = "console-error"
	EventRequestFailed EventType = "requestfailed"
)

// ErrorEvent is one runtime error collected by the page-execution oracle.
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
	Stack   string    `json:"stack,omitempty"`
	URL     string    `json:"url,omitempty"`
}

// FixRecord is the structured record of one applied (or skipped) fix.
type FixRecord struct {
	Pass    string `json:"pass"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail"`
	Line    int    `json:"line,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// PassResult is the outcome of a single pipeline pass.
type PassResult struct {
	Name    string      `json:"name"`
	Fixes   int         `json:"fixes"`
	Records []FixRecord `json:"records,omitempty"`
	Err     string      `json:"error,omitempty"`
	Skipped bool        `json:"skipped,omitempty"`
}

// RepairResult 修复结果
type RepairResult struct {
	Path       string       `json:"path"`
	BackupPath string       `json:"backup_path,omitempty"`
	Tally      int          `json:"tally"`
	Passes     []PassResult `json:"passes"`
	Written    bool         `json:"written"`
	Original   string       `json:"-"`
	Repaired   string       `json:"-"`
}

// ExitCode maps the tally to the process exit code: 0 when at least one fix was
// applied, 1 otherwise.
func (r *RepairResult) ExitCode() int {
	if r != nil && r.Tally > 0 {
		return 0
	}
	return 1
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrOracle       ErrorCode = "ORACLE_ERROR"
	ErrNoCredential ErrorCode = "NO_CREDENTIAL"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrLock         ErrorCode = "LOCK_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

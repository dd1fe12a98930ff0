package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

const brokenSketch = `<html>
<head>
<title>Fish</title>
</head>
<body>
<script>
function setup() {
  createFish(p.random(3);
}
</script>
</body>
</html>
`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readDoc(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func replying(text string) oracle.Suggester {
	return oracle.SuggesterFunc(func(context.Context, oracle.Prompt) (string, error) {
		return text, nil
	})
}

func staticPage(events ...types.ErrorEvent) (oracle.PageRunner, *int) {
	calls := new(int)
	return oracle.PageRunnerFunc(func(_ context.Context, path string) ([]types.ErrorEvent, error) {
		*calls++
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return events, nil
	}), calls
}

func passByName(r *types.RepairResult, name string) types.PassResult {
	for _, p := range r.Passes {
		if p.Name == name {
			return p
		}
	}
	return types.PassResult{}
}

func TestRepair_ProseSuggestionFallsBackToDeterministic(t *testing.T) {
	path := writeDoc(t, brokenSketch)
	p := New(Options{Suggester: replying("Just add a parenthesis."), Logger: logger.Nop()})

	res, err := p.Repair(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tally)
	assert.Equal(t, 0, res.ExitCode())
	assert.True(t, res.Written)
	assert.Equal(t, 1, passByName(res, PassDelimiters).Fixes)

	assert.Contains(t, readDoc(t, path), "  createFish(p.random(3));\n")
	assert.Equal(t, path+".backup", res.BackupPath)
	assert.Equal(t, brokenSketch, readDoc(t, res.BackupPath))
}

func TestRepair_Idempotent(t *testing.T) {
	path := writeDoc(t, brokenSketch)
	p := New(Options{Logger: logger.Nop()})

	_, err := p.Repair(context.Background(), path)
	require.NoError(t, err)
	repaired := readDoc(t, path)

	res, err := p.Repair(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, res.Tally)
	assert.Equal(t, 1, res.ExitCode())
	assert.False(t, res.Written)
	assert.Equal(t, repaired, readDoc(t, path))
}

func TestRepair_BackupWrittenWithoutFixes(t *testing.T) {
	clean := "<html><body><p>fine</p></body></html>\n"
	path := writeDoc(t, clean)

	res, err := New(Options{Logger: logger.Nop()}).Repair(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, res.Tally)
	assert.FileExists(t, path+".backup")
	assert.Equal(t, clean, readDoc(t, path))
}

func TestRepair_CustomBackupSuffix(t *testing.T) {
	path := writeDoc(t, brokenSketch)
	res, err := New(Options{BackupSuffix: ".orig", Logger: logger.Nop()}).Repair(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path+".orig", res.BackupPath)
	assert.FileExists(t, path+".orig")
}

func TestRepair_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.html")
	res, err := New(Options{Logger: logger.Nop()}).Repair(context.Background(), path)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, res.ExitCode())

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrFileNotFound, appErr.Code)
	assert.NoFileExists(t, path+".backup")
}

func TestRepair_LockHeld(t *testing.T) {
	path := writeDoc(t, brokenSketch)
	held := flock.New(path + ".lock")
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = New(Options{Lock: true, Logger: logger.Nop()}).Repair(ctx, path)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrLock, appErr.Code)
	assert.Equal(t, brokenSketch, readDoc(t, path))
}

func TestRepair_LockReleased(t *testing.T) {
	path := writeDoc(t, brokenSketch)
	_, err := New(Options{Lock: true, Logger: logger.Nop()}).Repair(context.Background(), path)
	require.NoError(t, err)
	assert.NoFileExists(t, path+".lock")
}

func TestRepair_ShaderFixPreemptsLaterPasses(t *testing.T) {
	doc := `<html>
<head>
<script type="x-shader/x-fragment" id="fs">
uniform float t
void main() { gl_FragColor = vec4(t); }
</script>
</head>
<body>
<script>
score += 1;
</script>
</body>
</html>
`
	page, _ := staticPage(
		types.ErrorEvent{Type: types.EventConsoleError, Message: "ERROR: 0:2: 'void' : syntax error"},
		types.ErrorEvent{Type: types.EventPageError, Message: "ReferenceError: score is not defined"},
	)
	path := writeDoc(t, doc)

	res, err := New(Options{Page: page, Logger: logger.Nop()}).Repair(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, passByName(res, PassShader).Fixes)
	assert.True(t, passByName(res, PassUndefined).Skipped)
	assert.True(t, passByName(res, PassNotAFunction).Skipped)

	got := readDoc(t, path)
	assert.Contains(t, got, "precision mediump float;\nuniform float t;\n")
	assert.NotContains(t, got, "var score")
}

func TestRepair_UndefinedVariableFromPage(t *testing.T) {
	doc := "<html>\n<body>\n<script>\nscore += 1;\n</script>\n</body>\n</html>\n"
	page, calls := staticPage(types.ErrorEvent{
		Type:    types.EventPageError,
		Message: "ReferenceError: score is not defined",
		Stack:   "    at file:///tmp/index.html:4:1",
	})
	path := writeDoc(t, doc)

	res, err := New(Options{Page: page, Logger: logger.Nop()}).Repair(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tally)
	assert.Contains(t, readDoc(t, path), "<script>\nvar score = {};\nscore += 1;\n</script>")
	// One run for the original text, one after the undefined-variable fix.
	assert.Equal(t, 2, *calls)
}

func TestRepair_PageRunsOncePerText(t *testing.T) {
	page, calls := staticPage()
	path := writeDoc(t, "<html><body><script>\nlet a = 1;\n</script></body></html>")

	_, err := New(Options{Page: page, Logger: logger.Nop()}).Repair(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
}

func TestRepair_PageFailureIsNotFatal(t *testing.T) {
	page := oracle.PageRunnerFunc(func(context.Context, string) ([]types.ErrorEvent, error) {
		return nil, errors.New("chromium not found")
	})
	path := writeDoc(t, brokenSketch)
	rec := logger.NewRecorder()

	res, err := New(Options{Page: page, Logger: rec}).Repair(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tally)
	assert.True(t, rec.Contains("page execution failed"))
}

func TestRepair_PanickingPassIsContained(t *testing.T) {
	doc := "<html>\n<head>&lt;script src=\"p5.js\"&gt;\n<style>\nbody {\n  color: red\n  margin: 0\n}\n: 1px;\n</style>\n</head>\n</html>\n"
	boom := oracle.SuggesterFunc(func(context.Context, oracle.Prompt) (string, error) {
		panic("suggester exploded")
	})
	path := writeDoc(t, doc)

	res, err := New(Options{Suggester: boom, Logger: logger.Nop()}).Repair(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, passByName(res, PassMarkup).Fixes)
	css := passByName(res, PassCSS)
	assert.Zero(t, css.Fixes)
	assert.Contains(t, css.Err, "suggester exploded")
	assert.Equal(t, 1, res.Tally)
	assert.Contains(t, readDoc(t, path), "color: red\n  margin: 0\n")
}

func TestRepair_EncodingPass(t *testing.T) {
	path := writeDoc(t, "\xEF\xBB\xBF<html><body>ok</body></html>")
	res, err := New(Options{Logger: logger.Nop()}).Repair(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, passByName(res, PassEncoding).Fixes)
	assert.Equal(t, "<html><body>ok</body></html>", readDoc(t, path))
}

func TestCheck_DoesNotWrite(t *testing.T) {
	path := writeDoc(t, brokenSketch)
	res, err := New(Options{Logger: logger.Nop()}).Check(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Tally)
	assert.False(t, res.Written)
	assert.Contains(t, res.Repaired, "createFish(p.random(3));")
	assert.Equal(t, brokenSketch, readDoc(t, path))
	assert.NoFileExists(t, path+".backup")
}

func TestRepairText(t *testing.T) {
	res := New(Options{Logger: logger.Nop()}).RepairText(context.Background(), `&lt;script src="sketch.js"&gt;`, "")
	assert.Equal(t, `<script src="sketch.js"></script>`, res.Repaired)
	assert.Equal(t, 1, res.Tally)
}

func TestRestore(t *testing.T) {
	path := writeDoc(t, brokenSketch)
	p := New(Options{Logger: logger.Nop()})

	err := p.Restore(path)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrFileNotFound, appErr.Code)

	_, err = p.Repair(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, p.Restore(path))
	assert.Equal(t, brokenSketch, readDoc(t, path))
}

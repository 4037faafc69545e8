package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	base := errors.New("disk full")

	plain := NewExitError(ExitCommandError, "cannot write")
	assert.Equal(t, "cannot write", plain.Error())
	assert.Nil(t, plain.Unwrap())

	wrapped := WrapExitError(ExitFailure, "scenario failed", base)
	assert.Equal(t, "scenario failed: disk full", wrapped.Error())
	assert.Equal(t, base, wrapped.Unwrap())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))

	// Wrapped ExitErrors still carry their code.
	inner := NewExitError(ExitCommandError, "inner")
	assert.Equal(t, ExitCommandError, GetExitCode(inner))
}

func TestOutputFormatter_SuccessText(t *testing.T) {
	buf := new(bytes.Buffer)
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success("all good"))
	assert.Equal(t, "all good\n", buf.String())
}

func TestOutputFormatter_SuccessJSON(t *testing.T) {
	buf := new(bytes.Buffer)
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"count": 3}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_ErrorJSON(t *testing.T) {
	buf := new(bytes.Buffer)
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error("E001", "something broke", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "something broke", resp.Error.Message)
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := new(bytes.Buffer)
	diag := new(bytes.Buffer)

	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}
	f.VerboseLog("checked %d files", 4)
	assert.Empty(t, out.String(), "diagnostics must not corrupt JSON output")
	assert.Equal(t, "checked 4 files\n", diag.String())

	quiet := &OutputFormatter{Format: "text", Writer: out}
	quiet.VerboseLog("hidden")
	assert.Empty(t, out.String())
}

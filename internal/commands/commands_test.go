package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	celldockerrors "celldock/internal/errors"
)

type fakeEnv struct {
	checkpoint string
	history    []StageSummary
	names      []string
	tagged     map[string]string
	tagErr     error
}

func (e *fakeEnv) Checkpoint() (string, bool) { return e.checkpoint, e.checkpoint != "" }
func (e *fakeEnv) History() []StageSummary    { return e.history }
func (e *fakeEnv) CommandNames() []string     { return e.names }
func (e *fakeEnv) TagImage(_ context.Context, id, ref string) error {
	if e.tagErr != nil {
		return e.tagErr
	}
	if e.tagged == nil {
		e.tagged = make(map[string]string)
	}
	e.tagged[ref] = id
	return nil
}

// countingCommand records whether Execute ran
type countingCommand struct {
	contract Contract
	calls    int
}

func (c *countingCommand) Name() string        { return "count" }
func (c *countingCommand) Description() string { return "test command" }
func (c *countingCommand) Contract() Contract  { return c.contract }
func (c *countingCommand) Execute(context.Context, Invocation, Env) (Result, error) {
	c.calls++
	return Result{Display: "ran"}, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeEnv) {
	t.Helper()
	registry := NewDefaultRegistry()
	return NewDispatcher(registry, "", nil), &fakeEnv{names: registry.Names()}
}

func requireCode(t *testing.T, err error, code celldockerrors.ErrorCode) *celldockerrors.CelldockError {
	t.Helper()
	require.Error(t, err)
	celldockErr, ok := celldockerrors.AsCelldockError(err)
	require.True(t, ok, "expected CelldockError, got %T", err)
	assert.Equal(t, code, celldockErr.Code)
	return celldockErr
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Invocation
	}{
		{
			name:  "name is lower-cased",
			input: "INSTALL apt-get curl",
			want:  Invocation{Name: "install", Args: []string{"apt-get", "curl"}, Flags: map[string]string{}},
		},
		{
			name:  "long flags with and without value",
			input: "image --short --format=json",
			want: Invocation{
				Name:  "image",
				Flags: map[string]string{"short": "", "format": "json"},
				Longs: []string{"short", "format"},
			},
		},
		{
			name:  "repeated long flag keeps first position and last value",
			input: "image --format=a --short --format=b",
			want: Invocation{
				Name:  "image",
				Flags: map[string]string{"short": "", "format": "b"},
				Longs: []string{"format", "short"},
			},
		},
		{
			name:  "grouped shorts",
			input: "image -sv",
			want:  Invocation{Name: "image", Flags: map[string]string{}, Shorts: []string{"s", "v"}},
		},
		{
			name:  "double dash ends flags",
			input: "install apt-get -- -weird",
			want:  Invocation{Name: "install", Args: []string{"apt-get", "-weird"}, Flags: map[string]string{}},
		},
		{
			name:  "extra whitespace",
			input: "  install\tapt-get   curl  ",
			want:  Invocation{Name: "install", Args: []string{"apt-get", "curl"}, Flags: map[string]string{}},
		},
		{
			name:  "empty",
			input: "   ",
			want:  Invocation{Flags: map[string]string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.input))
		})
	}
}

func TestDispatch_InstallProducesSingleInstruction(t *testing.T) {
	d, env := newTestDispatcher(t)

	result, err := d.Dispatch(context.Background(), "%install apt-get curl git", env)
	require.NoError(t, err)

	want := "RUN apt-get update && apt-get install -y curl git && rm -rf /var/lib/apt/lists/*"
	assert.Equal(t, []string{want}, result.Instructions)
	assert.Equal(t, want, result.NextInput)
	assert.False(t, result.DisplayOnly())
}

func TestDispatch_InstallManagerIsCaseInsensitive(t *testing.T) {
	d, env := newTestDispatcher(t)

	result, err := d.Dispatch(context.Background(), "%Install APT-GET vim", env)
	require.NoError(t, err)
	assert.Equal(t, []string{"RUN apt-get update && apt-get install -y vim && rm -rf /var/lib/apt/lists/*"}, result.Instructions)
}

func TestDispatch_InstallUnsupportedManager(t *testing.T) {
	d, env := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), "%install yum curl", env)
	celldockErr := requireCode(t, err, celldockerrors.ErrorCodeUnsupportedOption)
	assert.Equal(t, "Package manager not available (currently available: apt-get)", celldockErr.Display())
	assert.True(t, celldockerrors.IsDispatchError(err))
}

func TestDispatch_ArgumentCount(t *testing.T) {
	d, env := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), "%install apt-get", env)
	celldockErr := requireCode(t, err, celldockerrors.ErrorCodeArgumentCount)
	assert.Contains(t, celldockErr.Details, "at least 2")
	assert.Contains(t, celldockErr.Details, "missing package")
}

func TestDispatch_ValidationHappensBeforeExecute(t *testing.T) {
	registry := NewRegistry()
	cmd := &countingCommand{contract: Contract{
		Args:    []string{"n"},
		MinArgs: 1,
		Validators: map[int]Validator{
			0: {Check: func(s string) bool { return s == "ok" }, Expect: "the word ok"},
		},
		Flags: []string{"known"},
	}}
	require.NoError(t, registry.Register(cmd))
	d := NewDispatcher(registry, "!", nil)
	env := &fakeEnv{}

	tests := []struct {
		name string
		cell string
		code celldockerrors.ErrorCode
	}{
		{"too few args", "!count", celldockerrors.ErrorCodeArgumentCount},
		{"validator fails", "!count nope", celldockerrors.ErrorCodeArgumentValidation},
		{"unknown long flag", "!count ok --bogus", celldockerrors.ErrorCodeUnknownFlag},
		{"unknown short flag", "!count ok -x", celldockerrors.ErrorCodeUnknownFlag},
		{"unknown command", "!missing", celldockerrors.ErrorCodeUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), tt.cell, env)
			requireCode(t, err, tt.code)
		})
	}
	assert.Equal(t, 0, cmd.calls)

	result, err := d.Dispatch(context.Background(), "!COUNT ok --known", env)
	require.NoError(t, err)
	assert.Equal(t, "ran", result.Display)
	assert.Equal(t, 1, cmd.calls)
}

func TestDispatch_UnknownFlagNamesFirstOffender(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&countingCommand{contract: Contract{Flags: []string{"known"}}}))
	d := NewDispatcher(registry, "!", nil)

	for i := 0; i < 20; i++ {
		_, err := d.Dispatch(context.Background(), "!count --known --zeta --alpha --mid", &fakeEnv{})
		celldockErr := requireCode(t, err, celldockerrors.ErrorCodeUnknownFlag)
		require.Equal(t, "count does not accept flag --zeta", celldockErr.Details)
	}
}

func TestDispatch_CommandIsASingleLine(t *testing.T) {
	d, env := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), "%install apt-get curl\nRUN echo hi", env)
	celldockErr := requireCode(t, err, celldockerrors.ErrorCodeArgumentValidation)
	assert.Contains(t, celldockErr.Details, `"RUN echo hi"`)

	result, err := d.Dispatch(context.Background(), "%install apt-get curl\n\n  \n", env)
	require.NoError(t, err)
	assert.Equal(t, []string{"RUN apt-get update && apt-get install -y curl && rm -rf /var/lib/apt/lists/*"}, result.Instructions)
}

func TestDispatch_ValidationMessageNamesPosition(t *testing.T) {
	d, env := newTestDispatcher(t)
	env.checkpoint = "sha256:" + "ab"

	_, err := d.Dispatch(context.Background(), "%tag Not_A:Valid:Ref", env)
	celldockErr := requireCode(t, err, celldockerrors.ErrorCodeArgumentValidation)
	assert.Contains(t, celldockErr.Details, "argument 1")
	assert.Contains(t, celldockErr.Details, "image reference")
}

func TestDispatch_LegacyAliasesShareInstallContract(t *testing.T) {
	d, env := newTestDispatcher(t)

	result, err := d.Dispatch(context.Background(), "%apt curl git", env)
	require.NoError(t, err)
	assert.Equal(t, []string{"RUN apt-get update && apt-get install -y curl git && rm -rf /var/lib/apt/lists/*"}, result.Instructions)

	_, err = d.Dispatch(context.Background(), "%pip numpy", env)
	celldockErr := requireCode(t, err, celldockerrors.ErrorCodeUnsupportedOption)
	assert.Contains(t, celldockErr.Display(), "apt-get")

	_, err = d.Dispatch(context.Background(), "%apt", env)
	requireCode(t, err, celldockerrors.ErrorCodeArgumentCount)
}

func TestDispatch_ListCommandsIsAlphabetical(t *testing.T) {
	d, env := newTestDispatcher(t)

	result, err := d.Dispatch(context.Background(), "%commands", env)
	require.NoError(t, err)
	assert.True(t, result.DisplayOnly())
	assert.Equal(t, "commands\nhistory\nimage\ninstall\ntag", result.Display)

	_, err = d.Dispatch(context.Background(), "%commands --all", env)
	requireCode(t, err, celldockerrors.ErrorCodeUnknownFlag)
}

func TestDispatch_Image(t *testing.T) {
	d, env := newTestDispatcher(t)

	result, err := d.Dispatch(context.Background(), "%image", env)
	require.NoError(t, err)
	assert.Equal(t, "no image built yet", result.Display)

	env.checkpoint = "sha256:0123456789abcdef0123"
	result, err = d.Dispatch(context.Background(), "%image", env)
	require.NoError(t, err)
	assert.Equal(t, "sha256:0123456789abcdef0123", result.Display)

	result, err = d.Dispatch(context.Background(), "%image -s", env)
	require.NoError(t, err)
	assert.Equal(t, "0123456789ab", result.Display)
}

func TestDispatch_History(t *testing.T) {
	d, env := newTestDispatcher(t)
	env.history = []StageSummary{
		{Position: 1, ImageID: "sha256:aaaaaaaaaaaaaaaa", Instructions: []string{"FROM alpine"}},
		{Position: 2, BaseImageID: "sha256:aaaaaaaaaaaaaaaa", ImageID: "sha256:bbbbbbbbbbbbbbbb", Instructions: []string{"RUN true"}},
	}

	result, err := d.Dispatch(context.Background(), "%history", env)
	require.NoError(t, err)
	assert.Equal(t, "#1 aaaaaaaaaaaa <- -\n    FROM alpine\n#2 bbbbbbbbbbbb <- aaaaaaaaaaaa\n    RUN true", result.Display)
}

func TestDispatch_Tag(t *testing.T) {
	d, env := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), "%tag myimage", env)
	requireCode(t, err, celldockerrors.ErrorCodeNoCheckpoint)

	env.checkpoint = "sha256:0123456789abcdef0123"
	result, err := d.Dispatch(context.Background(), "%tag myimage", env)
	require.NoError(t, err)
	assert.Equal(t, "Tagged 0123456789ab as myimage:latest", result.Display)
	assert.Equal(t, "sha256:0123456789abcdef0123", env.tagged["myimage:latest"])

	env.tagErr = errors.New("daemon gone")
	_, err = d.Dispatch(context.Background(), "%tag myimage:v2", env)
	requireCode(t, err, celldockerrors.ErrorCodeBuildEngineFailure)
	assert.False(t, celldockerrors.IsDispatchError(err))
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&countingCommand{}))
	require.Error(t, registry.Register(&countingCommand{}))

	_, ok := registry.Lookup("COUNT")
	assert.True(t, ok)
	assert.Equal(t, []string{"count"}, registry.Names())
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", ShortID("sha256:0123456789abcdef"))
	assert.Equal(t, "abc", ShortID("abc"))
}

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestBuildPath(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		params []string
		want   string
		err    bool
	}{
		{name: "full", in: "/api/tasks", want: "/api/tasks"},
		{name: "short", in: "tasks/42", want: "/api/tasks/42"},
		{name: "params", in: "/projects", params: []string{"status=open", "page=2"}, want: "/api/projects?page=2&status=open"},
		{name: "bad param", in: "/tasks", params: []string{"oops"}, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPath(tt.in, tt.params)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestReadData(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(bytes.NewBufferString(` {"title":"stdin"} `))

	raw, err := readData(cmd, "-")
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"stdin"}`, string(raw))

	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"file"}`), 0o600))
	raw, err = readData(cmd, "@"+path)
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"file"}`, string(raw))

	raw, err = readData(cmd, "")
	require.NoError(t, err)
	require.Nil(t, raw)

	_, err = readData(cmd, "{nope")
	require.Error(t, err)
}

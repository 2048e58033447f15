package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "version flag", args: []string{"--version"}, want: "dev"},
		{name: "help flag", args: []string{"--help"}, want: "buildchat chat"},
		{name: "chat help", args: []string{"chat", "--help"}, want: "/reconnect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			rootCmd.SetArgs(tt.args)
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stdout)

			require.NoError(t, rootCmd.Execute())
			assert.Contains(t, stdout.String(), tt.want)
		})
	}
}

func TestLogin_RequiresUsername(t *testing.T) {
	rootCmd.SetArgs([]string{"login"})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	assert.ErrorContains(t, rootCmd.Execute(), "--username is required")
}

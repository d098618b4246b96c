package commands

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []string
		wantErr bool
	}{
		{"plain", "enroll abc", []string{"enroll", "abc"}, false},
		{"double quotes", `unenroll abc --reason "feeling ill"`, []string{"unenroll", "abc", "--reason", "feeling ill"}, false},
		{"single quotes", `searchVolunteers 'Ana Ruiz'`, []string{"searchVolunteers", "Ana Ruiz"}, false},
		{"extra spaces", "  whoami   ", []string{"whoami"}, false},
		{"unclosed quote", `enroll "abc`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommandLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunInteractive_ResetsFlagsBetweenRuns(t *testing.T) {
	var seen []string
	var types []string
	cmd := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			seen = append(seen, types...)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "")

	var out bytes.Buffer
	runInteractive(cmd, []string{"--type", "Social"}, &out)
	runInteractive(cmd, nil, &out)

	assert.Equal(t, []string{"Social"}, seen)
	assert.Empty(t, out.String())
}

func TestInteractiveCmd_RunsCommandsUntilExit(t *testing.T) {
	app := newTestApp(t)
	app.seedUser("ana@example.org")
	app.answer("whoami", "bogus", "exit")

	root := &cobra.Command{Use: "volunteer"}
	root.AddCommand(WhoamiCmd(app.AppContext), InteractiveCmd(app.AppContext))

	out, err := run(root, "interactive")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
	assert.Contains(t, out, "Unknown command: bogus")
	assert.Contains(t, out, "Goodbye!")
}

package cmd

import "testing"

func TestIsDevelopmentBuild(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		devCommandsFlag string
		want            bool
	}{
		{name: "flag disabled", devCommandsFlag: "false", want: false},
		{name: "flag enabled", devCommandsFlag: "true", want: true},
		{name: "invalid flag", devCommandsFlag: "not-a-bool", want: false},
		{name: "empty flag", devCommandsFlag: "", want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := isDevelopmentBuild(tc.devCommandsFlag); got != tc.want {
				t.Fatalf("isDevelopmentBuild(%q) = %v, want %v", tc.devCommandsFlag, got, tc.want)
			}
		})
	}
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"run", "graph", "why", "watch"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("subcommand %q not registered, have %v", want, names)
		}
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level", "log-format", "clipboard"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("persistent flag %q not registered", name)
		}
	}
	if got := rootCmd.Annotations["channel"]; got != "release" {
		t.Fatalf("channel annotation = %q, want release", got)
	}
}

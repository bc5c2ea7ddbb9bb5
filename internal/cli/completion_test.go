package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestCompletionCommand_DisablesDefault(t *testing.T) {
	if !rootCmd.CompletionOptions.DisableDefaultCmd {
		t.Error("expected Cobra default completion command to be disabled")
	}
}

func TestCompletionCommand_NoArgsShowsHelp(t *testing.T) {
	out, err := runRoot(t, "completion")
	if err != nil {
		t.Fatalf("completion with no args should show help, not error: %v", err)
	}
	if !strings.Contains(out, "--install") {
		t.Error("no-args output should show help with install instructions")
	}
}

func TestCompletionCommand_Scripts(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{"bash", "__start_agentkit"},
		{"zsh", "compdef"},
		{"fish", "complete -c agentkit"},
		{"powershell", "Register-ArgumentCompleter"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			out, err := runRoot(t, "completion", tt.shell)
			if err != nil {
				t.Fatalf("completion %s failed: %v", tt.shell, err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("%s completion output should contain %q", tt.shell, tt.want)
			}
		})
	}
}

func TestCompletionCommand_UnsupportedShell(t *testing.T) {
	_, err := runRoot(t, "completion", "nushell")
	if err == nil || !strings.Contains(err.Error(), "unsupported shell") {
		t.Errorf("err = %v, want unsupported shell", err)
	}
}

func TestCompletionCommand_InstallFish(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	defer func() { completionInstall = false }()

	out, err := runRoot(t, "completion", "fish", "--install")
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}

	target := filepath.Join(home, ".config", "fish", "completions", "agentkit.fish")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("completion file not written: %v", err)
	}
	if !strings.Contains(string(data), "agentkit") {
		t.Error("installed script does not mention agentkit")
	}
	if !strings.Contains(out, target) {
		t.Errorf("output %q should name %s", out, target)
	}
}

func TestCompletionCommand_PowershellInstallUnsupported(t *testing.T) {
	defer func() { completionInstall = false }()
	_, err := runRoot(t, "completion", "powershell", "--install")
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("err = %v", err)
	}
}

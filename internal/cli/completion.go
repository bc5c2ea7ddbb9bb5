package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for agentkit",
	Long: `Set up shell tab-completions for agentkit commands, flags, and arguments.

Supported shells: bash, zsh, fish, powershell

Install into your user profile:

  agentkit completion bash --install
  agentkit completion zsh --install
  agentkit completion fish --install

Or print the completion script to stdout:

  eval "$(agentkit completion bash)"
  agentkit completion fish | source`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your shell profile")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

// completionTarget describes where a shell's completion script is installed
// and how the script is generated.
type completionTarget struct {
	relPath  string
	generate func(w io.Writer) error
	hint     string
}

var completionTargets = map[string]completionTarget{
	"bash": {
		relPath:  filepath.Join(".local", "share", "bash-completion", "completions", "agentkit"),
		generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		hint:     "Restart your shell to load completions.",
	},
	"zsh": {
		relPath:  filepath.Join(".local", "share", "zsh", "site-functions", "_agentkit"),
		generate: func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
		hint:     "Ensure the directory is in your fpath, then run: autoload -Uz compinit && compinit",
	},
	"fish": {
		relPath:  filepath.Join(".config", "fish", "completions", "agentkit.fish"),
		generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		hint:     "Completions will be available in new fish sessions automatically.",
	},
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell := args[0]

	if shell == "powershell" {
		if completionInstall {
			return fmt.Errorf("automatic install is not supported for PowerShell; run 'agentkit completion powershell' and add the output to your profile")
		}
		return rootCmd.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
	}

	target, ok := completionTargets[shell]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", shell)
	}
	if !completionInstall {
		return target.generate(cmd.OutOrStdout())
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	path := filepath.Join(home, target.relPath)
	if err := writeCompletionFile(path, target.generate); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s completions installed to %s\n%s\n", shell, path, target.hint)
	return nil
}

// writeCompletionFile creates path and its parent directories and writes the
// generated script into it, reporting close errors.
func writeCompletionFile(path string, generate func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", path, err)
	}

	writeErr := generate(f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", path, closeErr)
	}
	return nil
}

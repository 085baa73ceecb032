package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/poolproxy/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one problem found in a configuration file.
type ValidationIssue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file against the embedded schema without
touching the store.

Checks field types, address syntax, discount rates and the instantiate
section, and reports every violation with the path of the offending field.
Defaults to the file named by --config.

Exit codes:
  0 - Config is valid
  1 - Config has errors
  2 - Command error (file not found, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("config file not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "failed to read config", err)
	}
	formatter.VerboseLog("Validating %s (%d bytes)", path, len(data))

	issues := collectIssues(config.Validate(data))
	if len(issues) == 0 {
		if _, err := config.Parse(data); err != nil {
			issues = collectIssues([]error{err})
		}
	}

	if len(issues) > 0 {
		return outputValidationErrors(formatter, issues)
	}

	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintln(formatter.Writer, "✓ Config valid")
	return nil
}

func collectIssues(errs []error) []ValidationIssue {
	var issues []ValidationIssue
	for _, err := range errs {
		var fieldErr *config.FieldError
		if errors.As(err, &fieldErr) {
			issues = append(issues, ValidationIssue{Path: fieldErr.Path, Message: fieldErr.Message})
			continue
		}
		issues = append(issues, ValidationIssue{Message: err.Error()})
	}
	return issues
}

func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.IsJSON() {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    ErrCodeConfig,
				Message: issues[0].Message,
			},
		}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		if issue.Path != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s\n", issue.Message)
		}
	}
	return exitErr
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openswitchboard/switchboard/pkg/compat"
	"github.com/openswitchboard/switchboard/pkg/config"
	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

func newValidateCommand() *cobra.Command {
	var changesFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and change batches offline",
		Long: `Validate without contacting a control plane.

The --config sources are parsed and schema-checked. With --file, the change
batch is additionally checked for structural problems, projected onto the
configured defaults, and run through the compatibility matrix. Policy review
and drift detection need the live daemon and are not part of offline
validation.`,
		Example: `  # Validate the deployment configuration
  switchboard validate -c ./deploy/switchboard.cue

  # Validate a change batch against the default stack
  switchboard validate -f changes.yaml

  # Validate a change batch against a deployment's defaults
  switchboard validate -c ./deploy/switchboard.cue -f changes.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := validateSources(cmd)
			if err != nil {
				return err
			}
			if changesFile == "" {
				return nil
			}
			return validateChangesFile(changesFile, settings)
		},
	}

	cmd.Flags().StringVarP(&changesFile, "file", "f", "", "changes file (YAML) to validate")

	return cmd
}

// validateSources parses the --config sources and prints every problem they
// carry. Without sources the built-in defaults are returned.
func validateSources(cmd *cobra.Command) (*config.Settings, error) {
	parser := config.NewParser()
	if len(configSources) == 0 {
		return parser.Load(cmd.Context(), configSources...)
	}

	parsed, err := parser.Parse(cmd.Context(), configSources)
	if err != nil {
		return nil, err
	}
	for _, file := range parsed.SourceFiles {
		fmt.Printf("Parsed %s\n", file)
	}
	if !parsed.Valid() {
		for _, verr := range parsed.Errors {
			fmt.Printf("  %s: %s\n", verr.Severity, verr.String())
		}
		return nil, fmt.Errorf("configuration is invalid (%d problems)", len(parsed.Errors))
	}
	fmt.Println("Configuration valid")
	return parsed.Settings, nil
}

func validateChangesFile(path string, settings *config.Settings) error {
	changes, err := loadChangesFile(path)
	if err != nil {
		return err
	}

	problems := 0
	for i, change := range changes {
		if msg := controlplane.ValidateChange(change); msg != "" {
			problems++
			fmt.Printf("Change %d (%s/%s): %s\n", i+1, change.ResourceType, change.ResourceID, msg)
		}
	}

	stack := controlplane.OverlayStack(settings.Defaults, changes)
	issues := compat.NewValidator(settings.EffectiveMatrix()).ValidateStack(stack)
	for _, issue := range issues {
		problems++
		fmt.Printf("Compatibility (%s): %s\n", issue.Dimension, issue.Message)
	}

	if problems > 0 {
		return fmt.Errorf("%d problems in %s", problems, path)
	}

	fmt.Printf("%d changes valid\n", len(changes))
	fmt.Printf("Projected stack: kernel=%s runtime=%s provider=%s model=%s\n",
		stack.Kernel, stack.Runtime, stack.Provider, stack.Model)
	return nil
}

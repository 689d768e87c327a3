package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/noironetworks/neutron/pkg/policy"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the admission policies",
		Long: `Admission policies are Rego modules evaluated before every engine
operation when policy.enabled is set. These commands work offline.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List built-in and configured policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadPolicyEngine(cmd)
			if err != nil {
				return err
			}
			policies := eng.ListPolicies()
			if jsonOutput {
				return printResult(policies, "")
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <operation> <key>",
		Short: "Evaluate the policies for one operation",
		Example: `  apicsync policy check ensure_bd infra/net-1
  apicsync policy check ensure_port_profile 101`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadPolicyEngine(cmd)
			if err != nil {
				return err
			}
			result, err := eng.Evaluate(cmd.Context(), policy.NewInput(args[0], args[1]))
			if err != nil {
				return err
			}
			if jsonOutput {
				return printResult(result, "")
			}

			var b strings.Builder
			if result.Allowed {
				fmt.Fprintf(&b, "%s %s: allowed", args[0], args[1])
			} else {
				fmt.Fprintf(&b, "%s %s: denied", args[0], args[1])
			}
			for _, v := range result.Violations {
				fmt.Fprintf(&b, "\n  [%s] %s: %s", v.Severity, v.Policy, v.Message)
			}
			for _, v := range result.Warnings {
				fmt.Fprintf(&b, "\n  [%s] %s: %s", v.Severity, v.Policy, v.Message)
			}
			return printResult(nil, b.String())
		},
	})

	return cmd
}

// loadPolicyEngine builds the engine the configuration describes, even
// when admission is not enabled.
func loadPolicyEngine(cmd *cobra.Command) (*policy.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return policy.NewEngineFromConfig(cmd.Context(), cfg.Policy, log.Logger)
}

package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newInfraCommand() *cobra.Command {
	var (
		switchID string
		withBGP  bool
	)

	cmd := &cobra.Command{
		Use:   "infra",
		Short: "Bring up the shared access infrastructure",
		Long: `Ensure the VLAN namespace, physical domain, attachable entity profile and
access port group exist, then the node and port profiles of every switch
that has host links or is listed in the configuration.`,
		Example: `  # Full bring-up including the BGP route reflector policy
  apicsync infra --bgp

  # Only the profiles of one leaf
  apicsync infra --switch 101`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if switchID != "" {
					if err := a.manager.EnsureInfraCreatedForSwitch(ctx, switchID); err != nil {
						return err
					}
					return printResult(map[string]string{"switch": switchID}, fmt.Sprintf("switch %s profiles ensured", switchID))
				}

				log.Info().Msg("ensuring access infrastructure")
				if err := a.manager.EnsureInfraCreated(ctx); err != nil {
					return err
				}
				if withBGP {
					if err := a.manager.EnsureBGPPodPolicyCreated(ctx); err != nil {
						return err
					}
				}
				return printResult(map[string]bool{"infra": true, "bgp": withBGP}, "access infrastructure ensured")
			})
		},
	}

	cmd.Flags().StringVar(&switchID, "switch", "", "only ensure the profiles of this switch")
	cmd.Flags().BoolVar(&withBGP, "bgp", false, "also ensure the BGP route reflector pod policy")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fastygo/rolegate/domain"
	bridgeUC "github.com/fastygo/rolegate/usecase/bridge"
)

func newDeriveCmd(p *printer) *cobra.Command {
	var (
		pepper     = os.Getenv("CREDENTIAL_PEPPER")
		showSecret bool
	)
	cmd := &cobra.Command{
		Use:   "derive <phone|email>",
		Short: "Print the synthetic backend identifier for a phone number or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if showSecret && pepper == "" {
				return fmt.Errorf("--show-secret needs a pepper (flag --pepper or env CREDENTIAL_PEPPER)")
			}

			ext := domain.ExternalIdentity{Phone: args[0]}
			if domain.IsEmailIdentifier(args[0]) {
				ext = domain.ExternalIdentity{Email: args[0]}
			}
			cred, err := bridgeUC.NewDeriver(pepper).Derive(ext)
			if err != nil {
				return err
			}

			result := map[string]string{"identifier": cred.Identifier}
			if showSecret {
				result["secret"] = cred.Secret
			}
			p.print(result, func() string {
				if showSecret {
					return cred.Identifier + "\n" + cred.Secret
				}
				return cred.Identifier
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&pepper, "pepper", pepper, "Credential pepper (env CREDENTIAL_PEPPER)")
	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "Also print the derived secret")
	return cmd
}

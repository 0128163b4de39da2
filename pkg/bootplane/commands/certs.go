package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/outpost-labs/bootplane/pkg/bootplane/cliutil"
	"github.com/outpost-labs/bootplane/pkg/pkp"
	"github.com/outpost-labs/bootplane/pkg/util"
)

func BuildCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Inspect serving certificates",
	}
	cmd.AddCommand(buildCertsInfoCmd())
	cmd.AddCommand(buildCertsFingerprintCmd())
	ConfigureManagementCommand(cmd)
	return cmd
}

// buildCertsInfoCmd queries a running gateway for its serving chain.
func buildCertsInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the gateway's serving certificate chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := mgmtClient.CertInfo(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(cliutil.RenderCertChain(chain))
			return nil
		},
	}
}

// buildCertsFingerprintCmd fingerprints a local PEM file, for operators
// distributing pins out of band.
func buildCertsFingerprintCmd() *cobra.Command {
	var alg string
	cmd := &cobra.Command{
		Use:   "fingerprint <cert.pem>",
		Short: "Print the public key pin of a PEM encoded certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cert, err := util.ParsePEMEncodedCert(data)
			if err != nil {
				return err
			}
			pin, err := pkp.New(cert, pkp.Alg(alg))
			if err != nil {
				return err
			}
			fmt.Println(pin.Encode())
			return nil
		},
	}
	cmd.Flags().StringVar(&alg, "alg", string(pkp.AlgSHA256), "fingerprint algorithm (sha256 or b2b256)")
	return cmd
}

package main

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/bedrock-auth/pkg/auth"
)

type keyInfo struct {
	KeyID       string `json:"kid"`
	Bits        int    `json:"bits"`
	Fingerprint string `json:"sha256"`
}

type keysReport struct {
	Issuer string    `json:"issuer"`
	Keys   []keyInfo `json:"keys"`
}

func newKeysCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Fetch the identity provider's signing keys once and print them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			logger, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Keys.HTTPTimeout+cfg.ShutdownGrace)
			defer cancel()

			eng, err := startEngine(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			ring, err := eng.refreshKeys(ctx)
			if shutdownErr := eng.shutdown(ctx); err == nil {
				err = shutdownErr
			}
			if err != nil {
				return err
			}
			return writeKeys(cmd.OutOrStdout(), describeRing(ring), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func describeRing(ring *auth.KeyRing) keysReport {
	report := keysReport{Issuer: ring.Issuer(), Keys: make([]keyInfo, 0, ring.Len())}
	for _, kid := range ring.KeyIDs() {
		der, _ := ring.Key(kid)
		info := keyInfo{KeyID: kid}
		sum := sha256.Sum256(der)
		info.Fingerprint = hex.EncodeToString(sum[:])
		if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
			if rsaKey, ok := pub.(*rsa.PublicKey); ok {
				info.Bits = rsaKey.N.BitLen()
			}
		}
		report.Keys = append(report.Keys, info)
	}
	return report
}

func writeKeys(w io.Writer, report keysReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(w, "issuer: %s\n", report.Issuer)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KID\tBITS\tSHA256")
	for _, k := range report.Keys {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", k.KeyID, k.Bits, k.Fingerprint)
	}
	return tw.Flush()
}

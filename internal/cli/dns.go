package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opsrelay/relay-core/internal/config"
	"github.com/opsrelay/relay-core/internal/dnsauth"
)

var dnsCmd = &cobra.Command{
	Use:   "dns",
	Short: "Render and verify email authentication DNS records",
}

var dnsRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the SPF, DKIM and DMARC records for a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, spf, dkim, dmarc, err := recordsFromFlags(cmd)
		if err != nil {
			return err
		}

		color.Cyan("%s. TXT", domain)
		fmt.Printf("  %s\n", spf.Render())

		if dkim.PublicKey != "" {
			color.Cyan("%s. TXT", dkim.Name())
			for _, chunk := range dkim.RenderChunked() {
				fmt.Printf("  %q\n", chunk)
			}
		}

		color.Cyan("_dmarc.%s. TXT", domain)
		fmt.Printf("  %s\n", dmarc.Render())
		return nil
	},
}

var dnsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify published records against the expected configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(); err != nil {
			return err
		}
		ctx := cmd.Context()

		domain, spf, dkim, dmarc, err := recordsFromFlags(cmd)
		if err != nil {
			return err
		}
		server, _ := cmd.Flags().GetString("resolver")
		verifier := dnsauth.NewVerifier(dnsauth.NewDNSResolver(server))

		results := make([]*dnsauth.CheckResult, 0, 3)
		spfResult, err := verifier.CheckSPF(ctx, domain, spf)
		if err != nil {
			return err
		}
		results = append(results, spfResult)

		if dkim.PublicKey != "" {
			dkimResult, err := verifier.CheckDKIM(ctx, dkim)
			if err != nil {
				return err
			}
			results = append(results, dkimResult)
		}

		dmarcResult, err := verifier.CheckDMARC(ctx, domain, dmarc)
		if err != nil {
			return err
		}
		results = append(results, dmarcResult)

		failed := 0
		for _, r := range results {
			printCheck(r)
			if !r.Match {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d records do not match", failed, len(results))
		}
		color.Green("✓ All records match")
		return nil
	},
}

func printCheck(r *dnsauth.CheckResult) {
	switch {
	case r.Match:
		color.Green("✓ %s %s", r.Kind, r.Name)
	case !r.Found:
		color.Red("✗ %s %s: record not published", r.Kind, r.Name)
	default:
		color.Red("✗ %s %s: mismatch", r.Kind, r.Name)
		color.Yellow("  expected: %s", r.Expected)
		color.Yellow("  actual:   %s", r.Actual)
	}
	for _, issue := range r.Issues {
		color.Yellow("  ! %s", issue)
	}
}

// recordsFromFlags builds the expected record set from command flags.
func recordsFromFlags(cmd *cobra.Command) (string, *dnsauth.SPF, *dnsauth.DKIM, *dnsauth.DMARC, error) {
	domain, _ := cmd.Flags().GetString("domain")
	if domain == "" {
		return "", nil, nil, nil, fmt.Errorf("--domain is required")
	}
	includes, _ := cmd.Flags().GetStringSlice("spf-include")
	spfAll, _ := cmd.Flags().GetString("spf-all")
	selector, _ := cmd.Flags().GetString("dkim-selector")
	dkimKey, _ := cmd.Flags().GetString("dkim-key")
	policy, _ := cmd.Flags().GetString("dmarc-policy")
	rua, _ := cmd.Flags().GetStringSlice("dmarc-rua")

	spf := &dnsauth.SPF{Includes: includes, All: spfAll}
	dkim := &dnsauth.DKIM{Selector: selector, Domain: domain, PublicKey: strings.TrimSpace(dkimKey)}
	dmarc := &dnsauth.DMARC{Policy: policy, RUA: rua}
	return domain, spf, dkim, dmarc, nil
}

func init() {
	for _, c := range []*cobra.Command{dnsRenderCmd, dnsCheckCmd} {
		c.Flags().String("domain", "", "Domain to render or verify")
		c.Flags().StringSlice("spf-include", []string{"spf.protection.outlook.com"}, "SPF include mechanisms")
		c.Flags().String("spf-all", "~all", "SPF all mechanism")
		c.Flags().String("dkim-selector", "selector1", "DKIM selector")
		c.Flags().String("dkim-key", "", "DKIM public key (base64)")
		c.Flags().String("dmarc-policy", "quarantine", "DMARC policy")
		c.Flags().StringSlice("dmarc-rua", nil, "DMARC aggregate report addresses")
	}
	dnsCheckCmd.Flags().String("resolver", "", "DNS server to query, host:port")

	dnsCmd.AddCommand(dnsRenderCmd)
	dnsCmd.AddCommand(dnsCheckCmd)
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cloudflare/cloudflare-go"
	"github.com/spf13/cobra"

	"github.com/Travis-Britz/cfddns"
)

func newRecordsCommand(a *app) *cobra.Command {
	var zoneName string
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List the A and AAAA records of a zone with their IDs",
		Long: `records prints the address records of a zone so their IDs can be copied
into RECORD_IDS. The zone is given by ID (--zone or ZONE_ID) or by name (--zone-name).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			token, err := a.token(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			api, err := newAPI(token, cfg)
			if err != nil {
				return err
			}

			zoneID := cfg.ZoneID
			if zoneName != "" {
				zoneID, err = api.ZoneIDByName(zoneName)
				if err != nil {
					return fmt.Errorf("error looking up zone %q: %w", zoneName, err)
				}
				logger.V(1).Info("found zone", "name", zoneName, "id", zoneID)
			}
			if zoneID == "" {
				return &ddns.MissingConfigError{Field: "zone (--zone, ZONE_ID or --zone-name)"}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tNAME\tCONTENT")
			for _, typ := range []string{"A", "AAAA"} {
				records, _, err := api.ListDNSRecords(cmd.Context(), cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{Type: typ})
				if err != nil {
					return fmt.Errorf("error listing %s records: %w", typ, err)
				}
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Type, r.Name, r.Content)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&zoneName, "zone-name", "", "Look up the zone ID by domain name, e.g. example.com")
	return cmd
}

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hidayat0507/tradebot/internal/app"
	s3blob "github.com/Hidayat0507/tradebot/internal/blob/s3"
	"github.com/Hidayat0507/tradebot/internal/domain"
)

func archivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "Inspect archived trade files in the bucket",
	}
	cmd.AddCommand(archivesListCmd(), archivesGetCmd())
	return cmd
}

func archiveReader(cmd *cobra.Command) (domain.BlobReader, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewArchiveReader(cmd.Context(), cfg)
}

func archivesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [prefix]",
		Short: "List archive objects, optionally under a prefix such as 2025/01",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := archiveReader(cmd)
			if err != nil {
				return err
			}
			prefix := s3blob.TradePrefix
			if len(args) == 1 {
				prefix += args[0]
			}
			objects, err := reader.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			return printObjects(cmd.OutOrStdout(), objects)
		},
	}
}

func archivesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Write an archive object to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := archiveReader(cmd)
			if err != nil {
				return err
			}
			body, err := reader.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), body)
			return err
		},
	}
}

func printObjects(w io.Writer, objects []domain.BlobInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSIZE\tMODIFIED")
	for _, o := range objects {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Path, o.Size, o.LastModified.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

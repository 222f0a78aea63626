package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/conduit-lang/docmap/internal/store"
)

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print a stored document",
		Long:  "Fetch the document stored under collection/id and print it as relaxed extended JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key, err := keyFromArgs(args, opts.idType)
			if err != nil {
				return err
			}

			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.close()

			doc, err := s.store.Fetch(ctx, key)
			if err != nil {
				if store.IsNotFound(err) {
					return fmt.Errorf("document %s not found", key)
				}
				return err
			}

			data, err := bson.MarshalExtJSONIndent(doc, false, false, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to render document: %w", err)
			}

			out := cmd.OutOrStdout()
			color.New(color.FgCyan, color.Bold).Fprintf(out, "%s\n", key)
			fmt.Fprintln(out, string(data))
			return nil
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a stored document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key, err := keyFromArgs(args, opts.idType)
			if err != nil {
				return err
			}

			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.close()

			exists, err := s.datastore.Exists(ctx, key)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("document %s not found", key)
			}
			if err := s.datastore.Remove(ctx, key); err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", key)
			return nil
		},
	}
}

func keyFromArgs(args []string, idType string) (store.Key, error) {
	id, err := parseID(args[1], idType)
	if err != nil {
		return store.Key{}, err
	}
	return store.Key{Collection: args[0], ID: id}, nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/store"
)

func newContactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage trusted contacts",
		Long:  "Calls from trusted contacts are never classified or screened.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List trusted contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(st *store.Store) error {
				contacts, err := st.Contacts().List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, c := range contacts {
					fmt.Fprintf(out, "%s\t%s\n", c.PhoneNumber, c.DisplayName)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add <number> [name...]",
		Short: "Add or rename a trusted contact",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseNumber(args[0])
			if err != nil {
				return err
			}
			name := strings.Join(args[1:], " ")
			return withStore(func(st *store.Store) error {
				if err := st.Contacts().Add(cmd.Context(), number, name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", number)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <number>",
		Short: "Remove a trusted contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseNumber(args[0])
			if err != nil {
				return err
			}
			return withStore(func(st *store.Store) error {
				if err := st.Contacts().Remove(cmd.Context(), number); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", number)
				return nil
			})
		},
	})
	return cmd
}

func parseNumber(raw string) (phone.Number, error) {
	n := phone.Normalize(raw)
	if !n.Valid() {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return n, nil
}

func withStore(fn func(st *store.Store) error) error {
	return withStoreConfig(config.Load(), fn)
}

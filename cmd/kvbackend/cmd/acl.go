package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newACLCommand(a *app) *cobra.Command {
	acl := &cobra.Command{
		Use:   "acl",
		Short: "Inspect and edit access control lists",
	}

	var inherited bool

	principals := &cobra.Command{
		Use:   "principals <object> <permission>",
		Short: "List the principals granted a permission on an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			get := a.backends.Permission.GetObjectPermissionPrincipals

			if inherited {
				get = a.backends.Permission.GetAuthorizedPrincipals
			}

			principals, err := get(cmd.Context(), args[0], args[1])

			if err != nil {
				return err
			}

			for _, principal := range principals {
				fmt.Fprintln(cmd.OutOrStdout(), principal)
			}

			return nil
		},
	}

	principals.Flags().BoolVar(&inherited, "inherited", false, "include principals granted on ancestors")

	grant := &cobra.Command{
		Use:   "grant <object> <permission> <principal>",
		Short: "Grant a permission on an object",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.backends.Permission.AddPrincipalToACE(cmd.Context(), args[0], args[1], args[2])
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <object> <permission> <principal>",
		Short: "Revoke a permission on an object",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.backends.Permission.RemovePrincipalFromACE(cmd.Context(), args[0], args[1], args[2])
		},
	}

	check := &cobra.Command{
		Use:   "check <object> <permission> <principal>...",
		Short: "Find the object granting a permission to one of the principals",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			grantedBy, ok, err := a.backends.Permission.Check(cmd.Context(), args[0], args[1], args[2:])

			if err != nil {
				return err
			}

			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "denied")

				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "granted by %s\n", grantedBy)

			return nil
		},
	}

	objects := &cobra.Command{
		Use:   "objects <principal>...",
		Short: "List the objects the principals can access",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accessible, err := a.backends.Permission.GetAccessibleObjects(cmd.Context(), args, nil, false)

			if err != nil {
				return err
			}

			ids := make([]string, 0, len(accessible))

			for id := range accessible {
				ids = append(ids, id)
			}

			sort.Strings(ids)

			for _, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, strings.Join(accessible[id], ","))
			}

			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "delete <prefix>...",
		Short: "Revoke every permission on the objects under the prefixes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.backends.Permission.DeleteObjectPermissions(cmd.Context(), args...)
		},
	}

	acl.AddCommand(principals, grant, revoke, check, objects, remove)

	return acl
}

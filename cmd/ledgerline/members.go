package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/ledgerline/internal/cli"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/spf13/cobra"
)

func membersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Manage who can see and edit a business workspace",
	}

	cmd.AddCommand(listMembersCmd())
	cmd.AddCommand(addMemberCmd())
	cmd.AddCommand(changeRoleCmd())

	return cmd
}

func listMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workspace-id>",
		Short: "List workspace members and their roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, _, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			members, err := engine.Members.ListMembers(ctx, args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{
				cli.HeaderStyle.Render("USER"),
				cli.HeaderStyle.Render("ROLE"),
				cli.HeaderStyle.Render("JOINED"),
			}, "\t"))
			for _, m := range members {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.UserID, m.Role, m.JoinedAt.Format(dateLayout))
			}
			return w.Flush()
		},
	}
}

func addMemberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <workspace-id> <user-id> <role>",
		Short: "Add a member as admin, accountant, or viewer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, _, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			if err := engine.Members.AddMember(ctx, args[0], args[1], model.Role(args[2])); err != nil {
				return err
			}
			fmt.Printf("%s Added %s as %s\n", cli.SuccessStyle.Render(cli.SuccessIcon), cli.InfoStyle.Render(args[1]), args[2])
			return nil
		},
	}
}

func changeRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "change-role <workspace-id> <user-id> <role>",
		Short: "Change a member's role (owners only)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, _, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			if err := engine.Members.ChangeRole(ctx, args[0], args[1], model.Role(args[2])); err != nil {
				return err
			}
			fmt.Printf("%s %s is now %s\n", cli.SuccessStyle.Render(cli.SuccessIcon), cli.InfoStyle.Render(args[1]), args[2])
			return nil
		},
	}
}

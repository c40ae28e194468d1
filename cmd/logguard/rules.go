package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SteelMorgan/cluster-log-guard/pkg/logguard"
)

// newRulesCommand constructs the `rules` command group
func newRulesCommand(a *app) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage ignore rule groups",
	}

	addCmd := &cobra.Command{
		Use:   "add GLOB REGEX",
		Short: "Add an ignore rule to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			if group == "" {
				group = logguard.NewGroupID()
			}
			if err := a.guard.AddIgnoreRule(cmd.Context(), args[0], args[1], group); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), group)
			return nil
		},
	}
	addCmd.Flags().String("group", "", "Rule group id (random if empty)")

	deleteCmd := &cobra.Command{
		Use:   "delete GROUP...",
		Short: "Delete rule groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, group := range args {
				if err := a.guard.DeleteRuleGroup(cmd.Context(), group); err != nil {
					return err
				}
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the distinct ignore rules of all groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			showGroups, _ := cmd.Flags().GetBool("groups")
			if showGroups {
				groups, err := a.guard.RuleGroups(cmd.Context())
				if err != nil {
					return err
				}
				for _, g := range groups {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), g)
				}
				return nil
			}

			ignoreRules, err := a.guard.IgnoreRules(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "GLOB\tREGEX")
			for _, r := range ignoreRules {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", r.FileGlob, r.Regex)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().Bool("groups", false, "List group ids instead of rules")

	rulesCmd.AddCommand(addCmd, deleteCmd, listCmd)
	return rulesCmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SteelMorgan/cluster-log-guard/pkg/logguard"
)

const pairSeparator = ";;"

// newExpectCommand constructs the `expect` command
func newExpectCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expect --pair 'GLOB;;REGEX' [--group ID] -- COMMAND [ARGS...]",
		Short: "Run a command and require the given errors to appear in the logs",
		Long: `Registers every pair as an ignore rule, runs COMMAND and then checks
that each REGEX matched a line written to a file matching GLOB while COMMAND ran.

The rules stay registered after the run so later sweeps keep ignoring them;
pass --cleanup to delete the rule group afterwards.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawPairs, _ := cmd.Flags().GetStringArray("pair")
			group, _ := cmd.Flags().GetString("group")
			cleanup, _ := cmd.Flags().GetBool("cleanup")

			pairs, err := parsePairs(rawPairs)
			if err != nil {
				return err
			}
			if group == "" {
				group = logguard.NewGroupID()
			}

			log.Info().
				Str("group", group).
				Int("pairs", len(pairs)).
				Strs("command", args).
				Msg("Running command under expectation")

			err = a.guard.ExpectErrors(cmd.Context(), pairs, group, func(ctx context.Context) error {
				return runCommand(ctx, cmd, args)
			})

			if cleanup {
				if delErr := a.guard.DeleteRuleGroup(context.Background(), group); delErr != nil {
					log.Warn().Err(delErr).Str("group", group).Msg("Failed to delete rule group")
				}
			}

			var expErr *logguard.ExpectationError
			if errors.As(err, &expErr) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), expErr.Error())
				return errFound
			}
			return err
		},
	}
	cmd.Flags().StringArray("pair", nil, "Expected error as GLOB;;REGEX (repeatable)")
	cmd.Flags().String("group", "", "Rule group id (random if empty)")
	cmd.Flags().Bool("cleanup", false, "Delete the rule group after verification")
	_ = cmd.MarkFlagRequired("pair")
	return cmd
}

// parsePairs splits GLOB;;REGEX flag values
func parsePairs(raw []string) ([]logguard.RegexPair, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --pair is required")
	}
	pairs := make([]logguard.RegexPair, 0, len(raw))
	for _, r := range raw {
		glob, regex, ok := strings.Cut(r, pairSeparator)
		if !ok || glob == "" || regex == "" {
			return nil, fmt.Errorf("invalid pair %q, want GLOB%sREGEX", r, pairSeparator)
		}
		pairs = append(pairs, logguard.RegexPair{FileGlob: glob, Regex: regex})
	}
	return pairs, nil
}

func runCommand(ctx context.Context, cmd *cobra.Command, args []string) error {
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	if err := c.Run(); err != nil {
		return fmt.Errorf("command %s failed: %w", args[0], err)
	}
	return nil
}

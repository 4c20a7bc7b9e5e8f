package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/rollcall/internal/adapters/roster"
	"github.com/okian/rollcall/internal/domain/model"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage the student roster",
}

var rosterAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Register a student",
	Example: `  rollcall roster add --rollno 7 --name "Asha Rao" --branch CSE`,
	RunE:    runRosterAdd,
}

var rosterListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the roster",
	RunE:  runRosterList,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterAddCmd, rosterListCmd)

	rosterAddCmd.Flags().Int("rollno", 0, "Roll number (positive integer)")
	rosterAddCmd.Flags().String("name", "", "Display name")
	rosterAddCmd.Flags().String("branch", "", "Branch or other metadata")
	_ = rosterAddCmd.MarkFlagRequired("rollno")
	_ = rosterAddCmd.MarkFlagRequired("name")
}

func runRosterAdd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	r, err := roster.Load(ctx, cfg.RosterPath, log.Named("roster"))
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetInt("rollno")
	name, _ := cmd.Flags().GetString("name")
	branch, _ := cmd.Flags().GetString("branch")

	p, err := r.Register(ctx, model.Person{ID: id, DisplayName: name, Metadata: branch})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %d %s\n", p.ID, p.DisplayName)
	return nil
}

func runRosterList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	r, err := roster.Load(ctx, cfg.RosterPath, log.Named("roster"))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range r.People() {
		fmt.Fprintf(out, "%d\t%s\t%s\n", p.ID, p.DisplayName, p.Metadata)
	}
	return nil
}

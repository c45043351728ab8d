// Package category handles category commands
package category

import (
	"fmt"
	"text/tabwriter"

	"edwinliby/xpense-sync/cmd/root"
	"edwinliby/xpense-sync/internal/models"

	"github.com/spf13/cobra"
)

var (
	icon  string
	color string
	name  string
)

// Cmd represents the category command
var Cmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories",
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a custom category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		c, err := s.AddCategory(cmd.Context(), models.Category{Name: args[0], Icon: icon, Color: color})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), c.ID)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Rename or restyle a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		var c models.Category
		found := false
		for _, existing := range s.Categories() {
			if existing.ID == args[0] {
				c, found = existing, true
				break
			}
		}
		if !found {
			return fmt.Errorf("no category %s", args[0])
		}
		if cmd.Flags().Changed("name") {
			c.Name = name
		}
		if cmd.Flags().Changed("icon") {
			c.Icon = icon
		}
		if cmd.Flags().Changed("color") {
			c.Color = color
		}
		if _, err := s.UpdateCategory(cmd.Context(), c); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", c.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a custom category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		if err := s.DeleteCategory(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories, predefined first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tICON\tCOLOR\tPREDEFINED")
		for _, c := range s.Categories() {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", c.ID, c.Name, c.Icon, c.Color, c.IsPredefined)
		}
		return tw.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{addCmd, editCmd} {
		c.Flags().StringVar(&icon, "icon", "", "Icon name")
		c.Flags().StringVar(&color, "color", "", "Color, e.g. #FF6B6B")
	}
	editCmd.Flags().StringVar(&name, "name", "", "New name; transactions follow the rename")
	Cmd.AddCommand(addCmd, editCmd, deleteCmd, listCmd)
}

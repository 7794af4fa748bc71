package cmd

import (
	"fmt"
	"strings"

	"github.com/gregriff/vocall/server/configs"
	"github.com/gregriff/vocall/server/internal/dal"
	"github.com/gregriff/vocall/server/internal/db"
	"github.com/spf13/cobra"
)

// addUserCmd represents the add-user command.
var addUserCmd = &cobra.Command{
	Use:   "add-user <user-id> <display-name>",
	Short: "Add a user to the directory",
	Long:  "Add a user to the directory. Clients identify as this user with `vocall identify <user-id>`.",
	Args:  cobra.ExactArgs(2),
	RunE:  addUser,
}

func init() {
	rootCmd.AddCommand(addUserCmd)
}

func addUser(_ *cobra.Command, args []string) error {
	id, name := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])

	conn, err := db.Open(configs.DatabasePath())
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := dal.CreateUser(conn, id, name); err != nil {
		return err
	}
	fmt.Printf("added %s (%s)\n", id, name)
	return nil
}
